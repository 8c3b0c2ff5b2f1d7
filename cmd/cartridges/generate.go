package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazylabs/cartridges/internal/dataset"
	"github.com/hazylabs/cartridges/internal/llm"
	"github.com/hazylabs/cartridges/internal/runner"
	"github.com/hazylabs/cartridges/internal/store"
)

type generateOptions struct {
	dataset     string
	provider    string
	concurrency int
	maxTokens   int
	noPersist   bool
}

func newGenerateCmd(st *cliState) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and score completions for a dataset",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "dataset to run (see 'cartridges datasets')")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "llm provider (overrides config)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "max concurrent generations (overrides config)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "max new tokens per completion (overrides config)")
	cmd.Flags().BoolVar(&opts.noPersist, "no-persist", false, "skip persisting the run")

	return cmd
}

func runGenerate(cmd *cobra.Command, st *cliState, opts *generateOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("generate: missing config (internal error)")
	}

	name := strings.TrimSpace(opts.dataset)
	if name == "" {
		return fmt.Errorf("generate: specify --dataset <name>")
	}

	ds, err := dataset.FromConfig(name, st.cfg)
	if err != nil {
		return err
	}

	var provider llm.Provider
	if p := strings.TrimSpace(opts.provider); p != "" {
		registry, err := llm.NewRegistryFromConfig(st.cfg)
		if err != nil {
			return err
		}
		var ok bool
		provider, ok = registry.Get(p)
		if !ok {
			return fmt.Errorf("generate: unknown provider %q", p)
		}
	} else {
		provider, err = llm.DefaultProviderFromConfig(st.cfg)
		if err != nil {
			return err
		}
	}

	var writer store.RunWriter
	if !opts.noPersist {
		s, err := store.Open(st.cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		writer = s
	}

	concurrency := st.cfg.Generation.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}
	maxTokens := st.cfg.Generation.MaxTokens
	if opts.maxTokens > 0 {
		maxTokens = opts.maxTokens
	}

	r := runner.NewRunner(provider, writer, runner.Config{
		Concurrency: concurrency,
		MaxTokens:   maxTokens,
		Temperature: st.cfg.Generation.Temperature,
		Timeout:     st.cfg.Generation.Timeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Running %s with %s...\n", ds.Name(), provider.Name())

	res, err := r.Run(ctx, ds)
	if err != nil {
		return err
	}

	printRunSummary(cmd, res)
	return nil
}

func printRunSummary(cmd *cobra.Command, res *runner.RunResult) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "Dataset\t%s\n", res.Dataset)
	fmt.Fprintf(tw, "Model\t%s\n", res.Model)
	fmt.Fprintf(tw, "Samples\t%d (%d passed, %d failed)\n", res.TotalSamples, res.PassedSamples, res.FailedSamples)
	fmt.Fprintf(tw, "Score\t%.4f\n", res.Score)
	fmt.Fprintf(tw, "Tokens\t%d\n", res.TotalTokens)
	fmt.Fprintf(tw, "Latency\t%dms\n", res.TotalLatency)
	_ = tw.Flush()
}
