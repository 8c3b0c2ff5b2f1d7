package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazylabs/cartridges/internal/nested"
	"github.com/hazylabs/cartridges/internal/store"
	"github.com/hazylabs/cartridges/internal/tracker"
)

type runsOptions struct {
	dataset string
	model   string
	limit   int
	csv     bool
}

func newRunsCmd(st *cliState) *cobra.Command {
	var opts runsOptions

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored generation runs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "filter by dataset")
	cmd.Flags().StringVar(&opts.model, "model", "", "filter by model")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&opts.csv, "csv", false, "emit flat CSV rows instead of a table")

	cmd.AddCommand(newRunsFetchCmd(st))
	return cmd
}

func listRuns(cmd *cobra.Command, st *cliState, opts *runsOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("runs: missing config (internal error)")
	}

	s, err := store.Open(st.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	runs, err := s.ListRuns(context.Background(), store.RunFilter{
		Dataset: strings.TrimSpace(opts.dataset),
		Model:   strings.TrimSpace(opts.model),
		Limit:   opts.limit,
	})
	if err != nil {
		return err
	}

	if opts.csv {
		return writeRunsCSV(cmd, runs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATASET\tMODEL\tSTARTED\tSAMPLES\tSCORE")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.4f\n",
			run.ID,
			run.Dataset,
			run.Model,
			run.StartedAt.Format(time.RFC3339),
			run.TotalSamples,
			run.Score,
		)
	}
	return tw.Flush()
}

// writeRunsCSV emits one flat row per run: identity and summary columns
// plus the flattened run config.
func writeRunsCSV(cmd *cobra.Command, runs []*store.RunRecord) error {
	rows := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		row := map[string]any{
			"id":               run.ID,
			"dataset":          run.Dataset,
			"model":            run.Model,
			"started_at":       run.StartedAt.Format(time.RFC3339),
			"total_samples":    run.TotalSamples,
			"passed_samples":   run.PassedSamples,
			"failed_samples":   run.FailedSamples,
			"score":            run.Score,
			"total_tokens":     run.TotalTokens,
			"total_latency_ms": run.TotalLatency,
		}
		if len(run.Config) > 0 {
			for k, v := range nested.Flatten(run.Config, nested.DefaultDelimiter) {
				row["config."+k] = v
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(cmd, rows)
}

func writeCSV(cmd *cobra.Command, rows []map[string]any) error {
	columnSet := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			columnSet[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for k := range columnSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	w := csv.NewWriter(cmd.OutOrStdout())
	if err := w.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				record[i] = ""
				continue
			}
			record[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

type runsFetchOptions struct {
	ids     []string
	filters []string
	csv     bool
}

// newRunsFetchCmd fetches runs from the experiment-tracking service
// instead of the local store.
func newRunsFetchCmd(st *cliState) *cobra.Command {
	var opts runsFetchOptions

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch runs from the experiment tracker",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchTrackerRuns(cmd, st, &opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ids, "id", nil, "run id or entity/project/id path (repeatable)")
	cmd.Flags().StringSliceVar(&opts.filters, "filter", nil, "config filter key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.csv, "csv", false, "emit flat CSV rows instead of a table")

	return cmd
}

func fetchTrackerRuns(cmd *cobra.Command, st *cliState, opts *runsFetchOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("runs: missing config (internal error)")
	}

	client, err := tracker.NewClient(st.cfg.Tracker)
	if err != nil {
		return err
	}

	query := tracker.RunQuery{RunIDs: opts.ids}
	if len(opts.filters) > 0 {
		query.ConfigFilters = map[string]any{}
		for _, raw := range opts.filters {
			key, value, found := strings.Cut(raw, "=")
			key = strings.TrimSpace(key)
			if !found || key == "" {
				return fmt.Errorf("runs: invalid --filter %q (expected key=value)", raw)
			}
			query.ConfigFilters[key] = strings.TrimSpace(value)
		}
	}

	runs, err := client.FetchRuns(cmd.Context(), query)
	if err != nil {
		return err
	}

	rows := tracker.Rows(runs)
	if opts.csv {
		return writeCSV(cmd, rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROJECT\tUSER\tSTATE")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", run.ID, run.Name, run.Project, run.User, run.State)
	}
	return tw.Flush()
}
