// Package runner drives a generation run: it loads a dataset, generates
// completions with bounded concurrency, scores them, and aggregates the
// results into a single run record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazylabs/cartridges/internal/dataset"
	"github.com/hazylabs/cartridges/internal/llm"
	"github.com/hazylabs/cartridges/internal/nested"
	"github.com/hazylabs/cartridges/internal/store"
)

const (
	defaultMaxTokens     = 1024
	defaultPassThreshold = 0.5
)

// Runner generates and scores dataset elements with an LLM provider.
type Runner struct {
	provider llm.Provider
	writer   store.RunWriter
	cfg      Config

	sem chan struct{}
}

// NewRunner creates a Runner. The writer is optional; when nil, runs are
// not persisted.
func NewRunner(provider llm.Provider, writer store.RunWriter, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = defaultPassThreshold
	}
	if cfg.PassThreshold > 1 {
		cfg.PassThreshold = 1
	}

	return &Runner{
		provider: provider,
		writer:   writer,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Run generates a completion for every element of the dataset, scores the
// outputs, and returns the aggregated run. When the dataset implements
// dataset.Scorer, elements are scored individually; when it implements
// dataset.BatchScorer, the whole corpus is scored at once and the batch
// score becomes the run score.
func (r *Runner) Run(ctx context.Context, ds dataset.Dataset) (*RunResult, error) {
	if r == nil {
		return nil, errors.New("runner: nil runner")
	}
	if ctx == nil {
		return nil, errors.New("runner: nil context")
	}
	if r.provider == nil {
		return nil, errors.New("runner: nil llm provider")
	}
	if ds == nil {
		return nil, errors.New("runner: nil dataset")
	}

	elements, err := ds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("runner: load dataset %q: %w", ds.Name(), err)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("runner: dataset %q has no elements", ds.Name())
	}

	startedAt := time.Now().UTC()
	out := &RunResult{
		RunID:        fmt.Sprintf("run_%s_%d", ds.Name(), startedAt.UnixNano()),
		Dataset:      ds.Name(),
		Model:        r.provider.Name(),
		StartedAt:    startedAt,
		TotalSamples: len(elements),
		Results:      make([]ElementResult, len(elements)),
	}

	var wg sync.WaitGroup
elementLoop:
	for i := range elements {
		select {
		case <-ctx.Done():
			for j := i; j < len(elements); j++ {
				out.Results[j] = ElementResult{
					ElementID: elements[j].ID,
					Answer:    elements[j].Answer,
					Error:     ctx.Err(),
				}
			}
			break elementLoop
		default:
		}

		idx := i
		el := elements[i]

		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Results[idx] = r.generateElement(ctx, el)
		}()
	}
	wg.Wait()

	r.score(ds, out)
	out.FinishedAt = time.Now().UTC()

	for i := range out.Results {
		res := &out.Results[i]
		out.TotalLatency += res.LatencyMs
		out.TotalTokens += res.Tokens
		if res.Passed {
			out.PassedSamples++
		} else {
			out.FailedSamples++
		}
	}

	if r.writer != nil {
		if err := r.writer.SaveRun(ctx, toRunRecord(out)); err != nil {
			return out, fmt.Errorf("runner: persist run: %w", err)
		}
	}
	return out, nil
}

func (r *Runner) generateElement(ctx context.Context, el dataset.Element) ElementResult {
	res := ElementResult{
		ElementID: el.ID,
		Prompt:    el.Prompt,
		Answer:    el.Answer,
	}

	if err := r.acquire(ctx); err != nil {
		res.Error = err
		return res
	}
	defer r.release()

	genCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	maxTokens := el.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = r.cfg.MaxTokens
	}

	req := &llm.Request{
		Messages:    promptMessages(el.Messages),
		MaxTokens:   maxTokens,
		Temperature: r.cfg.Temperature,
	}
	if len(req.Messages) == 0 {
		res.Error = errors.New("runner: element has no user messages")
		return res
	}

	gen, err := r.provider.Generate(genCtx, req)
	if gen != nil {
		res.Prediction = gen.Text
		res.LatencyMs = gen.LatencyMs
		res.Tokens = gen.InputTokens + gen.OutputTokens
	}
	if err != nil {
		res.Error = err
	}
	return res
}

// promptMessages converts dataset turns into provider messages, dropping
// a trailing assistant turn. Datasets keep the reference completion as
// the final assistant message; it must not be sent to the model.
func promptMessages(msgs []dataset.Message) []llm.Message {
	n := len(msgs)
	for n > 0 && msgs[n-1].Role == "assistant" {
		n--
	}
	out := make([]llm.Message, 0, n)
	for _, m := range msgs[:n] {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (r *Runner) score(ds dataset.Dataset, out *RunResult) {
	switch scorer := ds.(type) {
	case dataset.Scorer:
		var total float64
		scored := 0
		for i := range out.Results {
			res := &out.Results[i]
			if res.Error != nil {
				continue
			}
			sc, err := scorer.Score(res.Prediction, res.Answer)
			if err != nil {
				res.Error = err
				continue
			}
			res.Score = sc
			res.Passed = sc >= r.cfg.PassThreshold
			total += sc
			scored++
		}
		if scored > 0 {
			out.Score = total / float64(scored)
		}
	case dataset.BatchScorer:
		var predictions, references []string
		for i := range out.Results {
			res := &out.Results[i]
			if res.Error != nil {
				continue
			}
			predictions = append(predictions, res.Prediction)
			references = append(references, res.Answer)
			res.Passed = true
		}
		if len(predictions) == 0 {
			return
		}
		sc, err := scorer.ScoreBatch(predictions, references)
		if err != nil {
			for i := range out.Results {
				if out.Results[i].Error == nil {
					out.Results[i].Error = err
					out.Results[i].Passed = false
				}
			}
			return
		}
		out.Score = sc
	}
}

func (r *Runner) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	<-r.sem
}

func toRunRecord(res *RunResult) *store.RunRecord {
	rec := &store.RunRecord{
		ID:            res.RunID,
		Dataset:       res.Dataset,
		Model:         res.Model,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		TotalSamples:  res.TotalSamples,
		PassedSamples: res.PassedSamples,
		FailedSamples: res.FailedSamples,
		Score:         res.Score,
		TotalTokens:   res.TotalTokens,
		TotalLatency:  res.TotalLatency,
		Samples:       make([]store.SampleRecord, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		sample := store.SampleRecord{
			ElementID:  r.ElementID,
			Prompt:     r.Prompt,
			Prediction: r.Prediction,
			Answer:     r.Answer,
			Score:      r.Score,
			Passed:     r.Passed,
			LatencyMs:  r.LatencyMs,
			Tokens:     r.Tokens,
		}
		if r.Error != nil {
			sample.Error = r.Error.Error()
		}
		rec.Samples = append(rec.Samples, sample)
	}
	return rec
}

// MetricRow flattens the run's summary metrics into delimiter-joined
// columns suitable for tabular logging.
func MetricRow(res *RunResult) map[string]any {
	if res == nil {
		return nil
	}
	summary := map[string]any{
		"run": map[string]any{
			"id":      res.RunID,
			"dataset": res.Dataset,
			"model":   res.Model,
		},
		"samples": map[string]any{
			"total":  res.TotalSamples,
			"passed": res.PassedSamples,
			"failed": res.FailedSamples,
		},
		"score": res.Score,
		"usage": map[string]any{
			"tokens":     res.TotalTokens,
			"latency_ms": res.TotalLatency,
		},
	}
	return nested.Flatten(summary, nested.DefaultDelimiter)
}
