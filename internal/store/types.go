package store

import (
	"context"
	"time"
)

// RunWriter defines persistence for generation runs.
type RunWriter interface {
	SaveRun(ctx context.Context, run *RunRecord) error
}

// RunReader defines read access to stored runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	GetSamples(ctx context.Context, runID string) ([]SampleRecord, error)
}

// Analytics defines query helpers for historical comparisons.
type Analytics interface {
	GetDatasetHistory(ctx context.Context, dataset string, limit int) ([]*RunRecord, error)
}

// Store defines persistence for generation runs.
type Store interface {
	RunWriter
	RunReader
	Analytics
	Close() error
}

// RunRecord stores a single generation run over one dataset.
type RunRecord struct {
	ID            string         `json:"id"`
	Dataset       string         `json:"dataset"`
	Model         string         `json:"model"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	TotalSamples  int            `json:"total_samples"`
	PassedSamples int            `json:"passed_samples"`
	FailedSamples int            `json:"failed_samples"`
	Score         float64        `json:"score"`
	TotalTokens   int            `json:"total_tokens"`
	TotalLatency  int64          `json:"total_latency_ms"`
	Config        map[string]any `json:"config,omitempty"`
	Samples       []SampleRecord `json:"samples,omitempty"`
}

// SampleRecord stores a single element's generation and score.
type SampleRecord struct {
	ElementID  string  `json:"element_id"`
	Prompt     string  `json:"prompt,omitempty"`
	Prediction string  `json:"prediction,omitempty"`
	Answer     string  `json:"answer,omitempty"`
	Score      float64 `json:"score"`
	Passed     bool    `json:"passed"`
	LatencyMs  int64   `json:"latency_ms,omitempty"`
	Tokens     int     `json:"tokens,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// RunFilter filters run listings.
type RunFilter struct {
	Dataset string
	Model   string
	Since   time.Time
	Until   time.Time
	Limit   int
}
