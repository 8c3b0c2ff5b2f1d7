package runner

import (
	"time"
)

// Config defines generation loop behavior.
type Config struct {
	Concurrency   int     // Max concurrent generations
	MaxTokens     int     // Default cap when the element does not set one
	Temperature   float64
	PassThreshold float64       // Minimum per-element score counted as a pass
	Timeout       time.Duration // Per-generation timeout
}

// ElementResult reports the generation and score for one dataset element.
type ElementResult struct {
	ElementID  string
	Prompt     string
	Prediction string
	Answer     string
	Score      float64
	Passed     bool
	LatencyMs  int64
	Tokens     int
	Error      error
}

// RunResult aggregates a full generation run over one dataset.
type RunResult struct {
	RunID         string
	Dataset       string
	Model         string
	StartedAt     time.Time
	FinishedAt    time.Time
	TotalSamples  int
	PassedSamples int
	FailedSamples int
	Score         float64
	TotalLatency  int64
	TotalTokens   int
	Results       []ElementResult
}
