// Package dataset loads benchmark datasets and converts them into
// prompt/response elements for a generation loop, and scores model
// outputs against the references.
package dataset

import "context"

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Element is one prompt/response pair from a dataset.
type Element struct {
	ID           string
	Messages     []Message
	Prompt       string
	Answer       string
	MaxNewTokens int // generation budget hint, 0 means provider default
	Metadata     map[string]any
}

// Dataset loads elements for generation.
type Dataset interface {
	Name() string
	Description() string
	Load(ctx context.Context) ([]Element, error)
}

// Scorer scores a single prediction against its reference on [0, 1].
type Scorer interface {
	Score(prediction, answer string) (float64, error)
}

// BatchScorer scores a full corpus of predictions at once, for metrics
// that are only meaningful at the corpus level (chrF).
type BatchScorer interface {
	ScoreBatch(predictions, references []string) (float64, error)
}
