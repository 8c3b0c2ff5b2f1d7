package llm

import "context"

// Provider generates a completion for a prompt conversation.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Generation, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
}

// Generation is a single decoded completion with latency and usage.
type Generation struct {
	Text         string
	StopReason   string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
}
