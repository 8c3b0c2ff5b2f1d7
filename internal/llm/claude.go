package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/hazylabs/cartridges/internal/claude"
)

type ClaudeProvider struct {
	client *claude.Client
}

func NewClaudeProvider(apiKey string, baseURL string, model string) *ClaudeProvider {
	opts := make([]claude.Option, 0, 2)
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, claude.WithBaseURL(v))
	}
	if v := strings.TrimSpace(model); v != "" {
		opts = append(opts, claude.WithModel(v))
	}
	return &ClaudeProvider{
		client: claude.NewClient(strings.TrimSpace(apiKey), opts...),
	}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) Generate(ctx context.Context, req *Request) (*Generation, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: claude: nil client")
	}
	cReq, err := toClaudeRequest(req)
	if err != nil {
		return nil, err
	}

	gen, err := p.client.Generate(ctx, cReq)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, errors.New("llm: claude: nil generation")
	}

	out := &Generation{
		Text:         gen.TextContent,
		LatencyMs:    gen.LatencyMs,
		InputTokens:  gen.InputTokens,
		OutputTokens: gen.OutputTokens,
	}
	if gen.Response != nil {
		out.StopReason = gen.Response.StopReason
	}
	return out, nil
}

func toClaudeRequest(req *Request) (*claude.Request, error) {
	if req == nil {
		return nil, errors.New("llm: claude: nil request")
	}

	msgs := make([]claude.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, claude.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	return &claude.Request{
		Messages:    msgs,
		System:      req.System,
		MaxTokens:   clampMaxTokens(req.MaxTokens),
		Temperature: req.Temperature,
	}, nil
}
