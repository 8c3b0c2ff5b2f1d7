package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNewClient_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	c := NewClient(" key ")
	if c.apiKey != "key" {
		t.Fatalf("apiKey: got %q", c.apiKey)
	}
	if c.baseURL != "https://api.anthropic.com/v1" {
		t.Fatalf("baseURL: got %q", c.baseURL)
	}
	if c.model != defaultModel {
		t.Fatalf("model: got %q", c.model)
	}
	if c.retryMax != defaultRetryMax {
		t.Fatalf("retryMax: got %d", c.retryMax)
	}
}

func TestNewClient_Options(t *testing.T) {
	c := NewClient("key",
		WithBaseURL(" https://proxy.test/v1/ "),
		WithModel(" my-model "),
		WithTimeout(2*time.Second),
		WithRetry(10),
		nil,
	)
	if c.baseURL != "https://proxy.test/v1" {
		t.Fatalf("baseURL: got %q", c.baseURL)
	}
	if c.model != "my-model" {
		t.Fatalf("model: got %q", c.model)
	}
	if c.httpClient.Timeout != 2*time.Second {
		t.Fatalf("timeout: got %v", c.httpClient.Timeout)
	}
	if c.retryMax != maxRetryMax {
		t.Fatalf("retryMax: got %d, want clamped to %d", c.retryMax, maxRetryMax)
	}
}

func TestComplete_MissingAuth(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	c := NewClient("")
	_, err := c.Complete(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "missing api key") {
		t.Fatalf("Complete: got %v, want missing api key", err)
	}
}

func TestComplete_NilArguments(t *testing.T) {
	var nilClient *Client
	if _, err := nilClient.Complete(context.Background(), &Request{}); err == nil {
		t.Fatalf("Complete: expected error for nil client")
	}

	c := NewClient("key")
	if _, err := c.Complete(nil, &Request{}); err == nil { //nolint:staticcheck
		t.Fatalf("Complete: expected error for nil context")
	}
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatalf("Complete: expected error for nil request")
	}
}

func TestAPIError_Error(t *testing.T) {
	cases := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "type and message",
			err:  &APIError{Status: "500 Internal Server Error", Type: "api_error", Message: "boom"},
			want: "claude: api error (500 Internal Server Error): api_error: boom",
		},
		{
			name: "message only",
			err:  &APIError{Status: "429 Too Many Requests", Message: "slow down"},
			want: "claude: api error (429 Too Many Requests): slow down",
		},
		{
			name: "body fallback",
			err:  &APIError{Status: "502 Bad Gateway", Body: []byte(" upstream died ")},
			want: "claude: api error (502 Bad Gateway): upstream died",
		},
		{
			name: "status only",
			err:  &APIError{Status: "503 Service Unavailable"},
			want: "claude: api error (503 Service Unavailable)",
		},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}

	var nilErr *APIError
	if got := nilErr.Error(); got != "claude: api error <nil>" {
		t.Fatalf("nil: got %q", got)
	}
}

func TestShouldRetry(t *testing.T) {
	if shouldRetry(nil) {
		t.Fatalf("shouldRetry(nil): got true")
	}
	if !shouldRetry(&APIError{StatusCode: http.StatusInternalServerError}) {
		t.Fatalf("shouldRetry(500): got false")
	}
	if shouldRetry(&APIError{StatusCode: http.StatusTooManyRequests}) {
		t.Fatalf("shouldRetry(429): got true")
	}
	if shouldRetry(errors.New("plain")) {
		t.Fatalf("shouldRetry(plain): got true")
	}
}

func TestRetryBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	if got := retryBackoff(base, 0); got != base {
		t.Fatalf("attempt 0: got %v", got)
	}
	if got := retryBackoff(base, 2); got != 4*base {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := retryBackoff(0, 1); got != 0 {
		t.Fatalf("zero base: got %v", got)
	}
	if got := retryBackoff(base, -1); got != 0 {
		t.Fatalf("negative attempt: got %v", got)
	}
}

func TestSDKBaseURL(t *testing.T) {
	if got := sdkBaseURL("https://api.anthropic.com/v1"); got != "https://api.anthropic.com" {
		t.Fatalf("sdkBaseURL: got %q", got)
	}
	if got := sdkBaseURL("https://proxy.test"); got != "https://proxy.test" {
		t.Fatalf("sdkBaseURL: got %q", got)
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepWithContext: got %v", err)
	}
	if err := sleepWithContext(ctx, 0); err != nil {
		t.Fatalf("sleepWithContext(0): got %v", err)
	}
}

func TestText(t *testing.T) {
	resp := &Response{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "other", Text: "skipped"},
		{Type: "text", Text: "world"},
	}}
	if got := Text(resp); got != "hello world" {
		t.Fatalf("Text: got %q", got)
	}
	if got := Text(nil); got != "" {
		t.Fatalf("Text(nil): got %q", got)
	}
}
