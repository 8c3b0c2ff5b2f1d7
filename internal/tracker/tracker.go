// Package tracker is a client for an experiment-tracking service. It
// fetches run metadata and summaries, flattens them into tabular rows,
// and downloads run artifacts into a local cache.
//
// A Client carries its session settings explicitly; there is no
// process-global session state.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hazylabs/cartridges/internal/config"
)

const (
	defaultBaseURL             = "https://api.wandb.ai"
	defaultProject             = "cartridges"
	defaultCacheDir            = "./artifacts"
	defaultTimeout             = 60 * time.Second
	defaultDownloadConcurrency = 4
)

// Client talks to an experiment-tracking service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	project     string
	entity      string
	cacheDir    string
	concurrency int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDownloadConcurrency bounds concurrent artifact downloads.
func WithDownloadConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewClient builds a Client from the tracker section of the config.
func NewClient(cfg config.TrackerConfig, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		project:     strings.TrimSpace(cfg.Project),
		entity:      strings.TrimSpace(cfg.Entity),
		cacheDir:    strings.TrimSpace(cfg.CacheDir),
		concurrency: defaultDownloadConcurrency,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.project == "" {
		c.project = defaultProject
	}
	if c.cacheDir == "" {
		c.cacheDir = defaultCacheDir
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Project returns the project the client is scoped to.
func (c *Client) Project() string {
	if c == nil {
		return ""
	}
	return c.project
}

// APIError is a non-2xx response from the tracking service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "tracker: unknown api error"
	}
	if e.Message == "" {
		return fmt.Sprintf("tracker: api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("tracker: api error (status %d): %s", e.StatusCode, e.Message)
}

// doJSON issues a request with an optional JSON body and decodes a JSON
// response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("tracker: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracker: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tracker: decode %s response: %w", path, err)
	}
	return nil
}

func apiErrorFromResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(raw) > 0 {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			switch {
			case payload.Error != "":
				apiErr.Message = payload.Error
			case payload.Message != "":
				apiErr.Message = payload.Message
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
	}
	return apiErr
}

func (c *Client) validate(ctx context.Context) error {
	if c == nil {
		return errors.New("tracker: nil client")
	}
	if ctx == nil {
		return errors.New("tracker: nil context")
	}
	return nil
}
