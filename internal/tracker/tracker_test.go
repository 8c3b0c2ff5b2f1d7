package tracker

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hazylabs/cartridges/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.TrackerConfig{
		Project:  "cartridges",
		Entity:   "hazy",
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		CacheDir: t.TempDir(),
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewClient(config.TrackerConfig{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.baseURL != defaultBaseURL {
		t.Fatalf("baseURL: got %q", c.baseURL)
	}
	if c.Project() != defaultProject {
		t.Fatalf("project: got %q", c.Project())
	}
	if c.cacheDir != defaultCacheDir {
		t.Fatalf("cacheDir: got %q", c.cacheDir)
	}
	if c.concurrency != defaultDownloadConcurrency {
		t.Fatalf("concurrency: got %d", c.concurrency)
	}
}

func TestFetchRuns(t *testing.T) {
	t.Parallel()

	var gotPayload map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs/query" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header: got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"runs": []map[string]any{
				{
					"id":      "abc123",
					"name":    "train-1",
					"project": "cartridges",
					"user":    "alice",
					"state":   "finished",
					"config":  map[string]any{"lr": 0.001},
					"summary": map[string]any{"loss": 0.5},
				},
			},
		})
	})
	c, _ := newTestClient(t, handler)

	runs, err := c.FetchRuns(context.Background(), RunQuery{
		ConfigFilters: map[string]any{
			"model":   "llama",
			"dataset": []any{"mmlu", "qasper"},
		},
		RunIDs: []string{"hazy/cartridges/abc123", "def456"},
	})
	if err != nil {
		t.Fatalf("FetchRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "abc123" {
		t.Fatalf("runs: %+v", runs)
	}
	if runs[0].Config["lr"] != 0.001 {
		t.Fatalf("config: %+v", runs[0].Config)
	}

	filters, ok := gotPayload["filters"].(map[string]any)
	if !ok {
		t.Fatalf("filters missing: %+v", gotPayload)
	}
	if filters["config.model"] != "llama" {
		t.Fatalf("config.model filter: %v", filters["config.model"])
	}
	in, ok := filters["config.dataset"].(map[string]any)
	if !ok || len(in["$in"].([]any)) != 2 {
		t.Fatalf("config.dataset filter: %v", filters["config.dataset"])
	}
	nameFilter, ok := filters["name"].(map[string]any)
	if !ok {
		t.Fatalf("name filter: %v", filters["name"])
	}
	ids := nameFilter["$in"].([]any)
	if len(ids) != 2 || ids[0] != "abc123" || ids[1] != "def456" {
		t.Fatalf("run ids: %v", ids)
	}
}

func TestFetchRunsAPIError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})
	c, _ := newTestClient(t, handler)

	_, err := c.FetchRuns(context.Background(), RunQuery{})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err: got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Message != "bad key" {
		t.Fatalf("apiErr: %+v", apiErr)
	}
}

func TestRows(t *testing.T) {
	t.Parallel()

	runs := []Run{
		{
			ID:      "r1",
			Name:    "run-one",
			Project: "cartridges",
			User:    "alice",
			State:   "finished",
			Config: map[string]any{
				"model": map[string]any{"name": "llama", "layers": 32},
			},
			Summary: map[string]any{
				"loss":      0.25,
				"only_nan":  math.NaN(),
				"_wandb":    map[string]any{"runtime": 12},
				"val_preds": []any{"a", "b"},
			},
		},
		{
			ID:      "r2",
			Name:    "run-two",
			Project: "cartridges",
			User:    "bob",
			State:   "running",
			Summary: map[string]any{
				"loss":     0.5,
				"only_nan": math.NaN(),
				"partial":  1.0,
			},
		},
	}

	rows := Rows(runs)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d", len(rows))
	}

	if rows[0]["run_id"] != "r1" || rows[0]["state"] != "finished" {
		t.Fatalf("identity columns: %+v", rows[0])
	}
	if rows[0]["model.name"] != "llama" {
		t.Fatalf("flattened config: %+v", rows[0])
	}
	if rows[0]["loss"] != 0.25 {
		t.Fatalf("flattened summary: %+v", rows[0])
	}

	// NaN-everywhere columns are dropped; column present in one row stays.
	if _, ok := rows[0]["only_nan"]; ok {
		t.Fatalf("only_nan not dropped: %+v", rows[0])
	}
	if _, ok := rows[1]["only_nan"]; ok {
		t.Fatalf("only_nan not dropped: %+v", rows[1])
	}
	if rows[1]["partial"] != 1.0 {
		t.Fatalf("partial column: %+v", rows[1])
	}

	// Internal columns never serialize into a table.
	for k := range rows[0] {
		if k == "_wandb" || k == "_wandb.runtime" || k == "val_preds" || k == "val_preds.0" {
			t.Fatalf("internal column kept: %q", k)
		}
	}
}

func artifactHandler(t *testing.T, files map[string]string, hits *int32) http.Handler {
	t.Helper()

	manifest := make([]string, 0, len(files))
	for name := range files {
		manifest = append(manifest, name)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if strings.HasSuffix(r.URL.Path, "/manifest") {
			_ = json.NewEncoder(w).Encode(map[string]any{"files": manifest})
			return
		}
		for name, content := range files {
			if strings.HasSuffix(r.URL.Path, "/files/"+name) {
				_, _ = w.Write([]byte(content))
				return
			}
		}
		http.NotFound(w, r)
	})
}

func TestDownloadArtifacts(t *testing.T) {
	t.Parallel()

	var hits int32
	files := map[string]string{
		"dataset/part-0.jsonl": `{"ok":true}`,
		"meta.json":            `{"rows":1}`,
	}
	c, _ := newTestClient(t, artifactHandler(t, files, &hits))

	names := []string{"run-abc-table:v0", "legacy.pkl", ""}
	if err := c.DownloadArtifacts(context.Background(), names); err != nil {
		t.Fatalf("DownloadArtifacts: %v", err)
	}

	dir := c.ArtifactDir("run-abc-table:v0")
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%s: got %q want %q", name, got, want)
		}
	}

	// Cached artifacts are not fetched again.
	before := atomic.LoadInt32(&hits)
	if err := c.DownloadArtifacts(context.Background(), []string{"run-abc-table:v0"}); err != nil {
		t.Fatalf("DownloadArtifacts cached: %v", err)
	}
	if after := atomic.LoadInt32(&hits); after != before {
		t.Fatalf("cached artifact refetched: %d -> %d requests", before, after)
	}
}

func TestDownloadArtifactsError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c, _ := newTestClient(t, handler)

	err := c.DownloadArtifacts(context.Background(), []string{"missing:v0"})
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestFetchTable(t *testing.T) {
	t.Parallel()

	table := map[string]any{
		"columns": []string{"question", "answer", "score"},
		"data": [][]any{
			{"q1", "a1", 1.0},
			{"q2", "a2", 0.0},
		},
	}
	raw, _ := json.Marshal(table)
	files := map[string]string{
		"media/table/table.table.json": string(raw),
	}
	c, _ := newTestClient(t, artifactHandler(t, files, nil))

	got, err := c.FetchTable(context.Background(), "run-xyz-table:v1")
	if err != nil {
		t.Fatalf("FetchTable: %v", err)
	}
	if got.ArtifactID != "hazy/cartridges/run-xyz-table:v1" {
		t.Fatalf("ArtifactID: got %q", got.ArtifactID)
	}
	if len(got.Columns) != 3 || got.Columns[0] != "question" {
		t.Fatalf("Columns: %v", got.Columns)
	}
	if len(got.Data) != 2 {
		t.Fatalf("Data: %v", got.Data)
	}

	rows := got.Rows()
	if len(rows) != 2 {
		t.Fatalf("Rows: %v", rows)
	}
	if rows[0]["question"] != "q1" || rows[0]["score"] != 1.0 {
		t.Fatalf("row[0]: %+v", rows[0])
	}
	if rows[1]["artifact_id"] != "hazy/cartridges/run-xyz-table:v1" {
		t.Fatalf("artifact tag: %+v", rows[1])
	}
}

func TestFetchTableMissingTableFile(t *testing.T) {
	t.Parallel()

	files := map[string]string{"meta.json": `{}`}
	c, _ := newTestClient(t, artifactHandler(t, files, nil))

	if _, err := c.FetchTable(context.Background(), "run-no-table:v0"); err == nil {
		t.Fatal("expected error when table file is absent")
	}
}

func TestClientValidation(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	if _, err := nilClient.FetchRuns(context.Background(), RunQuery{}); err == nil {
		t.Fatal("nil client: expected error")
	}

	c, err := NewClient(config.TrackerConfig{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.FetchRuns(nil, RunQuery{}); err == nil {
		t.Fatal("nil context: expected error")
	}
	if _, err := c.FetchTable(context.Background(), "  "); err == nil {
		t.Fatal("empty artifact id: expected error")
	}
}
