package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const tableFileName = "table.table.json"

// ArtifactDir returns the local cache directory for an artifact.
func (c *Client) ArtifactDir(name string) string {
	if c == nil {
		return ""
	}
	return filepath.Join(c.cacheDir, filepath.FromSlash(name))
}

// DownloadArtifacts fetches the named artifacts into the local cache
// with a bounded worker pool. Pickle artifacts (.pkl) are skipped; an
// artifact already present in the cache is not fetched again. The first
// download error is returned after all workers finish.
func (c *Client) DownloadArtifacts(ctx context.Context, names []string) error {
	if err := c.validate(ctx); err != nil {
		return err
	}

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.HasSuffix(name, ".pkl") {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			record(ctx.Err())
			wg.Wait()
			return firstErr
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.downloadArtifact(ctx, name); err != nil {
				record(fmt.Errorf("tracker: download artifact %q: %w", name, err))
			}
		}(name)
	}

	wg.Wait()
	return firstErr
}

func (c *Client) downloadArtifact(ctx context.Context, name string) error {
	dir := c.ArtifactDir(name)
	if cached(dir) {
		return nil
	}

	files, err := c.artifactManifest(ctx, name)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("empty artifact manifest")
	}

	for _, file := range files {
		if err := c.downloadArtifactFile(ctx, name, file, dir); err != nil {
			return err
		}
	}
	return nil
}

// cached reports whether the artifact directory already holds files.
func cached(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func (c *Client) artifactManifest(ctx context.Context, name string) ([]string, error) {
	var out struct {
		Files []string `json:"files"`
	}
	p := "/api/v1/artifacts/" + url.PathEscape(name) + "/manifest"
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *Client) downloadArtifactFile(ctx context.Context, artifact, file, dir string) error {
	rel := filepath.FromSlash(file)
	if strings.Contains(file, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("unsafe file path %q", file)
	}

	p := "/api/v1/artifacts/" + url.PathEscape(artifact) + "/files/" + url.PathEscape(file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+p, nil)
	if err != nil {
		return fmt.Errorf("tracker: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracker: fetch file %q: %w", file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}

	dst := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("tracker: create artifact dir: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("tracker: create file %q: %w", dst, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("tracker: write file %q: %w", dst, err)
	}
	return nil
}

// Table is a logged table artifact: ordered columns and row-major data.
type Table struct {
	ArtifactID string
	Columns    []string
	Data       [][]any
}

// Rows returns the table as one map per row, each tagged with the
// artifact id it came from.
func (t *Table) Rows() []map[string]any {
	if t == nil {
		return nil
	}
	rows := make([]map[string]any, 0, len(t.Data))
	for _, rec := range t.Data {
		row := map[string]any{"artifact_id": t.ArtifactID}
		for i, col := range t.Columns {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// FetchTable downloads a table artifact and parses its table file. The
// artifact id may be bare, in which case it is qualified with the
// client's entity and project.
func (c *Client) FetchTable(ctx context.Context, artifactID string) (*Table, error) {
	if err := c.validate(ctx); err != nil {
		return nil, err
	}
	artifactID = strings.TrimSpace(artifactID)
	if artifactID == "" {
		return nil, errors.New("tracker: empty artifact id")
	}
	if !strings.Contains(artifactID, "/") {
		if c.entity != "" {
			artifactID = c.entity + "/" + c.project + "/" + artifactID
		} else {
			artifactID = c.project + "/" + artifactID
		}
	}

	if err := c.downloadArtifact(ctx, artifactID); err != nil {
		return nil, fmt.Errorf("tracker: download artifact %q: %w", artifactID, err)
	}

	tablePath, err := findTableFile(c.ArtifactDir(artifactID))
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(tablePath)
	if err != nil {
		return nil, fmt.Errorf("tracker: read table file: %w", err)
	}

	var payload struct {
		Columns []string `json:"columns"`
		Data    [][]any  `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("tracker: parse table file %q: %w", tablePath, err)
	}

	return &Table{
		ArtifactID: artifactID,
		Columns:    payload.Columns,
		Data:       payload.Data,
	}, nil
}

// findTableFile searches the artifact directory recursively for the
// table file.
func findTableFile(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == tableFileName {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tracker: scan artifact dir %q: %w", dir, err)
	}
	if found == "" {
		return "", fmt.Errorf("tracker: no %s in artifact dir %q", tableFileName, dir)
	}
	return found, nil
}
