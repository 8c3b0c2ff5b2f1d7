package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path"
	"reflect"
	"sort"
	"strings"

	"github.com/hazylabs/cartridges/internal/nested"
)

// Run is run metadata with its config and summary metrics.
type Run struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Project string         `json:"project"`
	User    string         `json:"user"`
	State   string         `json:"state"`
	Config  map[string]any `json:"config"`
	Summary map[string]any `json:"summary"`
}

// RunQuery filters a run listing. ConfigFilters match against run config
// keys; a slice value matches any of its entries. RunIDs accepts either
// bare run ids or full entity/project/id paths.
type RunQuery struct {
	ConfigFilters map[string]any
	RunIDs        []string
}

// Columns dropped from Rows output. The tracking service stores
// internal metadata and raw prediction blobs under these keys and
// neither serializes into a tabular cell.
var droppedColumns = []string{"_wandb", "val_preds"}

// FetchRuns lists the runs of the client's project matching the query.
func (c *Client) FetchRuns(ctx context.Context, query RunQuery) ([]Run, error) {
	if err := c.validate(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		Project string         `json:"project"`
		Entity  string         `json:"entity,omitempty"`
		Filters map[string]any `json:"filters,omitempty"`
	}{
		Project: c.project,
		Entity:  c.entity,
		Filters: buildFilters(query),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tracker: marshal run query: %w", err)
	}

	var out struct {
		Runs []Run `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/runs/query", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func buildFilters(query RunQuery) map[string]any {
	filters := map[string]any{}

	keys := make([]string, 0, len(query.ConfigFilters))
	for k := range query.ConfigFilters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := query.ConfigFilters[k]
		if isSlice(v) {
			filters["config."+k] = map[string]any{"$in": v}
		} else {
			filters["config."+k] = v
		}
	}

	if len(query.RunIDs) > 0 {
		// Accept full run paths like entity/project/id and reduce them
		// to the bare id.
		ids := make([]string, 0, len(query.RunIDs))
		for _, id := range query.RunIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			ids = append(ids, path.Base(id))
		}
		if len(ids) > 0 {
			filters["name"] = map[string]any{"$in": ids}
		}
	}

	if len(filters) == 0 {
		return nil
	}
	return filters
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Rows flattens runs into tabular rows: identity columns plus the
// flattened config and summary. Columns that are NaN in every row are
// dropped, as are the internal columns the service cannot serialize.
func Rows(runs []Run) []map[string]any {
	rows := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		row := map[string]any{
			"run_id":  run.ID,
			"name":    run.Name,
			"project": run.Project,
			"user":    run.User,
			"state":   run.State,
		}
		if len(run.Config) > 0 {
			for k, v := range nested.Flatten(run.Config, nested.DefaultDelimiter) {
				row[k] = v
			}
		}
		if len(run.Summary) > 0 {
			for k, v := range nested.Flatten(run.Summary, nested.DefaultDelimiter) {
				row[k] = v
			}
		}
		for _, dropped := range droppedColumns {
			for k := range row {
				if k == dropped || strings.HasPrefix(k, dropped+nested.DefaultDelimiter) {
					delete(row, k)
				}
			}
		}
		rows = append(rows, row)
	}
	return dropAllNaNColumns(rows)
}

// dropAllNaNColumns removes columns whose value is NaN (or absent) in
// every row.
func dropAllNaNColumns(rows []map[string]any) []map[string]any {
	live := map[string]bool{}
	for _, row := range rows {
		for k, v := range row {
			if !isNaNValue(v) {
				live[k] = true
			}
		}
	}
	for _, row := range rows {
		for k, v := range row {
			if !live[k] && isNaNValue(v) {
				delete(row, k)
			}
		}
	}
	return rows
}

func isNaNValue(v any) bool {
	switch f := v.(type) {
	case float64:
		return math.IsNaN(f)
	case float32:
		return math.IsNaN(float64(f))
	}
	return false
}
