package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hazylabs/cartridges/internal/dataset"
	"github.com/hazylabs/cartridges/internal/nested"
	"github.com/hazylabs/cartridges/internal/store"
)

const defaultListLimit = 20

type datasetInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	LatestRun   *store.RunRecord `json:"latest_run,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListDatasets(c *gin.Context) {
	names := dataset.Names()
	out := make([]datasetInfo, 0, len(names))
	for _, name := range names {
		info := datasetInfo{Name: name}
		if ds, err := dataset.FromConfig(name, s.config); err == nil {
			info.Description = ds.Description()
		}
		if s.store != nil {
			if history, err := s.store.GetDatasetHistory(c.Request.Context(), name, 1); err == nil && len(history) > 0 {
				info.LatestRun = history[0]
			}
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), defaultListLimit)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	since, err := parseTimeParam(c.Query("since"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	until, err := parseTimeParam(c.Query("until"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	filter := store.RunFilter{
		Dataset: strings.TrimSpace(c.Query("dataset")),
		Model:   strings.TrimSpace(c.Query("model")),
		Since:   since,
		Until:   until,
		Limit:   limit,
	}

	runs, err := s.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleGetRunSamples(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	samples, err := s.store.GetSamples(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, samples)
}

// handleGetRunMetrics returns a run's summary as a flat metric row,
// with delimiter-joined column names.
func (s *Server) handleGetRunMetrics(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}

	summary := map[string]any{
		"run": map[string]any{
			"id":      run.ID,
			"dataset": run.Dataset,
			"model":   run.Model,
		},
		"samples": map[string]any{
			"total":  run.TotalSamples,
			"passed": run.PassedSamples,
			"failed": run.FailedSamples,
		},
		"score": run.Score,
		"usage": map[string]any{
			"tokens":     run.TotalTokens,
			"latency_ms": run.TotalLatency,
		},
	}
	if len(run.Config) > 0 {
		summary["config"] = run.Config
	}

	c.JSON(http.StatusOK, nested.Flatten(summary, nested.DefaultDelimiter))
}

func (s *Server) handleGetDatasetHistory(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	name := strings.TrimSpace(c.Param("dataset"))
	if name == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing dataset name"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), defaultListLimit)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	runs, err := s.store.GetDatasetHistory(c.Request.Context(), name, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, runs)
}

func (s *Server) lookupRun(c *gin.Context) (*store.RunRecord, bool) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return nil, false
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return nil, false
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return run, true
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("limit must be > 0")
	}
	return v, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	layouts := []string{time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (expected RFC3339 or YYYY-MM-DD)", raw)
}
