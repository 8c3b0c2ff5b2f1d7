package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultHistoryLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt      *sql.Stmt
	getRunStmt         *sql.Stmt
	samplesByRunStmt   *sql.Stmt
	datasetHistoryStmt *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// An in-memory database exists per connection; the pool must
		// not hand out a second one.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			dataset TEXT NOT NULL,
			model TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			total_samples INTEGER NOT NULL,
			passed_samples INTEGER NOT NULL,
			failed_samples INTEGER NOT NULL,
			score REAL NOT NULL,
			total_tokens INTEGER NOT NULL,
			total_latency INTEGER NOT NULL,
			config_json TEXT,
			samples BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

const runColumns = `id, dataset, model, started_at, finished_at, total_samples,
	passed_samples, failed_samples, score, total_tokens, total_latency, config_json`

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, dataset, model, started_at, finished_at, total_samples,
					passed_samples, failed_samples, score, total_tokens, total_latency,
					config_json, samples
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert run: %w",
		},
		{
			dst:    &s.getRunStmt,
			query:  `SELECT ` + runColumns + ` FROM runs WHERE id = ?`,
			errFmt: "store: prepare get run: %w",
		},
		{
			dst:    &s.samplesByRunStmt,
			query:  `SELECT samples FROM runs WHERE id = ?`,
			errFmt: "store: prepare get samples: %w",
		},
		{
			dst: &s.datasetHistoryStmt,
			query: `
				SELECT ` + runColumns + ` FROM runs
				WHERE dataset = ?
				ORDER BY started_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare dataset history: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}

	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertRunStmt,
		s.getRunStmt,
		s.samplesByRunStmt,
		s.datasetHistoryStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists a run summary with its per-sample results.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}

	id := strings.TrimSpace(run.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}
	if strings.TrimSpace(run.Dataset) == "" {
		return errors.New("store: empty dataset")
	}
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return errors.New("store: missing run timestamps")
	}

	cfgJSON := []byte("null")
	if run.Config != nil {
		var err error
		cfgJSON, err = json.Marshal(run.Config)
		if err != nil {
			return fmt.Errorf("store: marshal run config: %w", err)
		}
	}

	samplesJSON, err := json.Marshal(run.Samples)
	if err != nil {
		return fmt.Errorf("store: marshal samples: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertRunStmt)
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		id,
		run.Dataset,
		run.Model,
		run.StartedAt.UTC().UnixMilli(),
		run.FinishedAt.UTC().UnixMilli(),
		run.TotalSamples,
		run.PassedSamples,
		run.FailedSamples,
		run.Score,
		run.TotalTokens,
		run.TotalLatency,
		string(cfgJSON),
		samplesJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run: %w", err)
	}
	return nil
}

// GetRun loads a run summary by id, without its samples.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	row := s.getRunStmt.QueryRowContext(ctx, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns run summaries matching the filter.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	dataset := strings.TrimSpace(filter.Dataset)
	model := strings.TrimSpace(filter.Model)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + runColumns + ` FROM runs WHERE 1=1`)

	var args []any
	if dataset != "" {
		sb.WriteString(` AND dataset = ?`)
		args = append(args, dataset)
	}
	if model != "" {
		sb.WriteString(` AND model = ?`)
		args = append(args, model)
	}
	if !filter.Since.IsZero() {
		sb.WriteString(` AND started_at >= ?`)
		args = append(args, filter.Since.UTC().UnixMilli())
	}
	if !filter.Until.IsZero() {
		sb.WriteString(` AND started_at <= ?`)
		args = append(args, filter.Until.UTC().UnixMilli())
	}
	sb.WriteString(` ORDER BY started_at DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

// GetSamples loads the per-sample results of a run.
func (s *SQLiteStore) GetSamples(ctx context.Context, runID string) ([]SampleRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, errors.New("store: empty run id")
	}

	row := s.samplesByRunStmt.QueryRowContext(ctx, runID)
	var samplesJSON []byte
	if err := row.Scan(&samplesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get samples: %w", err)
	}

	samples, err := decodeSamples(samplesJSON)
	if err != nil {
		return nil, fmt.Errorf("store: decode samples: %w", err)
	}
	return samples, nil
}

// GetDatasetHistory returns recent runs over the given dataset.
func (s *SQLiteStore) GetDatasetHistory(ctx context.Context, dataset string, limit int) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return nil, errors.New("store: empty dataset")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.datasetHistoryStmt.QueryContext(ctx, dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("store: dataset history: %w", err)
	}
	defer rows.Close()

	return scanRunRows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		id            string
		dataset       string
		model         string
		startedAtMS   int64
		finishedAtMS  int64
		totalSamples  int
		passedSamples int
		failedSamples int
		score         float64
		totalTokens   int
		totalLatency  int64
		cfgJSON       sql.NullString
	)
	if err := row.Scan(
		&id,
		&dataset,
		&model,
		&startedAtMS,
		&finishedAtMS,
		&totalSamples,
		&passedSamples,
		&failedSamples,
		&score,
		&totalTokens,
		&totalLatency,
		&cfgJSON,
	); err != nil {
		return nil, err
	}

	cfg, err := decodeConfig(cfgJSON)
	if err != nil {
		return nil, fmt.Errorf("store: decode run config: %w", err)
	}

	return &RunRecord{
		ID:            id,
		Dataset:       dataset,
		Model:         model,
		StartedAt:     time.UnixMilli(startedAtMS).UTC(),
		FinishedAt:    time.UnixMilli(finishedAtMS).UTC(),
		TotalSamples:  totalSamples,
		PassedSamples: passedSamples,
		FailedSamples: failedSamples,
		Score:         score,
		TotalTokens:   totalTokens,
		TotalLatency:  totalLatency,
		Config:        cfg,
	}, nil
}

func scanRunRows(rows *sql.Rows) ([]*RunRecord, error) {
	var out []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan run rows: %w", err)
	}
	return out, nil
}

func decodeConfig(cfgJSON sql.NullString) (map[string]any, error) {
	if !cfgJSON.Valid {
		return nil, nil
	}
	raw := strings.TrimSpace(cfgJSON.String)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeSamples(samplesJSON []byte) ([]SampleRecord, error) {
	if len(samplesJSON) == 0 {
		return nil, nil
	}
	var out []SampleRecord
	if err := json.Unmarshal(samplesJSON, &out); err != nil {
		return nil, err
	}
	return out, nil
}
