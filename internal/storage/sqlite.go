package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteLedger implements RunLedger using SQLite.
type SQLiteLedger struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db, path: dbPath}, nil
}

func initSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		documents INTEGER NOT NULL DEFAULT 0,
		units INTEGER NOT NULL DEFAULT 0,
		indexed_units INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_index_runs_started_at ON index_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

const runColumns = `id, trigger_source, status, documents, units, indexed_units, error, started_at, finished_at`

// CreateRun inserts a run. An empty ID is assigned a UUID and a zero StartedAt is set to now.
func (s *SQLiteLedger) CreateRun(ctx context.Context, run *models.IndexRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunRunning
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO index_runs (`+runColumns+`)
		 VALUES (:id, :trigger_source, :status, :documents, :units, :indexed_units, :error, :started_at, :finished_at)`,
		run,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run. A nil FinishedAt is set to now.
func (s *SQLiteLedger) FinishRun(ctx context.Context, run *models.IndexRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	res, err := s.db.NamedExecContext(ctx,
		`UPDATE index_runs SET status = :status, documents = :documents, units = :units,
		 indexed_units = :indexed_units, error = :error, finished_at = :finished_at WHERE id = :id`,
		run,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *SQLiteLedger) GetRun(ctx context.Context, id string) (*models.IndexRun, error) {
	var run models.IndexRun
	err := s.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM index_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRun returns the most recently started run, or nil if there is none.
func (s *SQLiteLedger) LatestRun(ctx context.Context) (*models.IndexRun, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit returns all runs.
func (s *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]*models.IndexRun, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []*models.IndexRun
	err := s.db.SelectContext(ctx, &runs,
		`SELECT `+runColumns+` FROM index_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// CountRuns returns the number of recorded runs.
func (s *SQLiteLedger) CountRuns(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM index_runs`); err != nil {
		return 0, err
	}
	return n, nil
}

// MarkInterrupted fails every run still marked running, e.g. after a crash. Returns how many were updated.
func (s *SQLiteLedger) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE index_runs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		models.RunFailed, "interrupted", time.Now().UTC(), models.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// SizeBytes returns the on-disk size of the database including its WAL files.
func (s *SQLiteLedger) SizeBytes() int64 {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
