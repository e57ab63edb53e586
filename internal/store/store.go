// Package store is the durable job record, a single sqlite table keyed
// by job id. Persistence is a reliability enhancement, not a correctness
// dependency: the scheduler logs and discards every error this package
// returns, and a disabled store turns every operation into a no-op so
// the rest of the system behaves identically without durability.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mediacut/highlightd/internal/types"
)

// ErrNotFound is returned by Get for unknown ids (and for every id when
// the store is disabled).
var ErrNotFound = errors.New("job not found")

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates the database file (and its directory) if needed and
// ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  payload TEXT,
  progress TEXT,
  output_dir TEXT,
  error TEXT,
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Disabled returns a store whose every operation is a no-op reporting
// success or absence.
func Disabled() *Store {
	return &Store{}
}

// Enabled reports whether the store actually persists anything.
func (s *Store) Enabled() bool { return s != nil && s.db != nil }

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Close()
}

// Upsert writes the job's current state. startedAt is set on the first
// transition into processing and completedAt on the first transition
// into a terminal status; neither is ever overwritten afterwards.
func (s *Store) Upsert(ctx context.Context, job types.Job) error {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	now := time.Now().UnixMilli()
	created := job.CreatedAt.UnixMilli()
	if job.CreatedAt.IsZero() {
		created = now
	}

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, status, payload, progress, output_dir, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  payload = excluded.payload,
  progress = excluded.progress,
  output_dir = excluded.output_dir,
  error = excluded.error,
  updated_at = excluded.updated_at`,
		job.ID, string(job.Status), string(payload), string(progress),
		job.OutputDir, nullable(job.Error), created, now,
	); err != nil {
		return err
	}

	if job.Status == types.JobStatusProcessing {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET started_at = ? WHERE id = ? AND started_at IS NULL`, now, job.ID); err != nil {
			return err
		}
	}
	if job.Status.Terminal() {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET completed_at = ? WHERE id = ? AND completed_at IS NULL`, now, job.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (types.Job, error) {
	if !s.Enabled() {
		return types.Job{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, ErrNotFound
	}
	return job, err
}

// ListByStatus returns up to limit jobs with the given status, newest
// first.
func (s *Store) ListByStatus(ctx context.Context, status types.JobStatus, limit int) ([]types.Job, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM jobs WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListPending returns pending and processing jobs oldest first, the
// order restart recovery re-enqueues them in.
func (s *Store) ListPending(ctx context.Context) ([]types.Job, error) {
	if !s.Enabled() {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM jobs WHERE status IN (?, ?) ORDER BY created_at ASC`,
		string(types.JobStatusPending), string(types.JobStatusProcessing))
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PurgeOlderThan deletes terminal jobs whose completedAt precedes
// now-retention, returning the number removed.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE status IN (?, ?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(types.JobStatusCompleted), string(types.JobStatusError),
		string(types.JobStatusTimeout), string(types.JobStatusCancelled),
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectColumns = `SELECT id, status, payload, progress, output_dir, error, created_at, started_at, completed_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (types.Job, error) {
	var (
		job                    types.Job
		status                 string
		payload, progress      sql.NullString
		outputDir, jobErr      sql.NullString
		createdMs              int64
		startedMs, completedMs sql.NullInt64
	)
	if err := row.Scan(&job.ID, &status, &payload, &progress, &outputDir, &jobErr,
		&createdMs, &startedMs, &completedMs); err != nil {
		return types.Job{}, err
	}
	job.Status = types.JobStatus(status)
	job.CreatedAt = time.UnixMilli(createdMs)
	if payload.Valid && payload.String != "" {
		// a corrupt payload blob loses the payload, not the record
		_ = json.Unmarshal([]byte(payload.String), &job.Payload)
	}
	if progress.Valid && progress.String != "" {
		_ = json.Unmarshal([]byte(progress.String), &job.Progress)
	}
	job.OutputDir = outputDir.String
	job.Error = jobErr.String
	if startedMs.Valid {
		t := time.UnixMilli(startedMs.Int64)
		job.StartedAt = &t
	}
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64)
		job.CompletedAt = &t
	}
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]types.Job, error) {
	defer rows.Close()
	var out []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
