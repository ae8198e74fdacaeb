package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages patch state backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Applied is one patch committed to a target archive.
type Applied struct {
	Target    string
	Patch     string
	Digest    string
	Records   int
	RunID     string
	AppliedAt time.Time
}

// Run summarizes one patch run.
type Run struct {
	ID           string
	Target       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      string
	Applied      int
	Failed       int
	ErrorMessage string
}

// Open initializes or connects to the state database and applies
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Watermark returns the last fully applied patch for target, or "" when
// nothing has been applied.
func (s *Store) Watermark(ctx context.Context, target string) (string, error) {
	var patch string
	err := s.db.QueryRowContext(ctx, `SELECT patch FROM watermarks WHERE target = ?`, target).Scan(&patch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read watermark: %w", err)
	}
	return patch, nil
}

// Advance records a committed patch and moves the target's watermark to it.
func (s *Store) Advance(ctx context.Context, a Applied) error {
	if a.Target == "" || a.Patch == "" {
		return errors.New("state: target and patch are required")
	}
	if a.AppliedAt.IsZero() {
		a.AppliedAt = time.Now()
	}
	timestamp := a.AppliedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin advance tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO applied_patches (target, patch, digest, records, run_id, applied_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		a.Target, a.Patch, nullableString(a.Digest), a.Records, nullableString(a.RunID), timestamp,
	); err != nil {
		return fmt.Errorf("insert applied patch: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO watermarks (target, patch, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(target) DO UPDATE SET patch = excluded.patch, updated_at = excluded.updated_at`,
		a.Target, a.Patch, timestamp,
	); err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit advance: %w", err)
	}
	return nil
}

// Reset clears the watermark for target so the next run applies every
// patch again. History is kept.
func (s *Store) Reset(ctx context.Context, target string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watermarks WHERE target = ?`, target); err != nil {
		return fmt.Errorf("reset watermark: %w", err)
	}
	return nil
}

// History returns the most recent applied patches for target, newest
// first. A limit of zero returns all rows.
func (s *Store) History(ctx context.Context, target string, limit int) ([]Applied, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target, patch, digest, records, run_id, applied_at
         FROM applied_patches WHERE target = ? ORDER BY id DESC LIMIT ?`,
		target, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var (
			a         Applied
			digest    sql.NullString
			runID     sql.NullString
			appliedAt string
		)
		if err := rows.Scan(&a.Target, &a.Patch, &digest, &a.Records, &runID, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		a.Digest = digest.String
		a.RunID = runID.String
		a.AppliedAt = parseTime(appliedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// RecordRun stores or replaces the summary of a run.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return errors.New("state: run id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, target, started_at, finished_at, outcome, applied, failed, error_message)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             finished_at = excluded.finished_at, outcome = excluded.outcome,
             applied = excluded.applied, failed = excluded.failed,
             error_message = excluded.error_message`,
		r.ID,
		r.Target,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(r.FinishedAt),
		r.Outcome,
		r.Applied,
		r.Failed,
		nullableString(r.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run for target, or nil when there is none.
func (s *Store) LastRun(ctx context.Context, target string) (*Run, error) {
	var (
		r          Run
		startedAt  string
		finishedAt sql.NullString
		errMsg     sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, target, started_at, finished_at, outcome, applied, failed, error_message
         FROM runs WHERE target = ? ORDER BY started_at DESC LIMIT 1`,
		target,
	).Scan(&r.ID, &r.Target, &startedAt, &finishedAt, &r.Outcome, &r.Applied, &r.Failed, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last run: %w", err)
	}
	r.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		r.FinishedAt = parseTime(finishedAt.String)
	}
	r.ErrorMessage = errMsg.String
	return &r, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
