package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vidsight/internal/config"
	"vidsight/internal/pipeline"
	"vidsight/internal/step"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrNotFound indicates no job exists with the requested identifier.
var ErrNotFound = errors.New("job not found")

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the job database in the configured data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return openAt(filepath.Join(cfg.Paths.DataDir, "jobs.db"))
}

func openAt(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
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

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to recreate)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Create inserts a new Pending job for the submitted source and options.
func (s *Store) Create(ctx context.Context, sourceURL string, options map[string]string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		SourceURL: strings.TrimSpace(sourceURL),
		Options:   options,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if job.SourceURL == "" {
		return nil, errors.New("source url must not be empty")
	}

	optionsJSON, err := marshalNullable(job.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	err = retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO jobs (id, source_url, options_json, status, progress, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?)`,
			job.ID, job.SourceURL, optionsJSON, job.Status,
			formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID fetches a single job.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, err
}

// Update applies mutate to the stored job inside one transaction, giving the
// caller atomic read-modify-write semantics. The store stamps updated_at on
// every call and completed_at exactly once, when the job first enters a
// terminal state.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	var updated *Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, selectColumns+" FROM jobs WHERE id = ?", id)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		if err := mutate(job); err != nil {
			return err
		}

		now := time.Now().UTC()
		job.UpdatedAt = now
		if job.Status.Terminal() && job.CompletedAt == nil {
			completed := now
			job.CompletedAt = &completed
		}

		if err := writeJob(ctx, tx, job); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit update: %w", err)
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateHeartbeat stamps the job's liveness marker without touching anything else.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(job *Job) error {
		now := time.Now().UTC()
		job.LastHeartbeat = &now
		return nil
	})
	return err
}

// ClaimPending atomically leases the oldest Pending job by transitioning it to
// Running. Returns nil when the queue is empty.
func (s *Store) ClaimPending(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			selectColumns+" FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1",
			StatusPending,
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		job.Status = StatusRunning
		job.UpdatedAt = now
		job.LastHeartbeat = &now

		if err := writeJob(ctx, tx, job); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit claim: %w", err)
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// List returns all jobs, newest first.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	return s.queryJobs(ctx, selectColumns+" FROM jobs ORDER BY created_at DESC, id DESC")
}

// ListByStatus returns jobs in any of the given statuses, newest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return s.List(ctx)
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	query := selectColumns + " FROM jobs WHERE status IN (" + placeholders + ") ORDER BY created_at DESC, id DESC"
	return s.queryJobs(ctx, query, args...)
}

// Delete removes a job record. Needed by surrounding tooling, not the orchestrator.
func (s *Store) Delete(ctx context.Context, id string) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Stats returns job counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ReclaimAbandoned fails Running jobs whose heartbeat is older than the
// timeout. These are jobs left behind by a previous daemon process; failing
// them keeps their partial step results available for diagnostics.
func (s *Store) ReclaimAbandoned(ctx context.Context, timeout time.Duration) (int, error) {
	running, err := s.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-timeout)
	reclaimed := 0
	for _, job := range running {
		stamp := job.UpdatedAt
		if job.LastHeartbeat != nil {
			stamp = *job.LastHeartbeat
		}
		if stamp.After(cutoff) {
			continue
		}
		_, err := s.Update(ctx, job.ID, func(j *Job) error {
			if j.Status != StatusRunning {
				return nil
			}
			j.SetFailed(JobError{
				Kind:    step.KindUnclassified,
				Message: "orchestrator restarted while job was running",
			})
			return nil
		})
		if err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

const selectColumns = `SELECT id, source_url, options_json, status, progress, current_step,
    step_results_json, result_json, error_json, created_at, updated_at, completed_at, last_heartbeat`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job          Job
		optionsJSON  sql.NullString
		currentStep  sql.NullString
		resultsJSON  sql.NullString
		resultJSON   sql.NullString
		errorJSON    sql.NullString
		createdAt    string
		updatedAt    string
		completedAt  sql.NullString
		lastHeartbet sql.NullString
	)

	err := row.Scan(
		&job.ID, &job.SourceURL, &optionsJSON, &job.Status, &job.Progress, &currentStep,
		&resultsJSON, &resultJSON, &errorJSON, &createdAt, &updatedAt, &completedAt, &lastHeartbet,
	)
	if err != nil {
		return nil, err
	}

	job.CurrentStep = currentStep.String
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &job.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &job.StepResults); err != nil {
			return nil, fmt.Errorf("decode step results: %w", err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		job.Result = json.RawMessage(resultJSON.String)
	}
	if errorJSON.Valid && errorJSON.String != "" {
		job.Error = &JobError{}
		if err := json.Unmarshal([]byte(errorJSON.String), job.Error); err != nil {
			return nil, fmt.Errorf("decode job error: %w", err)
		}
	}

	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid && completedAt.String != "" {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		job.CompletedAt = &ts
	}
	if lastHeartbet.Valid && lastHeartbet.String != "" {
		ts, err := parseTime(lastHeartbet.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_heartbeat: %w", err)
		}
		job.LastHeartbeat = &ts
	}
	return &job, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeJob(ctx context.Context, db execer, job *Job) error {
	optionsJSON, err := marshalNullable(job.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	resultsJSON, err := marshalNullable(job.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}
	errorJSON, err := marshalNullable(job.Error)
	if err != nil {
		return fmt.Errorf("marshal job error: %w", err)
	}

	var resultJSON any
	if len(job.Result) > 0 {
		resultJSON = string(job.Result)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE jobs SET source_url = ?, options_json = ?, status = ?, progress = ?, current_step = ?,
            step_results_json = ?, result_json = ?, error_json = ?, updated_at = ?, completed_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.SourceURL, optionsJSON, job.Status, job.Progress, nullableString(job.CurrentStep),
		resultsJSON, resultJSON, errorJSON,
		formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt), formatTimePtr(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[pipeline.Step]StepResult:
		if len(val) == 0 {
			return nil, nil
		}
	case *JobError:
		if val == nil {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
