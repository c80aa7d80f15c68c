// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// JobStoreConfig controls the Postgres connection pool backing the job store.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// JobStore persists analysis jobs in Postgres. Check results live in a JSONB
// column; per-job writes are single statements, which gives the atomic
// per-job write the store contract requires.
type JobStore struct {
	pool pgxPool
}

// NewJobStore connects a pool and builds a JobStore.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewJobStoreWithPool(pool pgxPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *JobStore) Close() {
	s.pool.Close()
}

const jobColumns = `id, url, depth, tier, status, progress, overall_score, results,
	total_checks, total_issues, canceled, error_text, attempt, submitted_at, started_at, finished_at`

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job analysis.Job) error {
	results, err := marshalResults(job.Results)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO analysis_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.URL, job.Depth, job.Tier, job.Status, job.Progress,
		job.OverallScore, results, job.TotalChecks, job.TotalIssues,
		job.Canceled, job.ErrorText, job.Attempt, job.Submitted, job.Started, job.Finished,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (analysis.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1;`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return analysis.Job{}, analysis.ErrNotFound
		}
		return analysis.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *JobStore) ListJobs(ctx context.Context, status *analysis.JobStatus, limit, offset int) ([]analysis.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []analysis.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ResetForRun clears partial state and marks the job running. Redeliveries of
// finished jobs report ErrTerminal so the caller can ack without a re-run.
func (s *JobStore) ResetForRun(ctx context.Context, jobID string, attempt int, startedAt time.Time) error {
	query := `
		UPDATE analysis_jobs
		SET status = $2, progress = 0, overall_score = NULL, results = '[]'::jsonb,
			total_checks = 0, total_issues = 0, error_text = '', attempt = $3, started_at = $4
		WHERE id = $1 AND status NOT IN ($5, $6);
	`
	tag, err := s.pool.Exec(ctx, query, jobID,
		analysis.JobStatusRunning, attempt, startedAt,
		analysis.JobStatusComplete, analysis.JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("reset job for run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// AppendStage folds a stage outcome into the job row in one statement.
// Progress uses GREATEST so it never moves backwards, and the attempt guard
// keeps a worker on an expired lease from writing over a newer attempt.
func (s *JobStore) AppendStage(ctx context.Context, jobID string, attempt int, outcome analysis.StageOutcome, progress int, overall *int) error {
	results, err := marshalResults(outcome.Results)
	if err != nil {
		return err
	}
	issues := 0
	for _, r := range outcome.Results {
		if r.Status == analysis.CheckWarn || r.Status == analysis.CheckFail {
			issues++
		}
	}
	query := `
		UPDATE analysis_jobs
		SET results = results || $2::jsonb,
			total_checks = total_checks + $3,
			total_issues = total_issues + $4,
			progress = GREATEST(progress, $5),
			overall_score = COALESCE($6, overall_score)
		WHERE id = $1 AND attempt = $7 AND status NOT IN ($8, $9);
	`
	tag, err := s.pool.Exec(ctx, query, jobID, results, len(outcome.Results), issues, progress, overall,
		attempt, analysis.JobStatusComplete, analysis.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("append stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingTerminalOrStale(ctx, jobID, attempt)
	}
	return nil
}

// Finalize moves the job to a terminal status. Already-terminal rows are not
// touched, and a superseded attempt's finalize does not land.
func (s *JobStore) Finalize(ctx context.Context, jobID string, attempt int, status analysis.JobStatus, errText string, overall *int, finishedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize with non-terminal status %q", status)
	}
	query := `
		UPDATE analysis_jobs
		SET status = $2, error_text = $3,
			overall_score = COALESCE($4, overall_score),
			progress = CASE WHEN $2 = $6 THEN 100 ELSE progress END,
			finished_at = $5
		WHERE id = $1 AND attempt = $8 AND status NOT IN ($6, $7);
	`
	tag, err := s.pool.Exec(ctx, query, jobID, status, errText, overall, finishedAt,
		analysis.JobStatusComplete, analysis.JobStatusFailed, attempt)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingTerminalOrStale(ctx, jobID, attempt)
	}
	return nil
}

// MarkCanceled flags a non-terminal job as canceled.
func (s *JobStore) MarkCanceled(ctx context.Context, jobID string) error {
	query := `
		UPDATE analysis_jobs
		SET canceled = TRUE
		WHERE id = $1 AND status NOT IN ($2, $3);
	`
	tag, err := s.pool.Exec(ctx, query, jobID,
		analysis.JobStatusComplete, analysis.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("mark job canceled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err := s.missingOrTerminal(ctx, jobID)
		// Cancel after the terminal state is a no-op, not an error.
		if errors.Is(err, analysis.ErrTerminal) {
			return nil
		}
		return err
	}
	return nil
}

// missingOrTerminal distinguishes "no such job" from "job already finished"
// after an UPDATE matched nothing.
func (s *JobStore) missingOrTerminal(ctx context.Context, jobID string) error {
	var status analysis.JobStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM analysis_jobs WHERE id = $1;`, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return analysis.ErrNotFound
		}
		return fmt.Errorf("check job status: %w", err)
	}
	if status.IsTerminal() {
		return analysis.ErrTerminal
	}
	return fmt.Errorf("job %s update matched no rows", jobID)
}

// missingTerminalOrStale additionally detects an attempt-fenced write that
// lost to a newer attempt.
func (s *JobStore) missingTerminalOrStale(ctx context.Context, jobID string, attempt int) error {
	var (
		status  analysis.JobStatus
		current int
	)
	err := s.pool.QueryRow(ctx, `SELECT status, attempt FROM analysis_jobs WHERE id = $1;`, jobID).Scan(&status, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return analysis.ErrNotFound
		}
		return fmt.Errorf("check job status: %w", err)
	}
	if status.IsTerminal() {
		return analysis.ErrTerminal
	}
	if current != attempt {
		return analysis.ErrStaleAttempt
	}
	return fmt.Errorf("job %s update matched no rows", jobID)
}

func marshalResults(results []analysis.CheckResult) ([]byte, error) {
	if results == nil {
		results = []analysis.CheckResult{}
	}
	out, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (analysis.Job, error) {
	var (
		job     analysis.Job
		results []byte
	)
	err := row.Scan(
		&job.ID, &job.URL, &job.Depth, &job.Tier, &job.Status, &job.Progress,
		&job.OverallScore, &results, &job.TotalChecks, &job.TotalIssues,
		&job.Canceled, &job.ErrorText, &job.Attempt, &job.Submitted, &job.Started, &job.Finished,
	)
	if err != nil {
		return analysis.Job{}, err
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return analysis.Job{}, fmt.Errorf("decode results: %w", err)
		}
	}
	return job, nil
}
