package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/seolens/ai-visibility/internal/analysis"
)

func TestJobStoreCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	job := analysis.Job{
		ID:        "job-1",
		URL:       "https://example.com",
		Tier:      analysis.TierFree,
		Status:    analysis.JobStatusQueued,
		Submitted: now,
	}

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs(
			job.ID, job.URL, job.Depth, job.Tier, job.Status, job.Progress,
			job.OverallScore, []byte(`[]`), job.TotalChecks, job.TotalIssues,
			job.Canceled, job.ErrorText, job.Attempt, job.Submitted, job.Started, job.Finished,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreResetForRunTerminalJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs("job-1", analysis.JobStatusRunning, 2, started,
			analysis.JobStatusComplete, analysis.JobStatusFailed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM analysis_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(analysis.JobStatusComplete))

	err = store.ResetForRun(context.Background(), "job-1", 2, started)
	require.ErrorIs(t, err, analysis.ErrTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreAppendStage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	outcome := analysis.StageOutcome{
		Stage: analysis.StageInstant,
		Results: []analysis.CheckResult{
			{Name: "ai_bot_access", Category: analysis.CategoryAIAccess, Status: analysis.CheckPass, Score: 100},
			{Name: "llms_txt", Category: analysis.CategoryAIAccess, Status: analysis.CheckWarn, Score: 70},
		},
	}
	score := 85
	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs("job-1", pgxmock.AnyArg(), 2, 1, 20, &score, 1,
			analysis.JobStatusComplete, analysis.JobStatusFailed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.AppendStage(context.Background(), "job-1", 1, outcome, 20, &score))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreAppendStageSupersededAttempt(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	outcome := analysis.StageOutcome{
		Stage: analysis.StageTechnical,
		Results: []analysis.CheckResult{
			{Name: "page_speed", Category: analysis.CategoryTechnical, Status: analysis.CheckPass, Score: 100},
		},
	}
	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs("job-1", pgxmock.AnyArg(), 1, 0, 45, (*int)(nil), 1,
			analysis.JobStatusComplete, analysis.JobStatusFailed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status, attempt FROM analysis_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "attempt"}).
			AddRow(analysis.JobStatusRunning, 2))

	err = store.AppendStage(context.Background(), "job-1", 1, outcome, 45, nil)
	require.ErrorIs(t, err, analysis.ErrStaleAttempt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreFinalizeRejectsNonTerminal(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	err = store.Finalize(context.Background(), "job-1", 1, analysis.JobStatusRunning, "", nil, time.Now())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, analysis.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreMarkCanceledAfterTerminalIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs("job-1", analysis.JobStatusComplete, analysis.JobStatusFailed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM analysis_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(analysis.JobStatusFailed))

	require.NoError(t, store.MarkCanceled(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
