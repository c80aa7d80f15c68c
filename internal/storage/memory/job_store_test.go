package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seolens/ai-visibility/internal/analysis"
)

func newJob(id string) analysis.Job {
	return analysis.Job{
		ID:        id,
		URL:       "https://example.com",
		Tier:      analysis.TierFree,
		Status:    analysis.JobStatusQueued,
		Submitted: time.Now().UTC(),
	}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.Error(t, store.CreateJob(ctx, newJob("j1")))

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusQueued, job.Status)

	_, err = store.GetJob(ctx, "missing")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestJobStoreResetForRunDiscardsPartialState(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.ResetForRun(ctx, "j1", 1, time.Now()))

	outcome := analysis.StageOutcome{
		Stage: analysis.StageInstant,
		Results: []analysis.CheckResult{
			{Name: "a", Status: analysis.CheckFail, Score: 0},
		},
	}
	score := 40
	require.NoError(t, store.AppendStage(ctx, "j1", 1, outcome, 20, &score))

	// A redelivered attempt starts from a clean slate.
	require.NoError(t, store.ResetForRun(ctx, "j1", 2, time.Now()))
	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusRunning, job.Status)
	require.Equal(t, 2, job.Attempt)
	require.Empty(t, job.Results)
	require.Zero(t, job.Progress)
	require.Nil(t, job.OverallScore)
}

func TestJobStoreProgressNeverDecreases(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.ResetForRun(ctx, "j1", 1, time.Now()))
	require.NoError(t, store.AppendStage(ctx, "j1", 1, analysis.StageOutcome{}, 45, nil))
	require.NoError(t, store.AppendStage(ctx, "j1", 1, analysis.StageOutcome{}, 20, nil))

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, 45, job.Progress)
}

func TestJobStoreTerminalIsImmutable(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.ResetForRun(ctx, "j1", 1, time.Now()))
	score := 88
	require.NoError(t, store.Finalize(ctx, "j1", 1, analysis.JobStatusComplete, "", &score, time.Now()))

	require.ErrorIs(t, store.ResetForRun(ctx, "j1", 2, time.Now()), analysis.ErrTerminal)
	require.ErrorIs(t, store.AppendStage(ctx, "j1", 1, analysis.StageOutcome{}, 70, nil), analysis.ErrTerminal)
	require.ErrorIs(t, store.Finalize(ctx, "j1", 1, analysis.JobStatusFailed, "late", nil, time.Now()), analysis.ErrTerminal)

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusComplete, job.Status)
	require.Equal(t, 100, job.Progress)
	require.NotNil(t, job.OverallScore)
	require.Equal(t, 88, *job.OverallScore)
	require.NotNil(t, job.Finished)
}

func TestJobStoreRejectsWritesFromSupersededAttempt(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.ResetForRun(ctx, "j1", 1, time.Now()))

	first := analysis.StageOutcome{
		Stage: analysis.StageInstant,
		Results: []analysis.CheckResult{
			{Name: "ai_bot_access", Status: analysis.CheckPass, Score: 100},
		},
	}
	require.NoError(t, store.AppendStage(ctx, "j1", 1, first, 20, nil))

	// The lease expires under the first worker and a second one takes over.
	require.NoError(t, store.ResetForRun(ctx, "j1", 2, time.Now()))
	require.NoError(t, store.AppendStage(ctx, "j1", 2, first, 20, nil))

	// The first worker is still running; its late writes must not land.
	stale := analysis.StageOutcome{
		Stage: analysis.StageTechnical,
		Results: []analysis.CheckResult{
			{Name: "page_speed", Status: analysis.CheckWarn, Score: 70},
		},
	}
	require.ErrorIs(t, store.AppendStage(ctx, "j1", 1, stale, 45, nil), analysis.ErrStaleAttempt)
	score := 55
	require.ErrorIs(t, store.Finalize(ctx, "j1", 1, analysis.JobStatusComplete, "", &score, time.Now()), analysis.ErrStaleAttempt)

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, 2, job.Attempt)
	require.Equal(t, analysis.JobStatusRunning, job.Status)
	require.Len(t, job.Results, 1)
	require.Equal(t, "ai_bot_access", job.Results[0].Name)
	require.Equal(t, 20, job.Progress)
}

func TestJobStoreMarkCanceled(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.MarkCanceled(ctx, "j1"))

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.True(t, job.Canceled)

	// Cancel after the terminal state is a no-op.
	require.NoError(t, store.ResetForRun(ctx, "j1", 1, time.Now()))
	require.NoError(t, store.Finalize(ctx, "j1", 1, analysis.JobStatusFailed, "unreachable", nil, time.Now()))
	require.NoError(t, store.MarkCanceled(ctx, "j1"))
}

func TestJobStoreListJobs(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		job := newJob(id)
		job.Submitted = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateJob(ctx, job))
	}
	require.NoError(t, store.ResetForRun(ctx, "c", 1, time.Now()))

	all, err := store.ListJobs(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].ID) // newest first

	queued := analysis.JobStatusQueued
	filtered, err := store.ListJobs(ctx, &queued, 1, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "b", filtered[0].ID)
}
