package analysis

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrTerminal signals a write against a job already in a terminal state.
var ErrTerminal = errors.New("job is terminal")

// ErrStaleAttempt signals a write carrying an attempt number that no longer
// matches the job's current attempt. A worker whose lease expired mid-run
// sees this once a redelivered attempt has reset the job; its writes must not
// land.
var ErrStaleAttempt = errors.New("job attempt is stale")

// JobStore persists analysis jobs. It is the single source of truth; all
// mutation goes through it and per-job writes are atomic. The queue lease
// keeps concurrent writers off the same job in the common case; the attempt
// fence on AppendStage and Finalize closes the gap when a lease falsely
// expires under a still-running worker.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)

	// ResetForRun clears partial results from a previous attempt and marks
	// the job running. A no-op error of ErrTerminal is returned when the job
	// already finished, so redeliveries can be acked without a re-run.
	ResetForRun(ctx context.Context, jobID string, attempt int, startedAt time.Time) error

	// AppendStage folds a stage outcome into the job: results are appended in
	// completion order, progress raised to the stage quota (never lowered),
	// and the running score and issue counters updated. The write lands only
	// when attempt matches the job's current attempt; otherwise
	// ErrStaleAttempt.
	AppendStage(ctx context.Context, jobID string, attempt int, outcome StageOutcome, progress int, overall *int) error

	// Finalize moves the job to a terminal status, preserving whatever
	// results accumulated. Terminal jobs reject further writes, and the same
	// attempt fence as AppendStage applies.
	Finalize(ctx context.Context, jobID string, attempt int, status JobStatus, errText string, overall *int, finishedAt time.Time) error

	// MarkCanceled flags the job so the worker stops at the next stage
	// boundary. Already-terminal jobs are left untouched.
	MarkCanceled(ctx context.Context, jobID string) error
}

// Queue carries job IDs from the request boundary to the worker pool with
// at-least-once delivery and a per-job lease.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (Delivery, error)
}

// Check is one atomic test. Run must honor ctx (the orchestrator imposes the
// per-check timeout) and must not panic; a panic or error is converted to a
// synthetic failing result by the orchestrator.
type Check interface {
	Run(ctx context.Context, page *PageContext) CheckResult
}

// CheckFunc adapts a plain function to the Check interface.
type CheckFunc func(ctx context.Context, page *PageContext) CheckResult

// Run calls f.
func (f CheckFunc) Run(ctx context.Context, page *PageContext) CheckResult {
	return f(ctx, page)
}

// Fetcher is the page-fetch collaborator: it loads the target page plus the
// auxiliary resources checks depend on. Unreachable and blocked targets are
// reported via fetch.ErrUnreachable / fetch.ErrBlocked sentinels.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (*PageContext, error)
}

// Evaluator is the external content-evaluation collaborator used by the
// AI-evaluation stage. It is subject to the same per-check timeout and
// isolation contract as any other check dependency.
type Evaluator interface {
	Evaluate(ctx context.Context, url string, sample []byte) (Judgment, error)
}

// Judgment is the evaluator's verdict on a content sample.
type Judgment struct {
	Score        int            `json:"score"`
	EngineScores map[string]int `json:"engine_scores,omitempty"`
	Summary      string         `json:"summary,omitempty"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
