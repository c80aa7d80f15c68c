package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/registry"
	"github.com/seolens/ai-visibility/internal/stage"
	memstore "github.com/seolens/ai-visibility/internal/storage/memory"
)

type fakeQueue struct {
	mu         sync.Mutex
	deliveries []analysis.Delivery
	acked      []string
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deliveries = append(q.deliveries, analysis.Delivery{JobID: jobID, Attempt: 1})
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (analysis.Delivery, error) {
	q.mu.Lock()
	if len(q.deliveries) > 0 {
		d := q.deliveries[0]
		q.deliveries = q.deliveries[1:]
		jobID := d.JobID
		d.Ack = func() error {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.acked = append(q.acked, jobID)
			return nil
		}
		q.mu.Unlock()
		return d, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return analysis.Delivery{}, ctx.Err()
}

func (q *fakeQueue) ackedJobs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.acked))
	copy(out, q.acked)
	return out
}

type fakeFetcher struct {
	page *analysis.PageContext
	err  error
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (*analysis.PageContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := *f.page
	page.URL = url
	return &page, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	snapshots []analysis.Job
}

func (n *fakeNotifier) Notify(job analysis.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snapshots = append(n.snapshots, job)
}

func (n *fakeNotifier) all() []analysis.Job {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]analysis.Job, len(n.snapshots))
	copy(out, n.snapshots)
	return out
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func staticCheck(score int, status analysis.CheckStatus) analysis.Check {
	return analysis.CheckFunc(func(ctx context.Context, page *analysis.PageContext) analysis.CheckResult {
		return analysis.CheckResult{Status: status, Score: score}
	})
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Definition{
		{Name: "access", Stage: analysis.StageInstant, Category: analysis.CategoryAIAccess, Weight: 100, Check: staticCheck(100, analysis.CheckPass)},
		{Name: "speed", Stage: analysis.StageTechnical, Category: analysis.CategoryTechnical, Weight: 100, Check: staticCheck(80, analysis.CheckPass)},
		{Name: "answers", Stage: analysis.StageContent, Category: analysis.CategoryContent, Weight: 100, Check: staticCheck(60, analysis.CheckWarn)},
		{Name: "eval", Stage: analysis.StageAIEval, Category: analysis.CategoryStructure, Weight: 100, Check: staticCheck(40, analysis.CheckFail)},
	})
	require.NoError(t, err)
	return reg
}

type workerFixture struct {
	queue    *fakeQueue
	store    *memstore.JobStore
	notifier *fakeNotifier
	worker   *Worker
}

func newWorkerFixture(t *testing.T, fetcher analysis.Fetcher) *workerFixture {
	t.Helper()
	reg := testRegistry(t)
	queue := &fakeQueue{}
	store := memstore.NewJobStore()
	notifier := &fakeNotifier{}
	w := New(
		queue,
		store,
		fetcher,
		stage.NewOrchestrator(reg, zap.NewNop()),
		reg,
		notifier,
		&fakeClock{now: time.Unix(1700000000, 0)},
		nil,
		zap.NewNop(),
	)
	return &workerFixture{queue: queue, store: store, notifier: notifier, worker: w}
}

func seedJob(t *testing.T, fx *workerFixture, id string) {
	t.Helper()
	require.NoError(t, fx.store.CreateJob(context.Background(), analysis.Job{
		ID:        id,
		URL:       "https://example.com",
		Tier:      analysis.TierFree,
		Status:    analysis.JobStatusQueued,
		Submitted: time.Unix(1700000000, 0),
	}))
	require.NoError(t, fx.queue.Enqueue(context.Background(), id))
}

func TestWorkerDrivesJobToComplete(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWorkerFixture(t, &fakeFetcher{page: &analysis.PageContext{StatusCode: 200}})
	seedJob(t, fx, "job-1")

	go fx.worker.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := fx.store.GetJob(ctx, "job-1")
		return err == nil && job.Status == analysis.JobStatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	job, err := fx.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 100, job.Progress)
	require.Len(t, job.Results, 4)
	require.Equal(t, 2, job.TotalIssues)
	require.NotNil(t, job.OverallScore)
	require.Equal(t, []string{"job-1"}, fx.queue.ackedJobs())

	// Subscribers always observe non-decreasing progress.
	last := -1
	for _, snap := range fx.notifier.all() {
		require.GreaterOrEqual(t, snap.Progress, last)
		last = snap.Progress
	}
}

func TestWorkerFetchFailureFailsJob(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWorkerFixture(t, &fakeFetcher{err: errors.New("connection refused")})
	seedJob(t, fx, "job-1")

	go fx.worker.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := fx.store.GetJob(ctx, "job-1")
		return err == nil && job.Status == analysis.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := fx.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Contains(t, job.ErrorText, "connection refused")
	require.Empty(t, job.Results)
	require.Equal(t, []string{"job-1"}, fx.queue.ackedJobs())
}

func TestWorkerAcksTerminalRedeliveryWithoutRerun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWorkerFixture(t, &fakeFetcher{page: &analysis.PageContext{StatusCode: 200}})
	seedJob(t, fx, "job-1")
	require.NoError(t, fx.store.ResetForRun(ctx, "job-1", 1, time.Now()))
	score := 77
	require.NoError(t, fx.store.Finalize(ctx, "job-1", 1, analysis.JobStatusComplete, "", &score, time.Now()))

	go fx.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return len(fx.queue.ackedJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	job, err := fx.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, analysis.JobStatusComplete, job.Status)
	require.Equal(t, 77, *job.OverallScore) // untouched by the redelivery
}

func TestWorkerStopsAtStageBoundaryWhenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWorkerFixture(t, &fakeFetcher{page: &analysis.PageContext{StatusCode: 200}})
	seedJob(t, fx, "job-1")
	require.NoError(t, fx.store.MarkCanceled(ctx, "job-1"))

	go fx.worker.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := fx.store.GetJob(ctx, "job-1")
		return err == nil && job.Status == analysis.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := fx.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "canceled: superseded", job.ErrorText)
	require.Empty(t, job.Results) // no stage ran
	require.Equal(t, []string{"job-1"}, fx.queue.ackedJobs())
}
