// Package memory provides in-memory storage for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// JobStore is an in-memory analysis.JobStore. Per-job writes are atomic under
// a single mutex, and stage/finalize writes are fenced by attempt so a worker
// running on an expired lease cannot corrupt a redelivered attempt's state.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]analysis.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]analysis.Job)}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job analysis.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (analysis.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.Job{}, analysis.ErrNotFound
	}
	return cloneJob(job), nil
}

// ListJobs returns jobs ordered by submission time, newest first, optionally
// filtered by status.
func (s *JobStore) ListJobs(_ context.Context, status *analysis.JobStatus, limit, offset int) ([]analysis.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []analysis.Job
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Submitted.After(out[j].Submitted)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ResetForRun discards partial state from any previous attempt and marks the
// job running. Terminal jobs are left untouched and report ErrTerminal so the
// caller can ack the redelivery without a re-run.
func (s *JobStore) ResetForRun(_ context.Context, jobID string, attempt int, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return analysis.ErrTerminal
	}
	job.Status = analysis.JobStatusRunning
	job.Progress = 0
	job.OverallScore = nil
	job.Results = nil
	job.TotalChecks = 0
	job.TotalIssues = 0
	job.ErrorText = ""
	job.Attempt = attempt
	ts := startedAt
	job.Started = &ts
	s.jobs[jobID] = job
	return nil
}

// AppendStage folds a stage outcome into the job. Progress never decreases,
// and writes from a superseded attempt are rejected.
func (s *JobStore) AppendStage(_ context.Context, jobID string, attempt int, outcome analysis.StageOutcome, progress int, overall *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return analysis.ErrTerminal
	}
	if job.Attempt != attempt {
		return analysis.ErrStaleAttempt
	}
	job.Results = append(job.Results, outcome.Results...)
	job.TotalChecks = len(job.Results)
	job.TotalIssues = countIssues(job.Results)
	if progress > job.Progress {
		job.Progress = progress
	}
	if overall != nil {
		v := *overall
		job.OverallScore = &v
	}
	s.jobs[jobID] = job
	return nil
}

// Finalize moves the job to a terminal status. Writes against an
// already-terminal job or from a superseded attempt are rejected.
func (s *JobStore) Finalize(_ context.Context, jobID string, attempt int, status analysis.JobStatus, errText string, overall *int, finishedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize with non-terminal status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return analysis.ErrTerminal
	}
	if job.Attempt != attempt {
		return analysis.ErrStaleAttempt
	}
	job.Status = status
	job.ErrorText = errText
	if overall != nil {
		v := *overall
		job.OverallScore = &v
	}
	if status == analysis.JobStatusComplete {
		job.Progress = 100
	}
	ts := finishedAt
	job.Finished = &ts
	s.jobs[jobID] = job
	return nil
}

// MarkCanceled flags the job for the worker to stop at the next stage
// boundary. Terminal jobs are left as they are.
func (s *JobStore) MarkCanceled(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return nil
	}
	job.Canceled = true
	s.jobs[jobID] = job
	return nil
}

func countIssues(results []analysis.CheckResult) int {
	n := 0
	for _, r := range results {
		if r.Status == analysis.CheckWarn || r.Status == analysis.CheckFail {
			n++
		}
	}
	return n
}

func cloneJob(job analysis.Job) analysis.Job {
	out := job
	if job.OverallScore != nil {
		v := *job.OverallScore
		out.OverallScore = &v
	}
	if job.Results != nil {
		out.Results = make([]analysis.CheckResult, len(job.Results))
		copy(out.Results, job.Results)
	}
	return out
}
