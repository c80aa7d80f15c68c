// Package worker implements the analysis pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/metrics"
	"github.com/seolens/ai-visibility/internal/registry"
	"github.com/seolens/ai-visibility/internal/scoring"
	"github.com/seolens/ai-visibility/internal/stage"
)

// Notifier receives a fresh job snapshot after every persisted state change.
type Notifier interface {
	Notify(job analysis.Job)
}

// Worker consumes queue deliveries and drives each job through the four
// stages. Exactly one worker processes a given job at a time; the queue lease
// enforces that. The delivery is acked only after the terminal state is
// persisted, so a crash mid-job leads to redelivery and a clean re-run.
type Worker struct {
	queue        analysis.Queue
	jobStore     analysis.JobStore
	fetcher      analysis.Fetcher
	orchestrator *stage.Orchestrator
	registry     *registry.Registry
	notifier     Notifier
	clock        analysis.Clock
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// New constructs a Worker.
func New(
	queue analysis.Queue,
	jobStore analysis.JobStore,
	fetcher analysis.Fetcher,
	orchestrator *stage.Orchestrator,
	reg *registry.Registry,
	notifier Notifier,
	clock analysis.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:        queue,
		jobStore:     jobStore,
		fetcher:      fetcher,
		orchestrator: orchestrator,
		registry:     reg,
		notifier:     notifier,
		clock:        clock,
		metrics:      m,
		logger:       logger,
	}
}

// Run blocks, consuming deliveries until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	if w.metrics != nil {
		w.metrics.ActiveWorkers.Inc()
		defer w.metrics.ActiveWorkers.Dec()
	}
	for {
		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", delivery.JobID),
			zap.Int("attempt", delivery.Attempt))
		w.processDelivery(ctx, delivery)
	}
}

func (w *Worker) processDelivery(ctx context.Context, delivery analysis.Delivery) {
	jobID := delivery.JobID

	err := w.jobStore.ResetForRun(ctx, jobID, delivery.Attempt, w.clock.Now())
	switch {
	case errors.Is(err, analysis.ErrTerminal):
		// Redelivery of a finished job: nothing to do beyond consuming it.
		w.logger.Info("skipping terminal job redelivery", zap.String("job_id", jobID))
		w.ack(delivery)
		return
	case errors.Is(err, analysis.ErrNotFound):
		w.logger.Warn("dropping delivery for unknown job", zap.String("job_id", jobID))
		w.ack(delivery)
		return
	case err != nil:
		// Leave the delivery unacked; the lease expiry retries it.
		w.logger.Error("reset job for run failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if delivery.Attempt > 1 && w.metrics != nil {
		w.metrics.JobRedeliveries.Inc()
	}
	w.notifyJob(ctx, jobID)

	job, err := w.jobStore.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	page, err := w.fetcher.FetchPage(ctx, job.URL)
	if err != nil {
		w.logger.Warn("page fetch failed",
			zap.String("job_id", jobID),
			zap.String("url", job.URL),
			zap.Error(err))
		w.finalize(ctx, delivery, analysis.JobStatusFailed, fmt.Sprintf("fetch %s: %v", job.URL, err), nil)
		return
	}

	var accumulated []analysis.CheckResult
	for _, st := range analysis.Stages() {
		canceled, err := w.isCanceled(ctx, jobID)
		if err != nil {
			w.logger.Error("cancel check failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		if canceled {
			w.logger.Info("job canceled at stage boundary",
				zap.String("job_id", jobID),
				zap.String("stage", string(st)))
			w.finalize(ctx, delivery, analysis.JobStatusFailed, "canceled: superseded", currentScore(accumulated, w.registry))
			return
		}

		outcome := w.orchestrator.RunStage(ctx, st, page)
		w.observeStage(outcome)

		accumulated = append(accumulated, outcome.Results...)
		overall := currentScore(accumulated, w.registry)
		if err := w.jobStore.AppendStage(ctx, jobID, delivery.Attempt, outcome, analysis.ProgressQuota(st), overall); err != nil {
			if errors.Is(err, analysis.ErrTerminal) {
				w.ack(delivery)
				return
			}
			if errors.Is(err, analysis.ErrStaleAttempt) {
				// The lease expired under us and a newer attempt owns the
				// job now. Abandon without acking; the new attempt's
				// delivery carries the job to completion.
				w.logger.Warn("abandoning superseded attempt",
					zap.String("job_id", jobID),
					zap.Int("attempt", delivery.Attempt))
				return
			}
			w.logger.Error("persist stage outcome failed",
				zap.String("job_id", jobID),
				zap.String("stage", string(st)),
				zap.Error(err))
			return
		}
		w.notifyJob(ctx, jobID)

		if ctx.Err() != nil {
			// Shutdown mid-job: leave the delivery for redelivery.
			return
		}
	}

	w.finalize(ctx, delivery, analysis.JobStatusComplete, "", currentScore(accumulated, w.registry))
}

// finalize persists the terminal state, notifies subscribers, and acks the
// delivery. Ack strictly follows the durable terminal write.
func (w *Worker) finalize(ctx context.Context, delivery analysis.Delivery, status analysis.JobStatus, errText string, overall *int) {
	err := w.jobStore.Finalize(ctx, delivery.JobID, delivery.Attempt, status, errText, overall, w.clock.Now())
	if errors.Is(err, analysis.ErrStaleAttempt) {
		w.logger.Warn("abandoning superseded attempt at finalize",
			zap.String("job_id", delivery.JobID),
			zap.Int("attempt", delivery.Attempt))
		return
	}
	if err != nil && !errors.Is(err, analysis.ErrTerminal) {
		w.logger.Error("finalize job failed",
			zap.String("job_id", delivery.JobID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.JobsFinished.WithLabelValues(string(status)).Inc()
	}
	w.notifyJob(ctx, delivery.JobID)
	w.ack(delivery)
}

func (w *Worker) isCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := w.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Canceled, nil
}

func (w *Worker) notifyJob(ctx context.Context, jobID string) {
	if w.notifier == nil {
		return
	}
	job, err := w.jobStore.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Warn("load job for notify failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	w.notifier.Notify(job)
}

func (w *Worker) observeStage(outcome analysis.StageOutcome) {
	if w.metrics == nil {
		return
	}
	w.metrics.StageDuration.WithLabelValues(string(outcome.Stage)).Observe(outcome.Elapsed.Seconds())
	for _, result := range outcome.Results {
		w.metrics.CheckOutcomes.WithLabelValues(result.Name, string(result.Status)).Inc()
	}
}

func (w *Worker) ack(delivery analysis.Delivery) {
	if err := delivery.Ack(); err != nil {
		w.logger.Warn("ack failed", zap.String("job_id", delivery.JobID), zap.Error(err))
	}
}

func currentScore(results []analysis.CheckResult, reg *registry.Registry) *int {
	if len(results) == 0 {
		return nil
	}
	s := scoring.Score(results, reg)
	return &s.Overall
}
