// Package redisqueue provides a Redis-backed task queue with at-least-once
// delivery.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// Config holds Redis queue settings.
type Config struct {
	// KeyPrefix namespaces all queue keys; defaults to "aivis:queue".
	KeyPrefix string
	// Lease bounds how long a dequeued job may stay unacked before it is
	// redelivered. Defaults to 2 minutes.
	Lease time.Duration
	// ReapInterval is how often expired leases are swept back onto the
	// ready list. Defaults to 5 seconds.
	ReapInterval time.Duration
}

// Queue moves job IDs between a ready list and a processing list. A dequeue
// atomically transfers the ID to the processing list and opens a lease key
// with a TTL; the reaper returns processing entries whose lease has expired
// to the ready list, so a crashed worker's job is redelivered.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
	cfg    Config

	done   chan struct{}
	closed bool
}

// NewQueue builds a Queue over an existing client and starts the lease
// reaper. Call Close to stop it.
func NewQueue(client *redis.Client, cfg Config, logger *zap.Logger) *Queue {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "aivis:queue"
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		client: client,
		logger: logger,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
	go q.reap()
	return q
}

func (q *Queue) readyKey() string      { return q.cfg.KeyPrefix + ":ready" }
func (q *Queue) processingKey() string { return q.cfg.KeyPrefix + ":processing" }
func (q *Queue) attemptsKey() string   { return q.cfg.KeyPrefix + ":attempts" }
func (q *Queue) leaseKey(jobID string) string {
	return q.cfg.KeyPrefix + ":lease:" + jobID
}

// Enqueue pushes a job ID onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.readyKey(), jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx ends. The move to the
// processing list and the lease key make the delivery recoverable.
func (q *Queue) Dequeue(ctx context.Context) (analysis.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return analysis.Delivery{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		// Short blocking window so ctx cancellation is honored promptly.
		jobID, err := q.client.BLMove(ctx, q.readyKey(), q.processingKey(), "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return analysis.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			return analysis.Delivery{}, fmt.Errorf("dequeue: %w", err)
		}

		attempt, err := q.client.HIncrBy(ctx, q.attemptsKey(), jobID, 1).Result()
		if err != nil {
			return analysis.Delivery{}, fmt.Errorf("bump attempt for %s: %w", jobID, err)
		}
		if err := q.client.Set(ctx, q.leaseKey(jobID), attempt, q.cfg.Lease).Err(); err != nil {
			return analysis.Delivery{}, fmt.Errorf("open lease for %s: %w", jobID, err)
		}

		return analysis.Delivery{
			JobID:   jobID,
			Attempt: int(attempt),
			Ack: func() error {
				return q.ack(jobID)
			},
		}, nil
	}
}

func (q *Queue) ack(jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := q.client.LRem(ctx, q.processingKey(), 1, jobID).Result()
	if err != nil {
		return fmt.Errorf("ack job %s: %w", jobID, err)
	}
	if removed == 0 {
		return fmt.Errorf("no open delivery for job %s", jobID)
	}
	pipe := q.client.Pipeline()
	pipe.Del(ctx, q.leaseKey(jobID))
	pipe.HDel(ctx, q.attemptsKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear lease for %s: %w", jobID, err)
	}
	return nil
}

// reap periodically returns processing entries without a live lease to the
// ready list.
func (q *Queue) reap() {
	ticker := time.NewTicker(q.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			if err := q.redeliverExpired(); err != nil {
				q.logger.Warn("lease sweep failed", zap.Error(err))
			}
		}
	}
}

func (q *Queue) redeliverExpired() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobIDs, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("scan processing list: %w", err)
	}
	for _, jobID := range jobIDs {
		alive, err := q.client.Exists(ctx, q.leaseKey(jobID)).Result()
		if err != nil {
			return fmt.Errorf("check lease for %s: %w", jobID, err)
		}
		if alive > 0 {
			continue
		}
		removed, err := q.client.LRem(ctx, q.processingKey(), 1, jobID).Result()
		if err != nil {
			return fmt.Errorf("requeue %s: %w", jobID, err)
		}
		if removed > 0 {
			if err := q.client.LPush(ctx, q.readyKey(), jobID).Err(); err != nil {
				return fmt.Errorf("requeue %s: %w", jobID, err)
			}
			q.logger.Info("redelivering expired lease", zap.String("job_id", jobID))
		}
	}
	return nil
}

// Close stops the reaper. The Redis client is owned by the caller.
func (q *Queue) Close() {
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
