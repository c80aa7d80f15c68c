// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// ErrClosed is returned once the queue is shut down.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with at-least-once delivery. A dequeued
// job holds a lease; if the lease expires before Ack, the job is requeued
// with an incremented attempt counter.
type Queue struct {
	ch    chan envelope
	lease time.Duration

	mu      sync.Mutex
	pending map[string]*leaseEntry
	closed  bool
	done    chan struct{}
}

type envelope struct {
	jobID   string
	attempt int
}

type leaseEntry struct {
	attempt int
	expires time.Time
	acked   bool
}

// Config holds in-memory queue settings.
type Config struct {
	Capacity int
	Lease    time.Duration
}

// NewQueue constructs a queue. A zero lease defaults to 2 minutes, double
// the pipeline's wall-clock budget.
func NewQueue(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	q := &Queue{
		ch:      make(chan envelope, cfg.Capacity),
		lease:   cfg.Lease,
		pending: make(map[string]*leaseEntry),
		done:    make(chan struct{}),
	}
	go q.reap()
	return q
}

// Enqueue pushes a job ID or returns when the context ends. Shutdown is
// signaled through done rather than by closing ch, so a send racing Close
// fails with ErrClosed instead of panicking.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if q.isClosed() {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- envelope{jobID: jobID, attempt: 1}:
		return nil
	}
}

// Dequeue pops the next job and opens its lease. The returned Delivery's Ack
// releases the lease; an unacked delivery is redelivered after the lease
// expires.
func (q *Queue) Dequeue(ctx context.Context) (analysis.Delivery, error) {
	if q.isClosed() {
		return analysis.Delivery{}, ErrClosed
	}
	select {
	case <-ctx.Done():
		return analysis.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return analysis.Delivery{}, ErrClosed
	case env := <-q.ch:
		q.mu.Lock()
		q.pending[env.jobID] = &leaseEntry{
			attempt: env.attempt,
			expires: time.Now().Add(q.lease),
		}
		q.mu.Unlock()

		return analysis.Delivery{
			JobID:   env.jobID,
			Attempt: env.attempt,
			Ack: func() error {
				return q.ack(env.jobID)
			},
		}, nil
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) ack(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.pending[jobID]
	if !ok || entry.acked {
		return fmt.Errorf("no open lease for job %s", jobID)
	}
	entry.acked = true
	delete(q.pending, jobID)
	return nil
}

// reap requeues jobs whose lease expired without an ack.
func (q *Queue) reap() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case now := <-ticker.C:
			q.redeliverExpired(now)
		}
	}
}

func (q *Queue) redeliverExpired(now time.Time) {
	q.mu.Lock()
	var expired []envelope
	for jobID, entry := range q.pending {
		if !entry.acked && now.After(entry.expires) {
			expired = append(expired, envelope{jobID: jobID, attempt: entry.attempt + 1})
			delete(q.pending, jobID)
		}
	}
	q.mu.Unlock()

	for _, env := range expired {
		select {
		case <-q.done:
			return
		case q.ch <- env:
		default:
			// Full queue: put the lease back so the next sweep retries.
			q.mu.Lock()
			q.pending[env.jobID] = &leaseEntry{attempt: env.attempt - 1, expires: now}
			q.mu.Unlock()
		}
	}
}

// Close shuts the queue down; outstanding leases are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
