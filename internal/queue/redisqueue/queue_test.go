package redisqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupQueue(t *testing.T, cfg Config) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewQueue(client, cfg, zap.NewNop())
	t.Cleanup(q.Close)
	return q, mr
}

func TestQueueEnqueueDequeueAck(t *testing.T) {
	t.Parallel()

	q, _ := setupQueue(t, Config{KeyPrefix: "test:queue"})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", d.JobID)
	require.Equal(t, 1, d.Attempt)

	require.NoError(t, d.Ack())
	require.Error(t, d.Ack()) // delivery already consumed
}

func TestQueueRedeliversExpiredLease(t *testing.T) {
	t.Parallel()

	q, mr := setupQueue(t, Config{
		KeyPrefix:    "test:queue",
		Lease:        200 * time.Millisecond,
		ReapInterval: 50 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Attempt)

	// miniredis does not advance TTLs on its own.
	mr.FastForward(time.Second)

	dequeueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	second, err := q.Dequeue(dequeueCtx)
	require.NoError(t, err)
	require.Equal(t, "job-1", second.JobID)
	require.Equal(t, 2, second.Attempt)
	require.NoError(t, second.Ack())
}

func TestQueueDequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q, _ := setupQueue(t, Config{KeyPrefix: "test:queue"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}

func TestQueueAckClearsLeaseState(t *testing.T) {
	t.Parallel()

	q, mr := setupQueue(t, Config{
		KeyPrefix:    "test:queue",
		Lease:        200 * time.Millisecond,
		ReapInterval: 50 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Ack())

	mr.FastForward(time.Second)
	time.Sleep(200 * time.Millisecond) // give the reaper a sweep

	// An acked job must not come back.
	dequeueCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(dequeueCtx)
	require.Error(t, err)
}
