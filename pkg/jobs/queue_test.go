package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan Job, 1)
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "job-1", Type: "unit"}))

	select {
	case job := <-done:
		assert.Equal(t, "job-1", job.ID)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueTryEnqueueBeforeStart(t *testing.T) {
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	assert.False(t, queue.TryEnqueue(Job{ID: "job-1"}))
	require.Error(t, queue.Enqueue(Job{ID: "job-1"}))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return assert.AnError
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "job-1", Type: "unit"}))

	select {
	case <-done:
		assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueStopIsIdempotent(t *testing.T) {
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		return nil
	}, QueueConfig{Workers: 2})

	queue.Start(context.Background())
	queue.Stop()
	queue.Stop()
}
