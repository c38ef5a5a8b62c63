package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestQueueDrainWaitsForAllJobs(t *testing.T) {
	var processed int64
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt64(&processed, 1)
		return nil
	}, QueueConfig{Workers: 3})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 25; i++ {
		require.NoError(t, q.Enqueue(Job{ID: fmt.Sprintf("job-%d", i)}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.EqualValues(t, 25, atomic.LoadInt64(&processed))
}

func TestQueueRetriesOnlyRetryableErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}
	var failed []string

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[job.ID]++
		switch job.ID {
		case "flaky":
			if attempts[job.ID] < 3 {
				return errTransient
			}
			return nil
		case "broken":
			return errors.New("permanent")
		}
		return nil
	}, QueueConfig{
		Workers:    2,
		MaxRetries: 5,
		RetryDelay: 5 * time.Millisecond,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
		OnFailure: func(job Job, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, job.ID)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	require.NoError(t, q.Enqueue(Job{ID: "broken"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts["flaky"])
	assert.Equal(t, 1, attempts["broken"])
	assert.Equal(t, []string{"broken"}, failed)
}

func TestQueueStopReleasesBufferedJobs(t *testing.T) {
	running := make(chan struct{}, 1)
	q := NewQueue("stopping", func(ctx context.Context, job Job) error {
		select {
		case running <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{Workers: 1, BufferSize: 8})
	q.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: fmt.Sprintf("job-%d", i)}))
	}
	<-running
	q.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.Error(t, q.Enqueue(Job{ID: "late"}))
	q.Stop()
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
	require.NoError(t, q.Drain(context.Background()))
}
