package runner

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

func TestWorkerPool_Concurrency(t *testing.T) {
	numWorkers := 5
	pool := NewWorkerPool(numWorkers)
	pool.Start()

	numTasks := 10
	var mu sync.Mutex
	results := make(map[int]int) // workerID -> taskCount

	for i := 0; i < numTasks; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(workerID int) error {
			mu.Lock()
			results[workerID]++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			return nil
		}))
	}

	pool.Stop()

	totalTasks := 0
	for _, count := range results {
		totalTasks += count
	}
	assert.Equal(t, numTasks, totalTasks)
	assert.GreaterOrEqual(t, len(results), 2, "tasks should be spread over several workers")
	assert.Equal(t, numTasks, pool.Completed())
}

func TestWorkerPool_DefaultsToCPUCount(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Positive(t, pool.NumWorkers)
	assert.GreaterOrEqual(t, cap(pool.Tasks), 100)
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	pool := NewWorkerPool(1)
	var errs []error
	var mu sync.Mutex
	pool.OnError = func(_ int, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	pool.Start()

	require.NoError(t, pool.Submit(context.Background(), func(id int) error {
		return fmt.Errorf("simulated error")
	}))
	require.NoError(t, pool.Submit(context.Background(), func(id int) error {
		return nil
	}))

	pool.Stop()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "simulated error")
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool := NewWorkerPool(2)
	var panics atomic.Int32
	pool.OnError = func(_ int, err error) {
		var pe *PanicError
		if errors.As(err, &pe) {
			panics.Add(1)
			assert.Equal(t, "boom", pe.Value)
			assert.NotEmpty(t, pe.Stack)
		}
	}
	pool.Start()

	var ran atomic.Int32
	require.NoError(t, pool.Submit(context.Background(), func(int) error { panic("boom") }))
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(int) error {
			ran.Add(1)
			return nil
		}))
	}
	pool.Stop()

	assert.Equal(t, int32(1), panics.Load())
	assert.Equal(t, int32(5), ran.Load())
}

func TestWorkerPool_SubmitAfterCancel(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Submit(ctx, func(int) error {
		t.Error("task must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPool_SubmitBlockedUntilCancel(t *testing.T) {
	pool := &WorkerPool{NumWorkers: 1, Tasks: make(chan Task)}
	// Not started: the unbuffered channel never drains.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func(int) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_StopIsIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	pool.Stop()
	assert.NotPanics(t, pool.Stop)
	assert.Zero(t, pool.Completed())
}
