package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRegisterAndCancelRun(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterRun("run-1", cancel)

	assert.True(t, pool.CancelRun("run-1"))
	assert.Error(t, ctx.Err())

	assert.False(t, pool.CancelRun("unknown"))
}

func TestPoolUnregisterRun(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	_, cancel := context.WithCancel(context.Background())
	pool.RegisterRun("run-1", cancel)

	assert.True(t, pool.CancelRun("run-1"))

	pool.UnregisterRun("run-1")

	assert.False(t, pool.CancelRun("run-1"))
}

func TestPoolGetActiveRunIDs(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	ids := pool.getActiveRunIDs()
	assert.Empty(t, ids)

	_, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	_, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	pool.RegisterRun("run-a", cancel1)
	pool.RegisterRun("run-b", cancel2)

	ids = pool.getActiveRunIDs()
	require.Len(t, ids, 2)
	assert.Contains(t, ids, "run-a")
	assert.Contains(t, ids, "run-b")
}

func TestPoolStopTwiceDoesNotPanic(t *testing.T) {
	pool := &WorkerPool{
		stopCh:     make(chan struct{}),
		activeRuns: make(map[string]context.CancelFunc),
	}

	pool.Stop()
	assert.NotPanics(t, func() { pool.Stop() })
}

func TestPoolRegisterRunConcurrency(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	const numRuns = 100
	for i := 0; i < numRuns; i++ {
		go func(idx int) {
			_, cancel := context.WithCancel(context.Background())
			defer cancel()
			runID := fmt.Sprintf("run-%d", idx)
			pool.RegisterRun(runID, cancel)
		}(i)
	}

	require.Eventually(t, func() bool {
		pool.mu.RLock()
		defer pool.mu.RUnlock()
		return len(pool.activeRuns) == numRuns
	}, 1*time.Second, 10*time.Millisecond)
}

func TestPoolCancelNonExistentRun(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	assert.False(t, pool.CancelRun("nonexistent-run"))
}

func TestPoolUnregisterNonExistentRun(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	assert.NotPanics(t, func() {
		pool.UnregisterRun("nonexistent-run")
	})
}

func TestPoolMultipleRunLifecycle(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	runs := []string{"run-1", "run-2", "run-3"}

	for _, rid := range runs {
		_, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.RegisterRun(rid, cancel)
	}

	ids := pool.getActiveRunIDs()
	require.Len(t, ids, 3)

	assert.True(t, pool.CancelRun("run-2"))
	pool.UnregisterRun("run-2")

	ids = pool.getActiveRunIDs()
	require.Len(t, ids, 2)
	assert.Contains(t, ids, "run-1")
	assert.Contains(t, ids, "run-3")
	assert.NotContains(t, ids, "run-2")
}

func TestPoolRegisterSameRunTwice(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	pool.RegisterRun("run-1", cancel1)
	pool.RegisterRun("run-1", cancel2)

	assert.True(t, pool.CancelRun("run-1"))

	assert.Error(t, ctx2.Err())
	assert.NoError(t, ctx1.Err())
}

func TestPoolConcurrentCancellation(t *testing.T) {
	pool := &WorkerPool{
		activeRuns: make(map[string]context.CancelFunc),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterRun("run-racy", cancel)

	const numGoroutines = 10
	results := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			results <- pool.CancelRun("run-racy")
		}()
	}

	var trueCount int
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			trueCount++
		}
	}

	assert.Equal(t, numGoroutines, trueCount)
	assert.Error(t, ctx.Err())
}
