package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTask struct {
	id string
	fn func(ctx context.Context) error
}

func (t *funcTask) ID() string                        { return t.id }
func (t *funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }

func collectResults(t *testing.T, pool *Pool, n int) map[string]Result {
	t.Helper()
	results := make(map[string]Result, n)
	for i := 0; i < n; i++ {
		select {
		case r := <-pool.Results():
			results[r.TaskID] = r
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d results", i, n)
		}
	}
	return results
}

func TestPool_RunsAllTasks(t *testing.T) {
	pool := NewPool(context.Background(), 3, 10, 0)
	pool.Start()

	var ran int32
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		err := pool.Submit(&funcTask{id: id, fn: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}})
		require.NoError(t, err)
	}

	results := collectResults(t, pool, 5)
	pool.Stop()

	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	for id, r := range results {
		assert.NoError(t, r.Err, "task %s", id)
	}

	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Completed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPool_PerTaskTimeoutIsolatesSlowTask(t *testing.T) {
	pool := NewPool(context.Background(), 2, 10, 50*time.Millisecond)
	pool.Start()

	require.NoError(t, pool.Submit(&funcTask{id: "slow", fn: func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}))
	require.NoError(t, pool.Submit(&funcTask{id: "fast", fn: func(ctx context.Context) error {
		return nil
	}}))

	results := collectResults(t, pool, 2)
	pool.Stop()

	assert.True(t, errors.Is(results["slow"].Err, context.DeadlineExceeded))
	assert.NoError(t, results["fast"].Err)

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPool_FailuresDoNotStopSiblings(t *testing.T) {
	pool := NewPool(context.Background(), 1, 10, 0)
	pool.Start()

	boom := errors.New("boom")
	require.NoError(t, pool.Submit(&funcTask{id: "bad", fn: func(ctx context.Context) error {
		return boom
	}}))
	require.NoError(t, pool.Submit(&funcTask{id: "good", fn: func(ctx context.Context) error {
		return nil
	}}))

	results := collectResults(t, pool, 2)
	pool.Stop()

	assert.Equal(t, boom, results["bad"].Err)
	assert.NoError(t, results["good"].Err)
}

func TestPool_CancellationStillYieldsAllResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1, 8, 0)
	pool.Start()

	started := make(chan struct{})
	for i := 0; i < 8; i++ {
		first := i == 0
		require.NoError(t, pool.Submit(&funcTask{id: fmt.Sprintf("t%d", i), fn: func(taskCtx context.Context) error {
			if first {
				close(started)
			}
			<-taskCtx.Done()
			return taskCtx.Err()
		}}))
	}

	// Cancel while seven tasks are still queued behind the single worker.
	<-started
	cancel()

	results := collectResults(t, pool, 8)
	pool.Stop()

	assert.Len(t, results, 8, "every submitted task produces a result")
	for id, r := range results {
		assert.True(t, errors.Is(r.Err, context.Canceled), "task %s", id)
	}
}

func TestPool_SubmitAfterQueueFull(t *testing.T) {
	pool := NewPool(context.Background(), 1, 1, 0)
	// Not started: the queue fills immediately.

	require.NoError(t, pool.Submit(&funcTask{id: "a", fn: func(ctx context.Context) error { return nil }}))
	err := pool.Submit(&funcTask{id: "b", fn: func(ctx context.Context) error { return nil }})
	assert.Error(t, err)
}
