package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
)

// fakeTask is a configurable task for queue tests.
type fakeTask struct {
	BaseTask
	execute func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newFakeTask(name string, touchesSource bool, execute func(ctx context.Context, enqueuer TaskEnqueuer) error) *fakeTask {
	return &fakeTask{
		BaseTask: NewBaseTask(name, touchesSource),
		execute:  execute,
	}
}

func (t *fakeTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.execute == nil {
		return nil
	}
	return t.execute(ctx, enqueuer)
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestQueueRunsAllTasks(t *testing.T) {
	q := New(zap.NewNop())

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		q.Enqueue(newFakeTask("count", false, func(ctx context.Context, _ TaskEnqueuer) error {
			count.Add(1)
			return nil
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, int32(5), count.Load())
	assert.True(t, q.IsComplete())
	assert.False(t, q.HasFailures())
}

func TestQueueWaitEmptyQueue(t *testing.T) {
	q := New(zap.NewNop())
	assert.NoError(t, q.Wait(context.Background()))
}

func TestQueueWaitReturnsTaskError(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetryConfig()))

	taskErr := errors.New("column stats query failed")
	q.Enqueue(newFakeTask("boom", false, func(ctx context.Context, _ TaskEnqueuer) error {
		return taskErr
	}))

	err := q.Wait(context.Background())
	assert.ErrorIs(t, err, taskErr)
	assert.True(t, q.HasFailures())
}

func TestQueueThrottlesSourceTasks(t *testing.T) {
	const maxConcurrent = 2

	q := New(zap.NewNop(), WithStrategy(NewThrottledSourceStrategy(maxConcurrent)))

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 6; i++ {
		q.Enqueue(newFakeTask("profile-source", true, func(ctx context.Context, _ TaskEnqueuer) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, q.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, maxConcurrent)
	assert.Greater(t, peak, 0)
}

func TestQueueRetriesUnreachableSource(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetryConfig()))

	var attempts atomic.Int32
	q.Enqueue(newFakeTask("flaky-source", true, func(ctx context.Context, _ TaskEnqueuer) error {
		if attempts.Add(1) < 3 {
			return apperrors.ErrSourceUnreachable
		}
		return nil
	}))

	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueueDoesNotRetryNonRetryableError(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetryConfig()))

	var attempts atomic.Int32
	q.Enqueue(newFakeTask("bad-rule", false, func(ctx context.Context, _ TaskEnqueuer) error {
		attempts.Add(1)
		return apperrors.ErrEmptyKeyFields
	}))

	err := q.Wait(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrEmptyKeyFields)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestQueueTaskEnqueuesFollowUp(t *testing.T) {
	q := New(zap.NewNop())

	var followUpRan atomic.Bool
	q.Enqueue(newFakeTask("parent", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newFakeTask("follow-up", false, func(ctx context.Context, _ TaskEnqueuer) error {
			followUpRan.Store(true)
			return nil
		}))
		return nil
	}))

	require.NoError(t, q.Wait(context.Background()))
	assert.True(t, followUpRan.Load())
	assert.Len(t, q.GetTasks(), 2)
}

func TestQueueCancelStopsPendingTasks(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewSerializedStrategy()))

	started := make(chan struct{})

	q.Enqueue(newFakeTask("long-running", true, func(ctx context.Context, _ TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	q.Enqueue(newFakeTask("never-starts", true, nil))

	<-started
	q.Cancel()

	require.NoError(t, q.Wait(context.Background()))

	snapshots := q.GetTasks()
	require.Len(t, snapshots, 2)
	assert.Equal(t, TaskStatusCancelled, snapshots[0].Status)
	assert.Equal(t, TaskStatusCancelled, snapshots[1].Status)
}

func TestQueueWaitHonorsContext(t *testing.T) {
	q := New(zap.NewNop())

	q.Enqueue(newFakeTask("blocked", false, func(ctx context.Context, _ TaskEnqueuer) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProgressPercentage(t *testing.T) {
	assert.Equal(t, 100, Progress{}.Percentage())
	assert.Equal(t, 50, Progress{Total: 4, Completed: 1, Failed: 1, Running: 2}.Percentage())
}
