package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutorJob(id string, fn Func, blocking bool) *Job {
	return &Job{
		ID:           id,
		Name:         id,
		Trigger:      NewDateTrigger(time.Now()),
		FuncRef:      "test:" + id,
		MaxInstances: 1,
		fn:           &Callable{Ref: "test:" + id, Fn: fn, Blocking: blocking},
	}
}

// TestExecutorMaxInstances 测试实例数上限与计数清理
func TestExecutorMaxInstances(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	exec := NewAsyncExecutor()
	require.NoError(t, s.AddExecutor(ctx, exec, "direct"))

	release := make(chan struct{})
	job := newExecutorJob("slow", func(context.Context, []any, map[string]any) (any, error) {
		<-release
		return nil, nil
	}, false)

	now := time.Now()
	require.NoError(t, exec.SubmitJob(ctx, job, []time.Time{now}))
	assert.ErrorIs(t, exec.SubmitJob(ctx, job, []time.Time{now}), ErrMaxInstancesReached)
	assert.Equal(t, 1, exec.Instances("slow"))

	close(release)
	require.Eventually(t, func() bool { return exec.Instances("slow") == 0 }, waitFor, 5*time.Millisecond)
	require.NoError(t, exec.SubmitJob(ctx, job, []time.Time{now}))
}

// TestExecutorBlockingPool 测试阻塞函数受工作池大小限制
func TestExecutorBlockingPool(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	exec := NewAsyncExecutor(WithPoolSize(1))
	require.NoError(t, s.AddExecutor(ctx, exec, "pool"))

	var running, peak atomic.Int32
	work := func(context.Context, []any, map[string]any) (any, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, exec.SubmitJob(ctx, newExecutorJob(id, work, true), []time.Time{now}))
	}

	require.NoError(t, exec.Shutdown(ctx, true))
	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, int64(3), s.Metrics().Executed.Load())
}

// TestExecutorShutdownNoWait 测试不等待关闭时取消执行中的任务
func TestExecutorShutdownNoWait(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	exec := NewAsyncExecutor()
	require.NoError(t, s.AddExecutor(ctx, exec, "cancel"))

	started := make(chan struct{})
	var cancelled atomic.Bool
	job := newExecutorJob("wait", func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	}, false)

	require.NoError(t, exec.SubmitJob(ctx, job, []time.Time{time.Now()}))
	<-started

	require.NoError(t, exec.Shutdown(ctx, false))
	require.Eventually(t, func() bool { return exec.Instances("wait") == 0 }, waitFor, 5*time.Millisecond)
	assert.True(t, cancelled.Load())

	assert.ErrorIs(t, exec.SubmitJob(ctx, job, []time.Time{time.Now()}), ErrSchedulerNotRunning)
}

// TestExecutorMissedRunTimes 测试多个计划时间中过期的部分记为错过
func TestExecutorMissedRunTimes(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobMissed|EventJobExecuted)
	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	exec := NewAsyncExecutor()
	require.NoError(t, s.AddExecutor(ctx, exec, "misfire"))

	grace := time.Second
	job := newExecutorJob("multi", func(context.Context, []any, map[string]any) (any, error) {
		return "done", nil
	}, false)
	job.MisfireGraceTime = &grace

	now := time.Now()
	require.NoError(t, exec.SubmitJob(ctx, job, []time.Time{now.Add(-time.Minute), now}))
	require.Eventually(t, func() bool { return rec.count(EventJobExecuted) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(EventJobMissed))
}
