package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 3 * time.Second

func newTestScheduler(opts ...Option) *Scheduler {
	return New(append([]Option{WithLogger(NopLogger{})}, opts...)...)
}

// eventRecorder 记录收到的事件
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) count(code EventCode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Code() == code {
			n++
		}
	}
	return n
}

func (r *eventRecorder) first(code EventCode) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Code() == code {
			return e
		}
	}
	return nil
}

func shutdown(t *testing.T, s *Scheduler) {
	t.Helper()
	require.NoError(t, s.Shutdown(context.Background(), true))
}

// TestSchedulerLifecycle 测试启动、暂停、恢复与关闭
func TestSchedulerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, 0)

	assert.ErrorIs(t, s.Shutdown(ctx, true), ErrSchedulerNotRunning)
	assert.ErrorIs(t, s.Pause(ctx), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(ctx, false))
	assert.Equal(t, StateRunning, s.State())
	assert.ErrorIs(t, s.Start(ctx, false), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Pause(ctx))
	assert.Equal(t, StatePaused, s.State())
	require.NoError(t, s.Resume(ctx))
	assert.Equal(t, StateRunning, s.State())

	require.NoError(t, s.Shutdown(ctx, true))
	assert.Equal(t, StateStopped, s.State())

	assert.Equal(t, 1, rec.count(EventSchedulerStarted))
	assert.Equal(t, 1, rec.count(EventSchedulerPaused))
	assert.Equal(t, 1, rec.count(EventSchedulerResumed))
	assert.Equal(t, 1, rec.count(EventSchedulerShutdown))

	// 关闭后可以再次启动
	require.NoError(t, s.Start(ctx, true))
	shutdown(t, s)
}

// TestPendingJobs 测试未启动时任务进入待处理列表
func TestPendingJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	fn := &Callable{Ref: "test:pending", Fn: noopFunc}

	runAt := time.Now().Add(time.Hour).Truncate(time.Second)
	job, err := s.AddJob(ctx, fn, "date", WithID("p1"), WithTriggerArgs(map[string]any{"run_date": runAt}))
	require.NoError(t, err)
	assert.True(t, job.Pending())
	assert.Nil(t, job.NextRunTime)
	assert.Equal(t, "test:pending", job.Name)

	_, err = s.AddJob(ctx, fn, nil, WithID("p2"))
	require.NoError(t, err)

	jobs, err := s.GetJobs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	var buf bytes.Buffer
	require.NoError(t, s.PrintJobs(ctx, &buf, ""))
	assert.Contains(t, buf.String(), "Pending jobs:")
	assert.Contains(t, buf.String(), "pending)")

	require.NoError(t, s.RemoveJob(ctx, "p2", ""))
	assert.ErrorIs(t, s.RemoveJob(ctx, "p2", ""), ErrJobLookup)

	found, err := s.GetJob(ctx, "p2", "")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	stored, err := s.GetJob(ctx, "p1", "")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Pending())
	assert.Equal(t, DefaultAlias, stored.JobStore)
	require.NotNil(t, stored.NextRunTime)
	assert.True(t, stored.NextRunTime.Equal(runAt))

	// 默认值在提交时补全
	assert.True(t, stored.Coalesce)
	assert.Equal(t, 1, stored.MaxInstances)
	require.NotNil(t, stored.MisfireGraceTime)
	assert.Equal(t, time.Second, *stored.MisfireGraceTime)

	buf.Reset()
	require.NoError(t, s.PrintJobs(ctx, &buf, ""))
	assert.Contains(t, buf.String(), "Jobstore default:")
	assert.Contains(t, buf.String(), "next run at:")
}

// TestOneShotJob 测试一次性任务执行一次后被移除
func TestOneShotJob(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventAll)

	fn := &Callable{Ref: "test:once", Fn: func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args[0], nil
	}}
	require.NoError(t, s.Start(ctx, false))
	defer shutdown(t, s)

	_, err := s.AddJob(ctx, fn, nil, WithID("once"), WithArgs("hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count(EventJobExecuted) == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rec.count(EventJobRemoved) == 1 }, waitFor, 5*time.Millisecond)

	jobs, err := s.GetJobs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 1, rec.count(EventJobSubmitted))
	assert.Equal(t, 1, rec.count(EventJobAdded))
	assert.Equal(t, int64(1), s.Metrics().JobsRemoved.Load())

	removed := rec.first(EventJobRemoved).(*JobEvent)
	assert.Equal(t, "once", removed.JobID)
	assert.Equal(t, DefaultAlias, removed.JobStore)

	executed := rec.first(EventJobExecuted).(*JobExecutionEvent)
	assert.Equal(t, "once", executed.JobID)
	assert.Equal(t, DefaultAlias, executed.JobStore)
	assert.Equal(t, "hello", executed.RetVal)
	assert.NoError(t, executed.Err)

	snapshot := s.Metrics().GetSnapshot()
	assert.Equal(t, int64(1), snapshot["submitted"])
	assert.Equal(t, int64(1), snapshot["executed"])
}

// TestJobError 测试任务返回错误与 panic
func TestJobError(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobError)

	failing := &Callable{Ref: "test:fail", Fn: func(context.Context, []any, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}}
	panicking := &Callable{Ref: "test:panic", Fn: func(context.Context, []any, map[string]any) (any, error) {
		panic("kaboom")
	}}

	require.NoError(t, s.Start(ctx, false))
	defer shutdown(t, s)

	_, err := s.AddJob(ctx, failing, nil)
	require.NoError(t, err)
	_, err = s.AddJob(ctx, panicking, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count(EventJobError) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int64(2), s.Metrics().Failed.Load())
}

// TestMisfiredJob 测试超过宽限时间的任务记为错过
func TestMisfiredJob(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobMissed|EventJobExecuted)

	require.NoError(t, s.Start(ctx, false))
	defer shutdown(t, s)

	fn := &Callable{Ref: "test:late", Fn: noopFunc}
	_, err := s.AddJob(ctx, fn, NewDateTrigger(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count(EventJobMissed) == 1 }, waitFor, 5*time.Millisecond)
	assert.Zero(t, rec.count(EventJobExecuted))
	assert.Equal(t, int64(1), s.Metrics().Missed.Load())
}

// TestPausedSchedulerDoesNotProcess 测试暂停状态不处理任务
func TestPausedSchedulerDoesNotProcess(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobSubmitted|EventJobExecuted)

	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	_, err := s.AddJob(ctx, &Callable{Ref: "test:paused", Fn: noopFunc}, nil)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, rec.count(EventJobSubmitted))
	assert.Zero(t, s.Metrics().ProcessPasses.Load())

	require.NoError(t, s.Resume(ctx))
	require.Eventually(t, func() bool { return rec.count(EventJobExecuted) == 1 }, waitFor, 5*time.Millisecond)
}

// TestMaxInstancesEvent 测试并发实例已满时派发 JobMaxInstances 事件
func TestMaxInstancesEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobMaxInstances)

	release := make(chan struct{})
	slow := &Callable{Ref: "test:slow", Fn: func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}}

	require.NoError(t, s.Start(ctx, false))
	_, err := s.AddJob(ctx, slow, "interval",
		WithTriggerArgs(map[string]any{"seconds": 0.02}),
		WithMaxInstances(1),
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count(EventJobMaxInstances) >= 1 }, waitFor, 5*time.Millisecond)
	event := rec.first(EventJobMaxInstances).(*JobSubmissionEvent)
	assert.NotEmpty(t, event.ScheduledRunTimes)
	assert.GreaterOrEqual(t, s.Metrics().MaxInstanceSkip.Load(), int64(1))

	close(release)
	shutdown(t, s)
}

// failingStore 查询到期任务总是失败的任务存储
type failingStore struct {
	*MemoryStore
	mu sync.Mutex
	n  int
}

func (f *failingStore) GetDueJobs(context.Context, time.Time) ([]*Job, error) {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
	return nil, errors.New("connection refused")
}

func (f *failingStore) failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// TestStoreFailureIsolation 测试单个任务存储失败不影响其他存储
func TestStoreFailureIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(WithJobStoreRetryInterval(time.Hour))
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobExecuted)

	broken := &failingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, s.AddJobStore(ctx, broken, "broken"))
	require.NoError(t, s.Start(ctx, false))
	defer shutdown(t, s)

	_, err := s.AddJob(ctx, &Callable{Ref: "test:healthy", Fn: noopFunc}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count(EventJobExecuted) == 1 }, waitFor, 5*time.Millisecond)
	assert.GreaterOrEqual(t, broken.failures(), 1)
	assert.GreaterOrEqual(t, s.Metrics().StoreErrors.Load(), int64(1))
}

// TestUnknownExecutorRemovesJob 测试执行器不存在时移除任务
func TestUnknownExecutorRemovesJob(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobSubmitted|EventJobRemoved)

	require.NoError(t, s.Start(ctx, false))
	defer shutdown(t, s)

	_, err := s.AddJob(ctx, &Callable{Ref: "test:orphan", Fn: noopFunc}, nil, WithID("orphan"), WithExecutor("missing"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := s.GetJob(ctx, "orphan", "")
		return err == nil && job == nil
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rec.count(EventJobRemoved) == 1 }, waitFor, 5*time.Millisecond)
	assert.Zero(t, rec.count(EventJobSubmitted))
	assert.Equal(t, int64(1), s.Metrics().JobsRemoved.Load())
}

// TestProcessDueJobWithoutRunTimes 测试没有到期运行时间的任务不推进触发器
func TestProcessDueJobWithoutRunTimes(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobSubmitted|EventJobRemoved)

	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	fn := &Callable{Ref: "test:later", Fn: noopFunc}
	_, err := s.AddJob(ctx, fn, "interval", WithID("later"), WithTriggerArgs(map[string]any{"hours": 1}))
	require.NoError(t, err)

	job, err := s.GetJob(ctx, "later", "")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NotNil(t, job.NextRunTime)
	scheduled := *job.NextRunTime

	s.processDueJob(ctx, s.jobstores[DefaultAlias], DefaultAlias, job, time.Now())

	stored, err := s.GetJob(ctx, "later", "")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.NextRunTime)
	assert.True(t, stored.NextRunTime.Equal(scheduled))
	assert.Zero(t, rec.count(EventJobSubmitted))
	assert.Zero(t, rec.count(EventJobRemoved))
}

// TestModifyPauseResumeJob 测试修改、暂停、恢复与重新排期
func TestModifyPauseResumeJob(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventJobModified|EventJobRemoved|EventAllJobsRemoved)

	require.NoError(t, s.Start(ctx, false))
	defer shutdown(t, s)

	fn := &Callable{Ref: "test:hourly", Fn: noopFunc}
	_, err := s.AddJob(ctx, fn, "interval", WithID("hourly"), WithTriggerArgs(map[string]any{"hours": 1}))
	require.NoError(t, err)

	job, err := s.PauseJob(ctx, "hourly", "")
	require.NoError(t, err)
	assert.Nil(t, job.NextRunTime)
	assert.True(t, strings.HasSuffix(job.String(), "paused)"))

	job, err = s.ResumeJob(ctx, "hourly", "")
	require.NoError(t, err)
	require.NotNil(t, job.NextRunTime)

	job, err = s.ModifyJob(ctx, "hourly", "", WithName("renamed"), WithMaxInstances(3))
	require.NoError(t, err)
	assert.Equal(t, "renamed", job.Name)
	assert.Equal(t, 3, job.MaxInstances)

	_, err = s.ModifyJob(ctx, "hourly", "", WithID("other"))
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = s.ModifyJob(ctx, "missing", "", WithName("x"))
	assert.ErrorIs(t, err, ErrJobLookup)

	job, err = s.RescheduleJob(ctx, "hourly", "", "cron", map[string]any{"expr": "0 0 3 * * *"})
	require.NoError(t, err)
	_, isCron := job.Trigger.(*CronTrigger)
	assert.True(t, isCron)
	require.NotNil(t, job.NextRunTime)
	assert.Equal(t, 3, job.NextRunTime.UTC().Hour())

	assert.Equal(t, 4, rec.count(EventJobModified))

	require.NoError(t, s.RemoveAllJobs(ctx, ""))
	jobs, err := s.GetJobs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 1, rec.count(EventAllJobsRemoved))
}

// TestReplaceExisting 测试 ID 冲突与覆盖
func TestReplaceExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	fn := &Callable{Ref: "test:dup", Fn: noopFunc}
	future := time.Now().Add(time.Hour)
	_, err := s.AddJob(ctx, fn, NewDateTrigger(future), WithID("dup"))
	require.NoError(t, err)

	_, err = s.AddJob(ctx, fn, NewDateTrigger(future), WithID("dup"))
	assert.ErrorIs(t, err, ErrConflictingID)

	_, err = s.AddJob(ctx, fn, NewDateTrigger(future), WithID("dup"), WithName("replaced"), WithReplaceExisting(true))
	require.NoError(t, err)

	job, err := s.GetJob(ctx, "dup", "")
	require.NoError(t, err)
	assert.Equal(t, "replaced", job.Name)

	_, err = s.AddJob(ctx, fn, nil, WithJobStore("nowhere"))
	assert.ErrorIs(t, err, ErrJobStoreNotFound)
	_, err = s.AddJob(ctx, "test:unregistered", nil)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

// TestListenerReentrancy 测试监听器中使用事件 context 重入调度器
func TestListenerReentrancy(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()

	var (
		mu      sync.Mutex
		seen    int
		seenErr error
	)
	s.AddListener(func(ctx context.Context, _ Event) error {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		jobs, err := s.GetJobs(ctx, "")
		mu.Lock()
		seen, seenErr = len(jobs), err
		mu.Unlock()
		return err
	}, EventJobAdded)

	// panic 与错误只记录日志
	s.AddListener(func(context.Context, Event) error { panic("listener panic") }, EventJobAdded)
	failingID := s.AddListener(func(context.Context, Event) error { return errors.New("listener error") }, EventJobAdded)
	assert.True(t, s.RemoveListener(failingID))
	assert.False(t, s.RemoveListener(failingID))

	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	_, err := s.AddJob(ctx, &Callable{Ref: "test:reentrant", Fn: noopFunc}, NewDateTrigger(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, seenErr)
	assert.Equal(t, 1, seen)
}

// TestExecutorAndStoreManagement 测试执行器与任务存储的增删
func TestExecutorAndStoreManagement(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	rec := &eventRecorder{}
	s.AddListener(rec.listen, EventExecutorAdded|EventExecutorRemoved|EventJobStoreAdded|EventJobStoreRemoved)

	require.NoError(t, s.AddExecutorByType(ctx, "threadpool", "pool", map[string]any{"max_workers": 2}))
	assert.ErrorIs(t, s.AddExecutor(ctx, NewAsyncExecutor(), "pool"), ErrExecutorAliasExists)
	assert.ErrorIs(t, s.AddExecutorByType(ctx, "process", "proc", nil), ErrUnknownAlias)

	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	require.NoError(t, s.AddJobStoreByType(ctx, "memory", "extra", nil))
	assert.ErrorIs(t, s.AddJobStore(ctx, NewMemoryStore(), "extra"), ErrJobStoreAliasExists)

	require.NoError(t, s.RemoveExecutor(ctx, "pool", true))
	assert.ErrorIs(t, s.RemoveExecutor(ctx, "pool", true), ErrExecutorNotFound)
	require.NoError(t, s.RemoveJobStore(ctx, "extra", true))
	assert.ErrorIs(t, s.RemoveJobStore(ctx, "extra", true), ErrJobStoreNotFound)

	assert.Equal(t, 1, rec.count(EventExecutorAdded))
	assert.Equal(t, 1, rec.count(EventExecutorRemoved))
	assert.Equal(t, 1, rec.count(EventJobStoreAdded))
	assert.Equal(t, 1, rec.count(EventJobStoreRemoved))
}

// TestConfigure 测试按配置项设置调度器
func TestConfigure(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	loc := time.FixedZone("UTC+8", 8*3600)

	err := s.Configure(ctx, map[string]any{
		"apscheduler.timezone":                        loc,
		"apscheduler.jobstore_retry_interval":         30,
		"apscheduler.job_defaults.coalesce":           false,
		"apscheduler.job_defaults.max_instances":      "3",
		"apscheduler.job_defaults.misfire_grace_time": nil,
		"apscheduler.executors.default.type":          "async",
		"apscheduler.executors.pool.type":             "threadpool",
		"apscheduler.executors.pool.max_workers":      2,
		"apscheduler.jobstores.default":               map[string]any{"type": "memory"},
		"other.setting":                               true,
	}, "apscheduler.")
	require.NoError(t, err)

	assert.Equal(t, loc, s.Timezone())
	assert.Equal(t, 30*time.Second, s.cfg.JobStoreRetryInterval)
	assert.False(t, s.cfg.JobDefaults.Coalesce)
	assert.Equal(t, 3, s.cfg.JobDefaults.MaxInstances)
	assert.Nil(t, s.cfg.JobDefaults.MisfireGraceTime)

	require.Len(t, s.executors, 2)
	pool := s.executors["pool"].(*AsyncExecutor)
	assert.Equal(t, 2, pool.poolSize)
	assert.True(t, pool.forceBlocking)
	require.Len(t, s.jobstores, 1)

	err = s.Configure(ctx, map[string]any{"executors": map[string]any{"x": map[string]any{}}}, "")
	assert.ErrorIs(t, err, ErrUnknownAlias)

	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	job, err := s.AddJob(ctx, &Callable{Ref: "test:defaults", Fn: noopFunc}, NewDateTrigger(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, job.Coalesce)
	assert.Equal(t, 3, job.MaxInstances)
	assert.Nil(t, job.MisfireGraceTime)

	assert.ErrorIs(t, s.Configure(ctx, nil, ""), ErrSchedulerAlreadyRunning)
}

// TestExportImportRoundTrip 测试导出与导入
func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := newCodecRegistry(t)

	src := newTestScheduler(WithRegistry(reg))
	var buf bytes.Buffer
	assert.ErrorIs(t, src.ExportJobs(ctx, &buf, ""), ErrSchedulerNotRunning)

	require.NoError(t, src.Start(ctx, true))
	runAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	_, err := src.AddJob(ctx, "test:noop", NewDateTrigger(runAt),
		WithID("export-me"),
		WithArgs("a", 1.5),
		WithKwargs(map[string]any{"flow": "abc", "n": 3}),
	)
	require.NoError(t, err)
	require.NoError(t, src.ExportJobs(ctx, &buf, ""))
	shutdown(t, src)
	assert.Contains(t, buf.String(), `"scheduler_version": "`+Version+`"`)

	dst := newTestScheduler(WithRegistry(reg))
	require.NoError(t, dst.Start(ctx, true))
	defer shutdown(t, dst)

	n, err := dst.ImportJobs(ctx, &buf, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := dst.GetJob(ctx, "export-me", "")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NotNil(t, job.NextRunTime)
	assert.True(t, runAt.Equal(*job.NextRunTime))
	assert.True(t, runAt.Equal(job.Trigger.(*DateTrigger).RunDate))
	assert.Equal(t, []any{"a", 1.5}, job.Args)
	assert.Equal(t, "abc", job.Kwargs["flow"])
	assert.Equal(t, int64(3), job.Kwargs["n"])
}

// TestImportInvalidDocument 测试导入非法文档
func TestImportInvalidDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	require.NoError(t, s.Start(ctx, true))
	defer shutdown(t, s)

	_, err := s.ImportJobs(ctx, strings.NewReader(`[1, 2]`), "")
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = s.ImportJobs(ctx, strings.NewReader(`{"version": 2, "jobs": []}`), "")
	assert.ErrorIs(t, err, ErrUnrecognizedVersion)

	_, err = s.ImportJobs(ctx, strings.NewReader(`{"version": 1, "jobs": []}`), "missing")
	assert.ErrorIs(t, err, ErrJobStoreNotFound)
}
