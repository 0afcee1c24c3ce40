package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	applog "github.com/tokmz/apsched/pkg/logger"
	"github.com/tokmz/apsched/pkg/syncx"
)

// Executor 任务执行器接口
type Executor interface {
	// Start 调度器启动或添加执行器时调用
	Start(ctx context.Context, sched *Scheduler, alias string) error
	// Shutdown 关闭执行器，wait 为 true 时等待所有执行中的任务返回
	Shutdown(ctx context.Context, wait bool) error
	// SubmitJob 提交任务，并发实例已满时返回 MaxInstancesReachedError
	SubmitJob(ctx context.Context, job *Job, runTimes []time.Time) error
}

// AsyncExecutor 非阻塞函数直接在独立 goroutine 中运行，阻塞函数在有界工作池中运行
type AsyncExecutor struct {
	lock      *syncx.ReentrantLock
	instances map[string]int // jobID -> 执行中的实例数

	poolSize      int
	pool          *semaphore.Weighted
	forceBlocking bool // 所有函数都进入工作池

	sched  *Scheduler
	alias  string
	logger Logger
	tracer trace.Tracer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ExecutorOption 执行器选项
type ExecutorOption func(*AsyncExecutor)

// WithPoolSize 设置阻塞函数工作池大小
func WithPoolSize(n int) ExecutorOption {
	return func(e *AsyncExecutor) {
		if n > 0 {
			e.poolSize = n
		}
	}
}

// WithForceBlocking 所有函数都在工作池中运行
func WithForceBlocking(force bool) ExecutorOption {
	return func(e *AsyncExecutor) {
		e.forceBlocking = force
	}
}

// NewAsyncExecutor 创建执行器
func NewAsyncExecutor(opts ...ExecutorOption) *AsyncExecutor {
	e := &AsyncExecutor{
		lock:      syncx.NewReentrantLock(),
		instances: make(map[string]int),
		poolSize:  DefaultPoolSize,
		logger:    NopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = semaphore.NewWeighted(int64(e.poolSize))
	return e
}

// newExecutorFromOptions 由配置项构造执行器，支持 pool_size 或 max_workers
func newExecutorFromOptions(opts map[string]any, forceBlocking bool) (Executor, error) {
	var execOpts []ExecutorOption
	for _, key := range []string{"pool_size", "max_workers"} {
		if v, ok := opts[key]; ok {
			n, err := toInt(v)
			if err != nil {
				return nil, ErrInvalidJob.WithMessagef("invalid executor option %s=%v", key, v)
			}
			execOpts = append(execOpts, WithPoolSize(n))
		}
	}
	execOpts = append(execOpts, WithForceBlocking(forceBlocking))
	return NewAsyncExecutor(execOpts...), nil
}

func (e *AsyncExecutor) Start(ctx context.Context, sched *Scheduler, alias string) error {
	lctx, err := e.lock.Lock(ctx)
	if err != nil {
		return err
	}
	defer e.lock.Unlock(lctx) //nolint:errcheck

	e.sched = sched
	e.alias = alias
	e.logger = sched.logger
	e.tracer = otel.Tracer(sched.cfg.TracerName)
	// 执行器生命周期独立于 Start 的调用方
	e.baseCtx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return nil
}

func (e *AsyncExecutor) Shutdown(ctx context.Context, wait bool) error {
	lctx, err := e.lock.Lock(ctx)
	if err != nil {
		return err
	}
	cancel := e.cancel
	e.baseCtx, e.cancel = nil, nil
	e.lock.Unlock(lctx) //nolint:errcheck

	if cancel == nil {
		return nil
	}
	if !wait {
		cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (e *AsyncExecutor) SubmitJob(ctx context.Context, job *Job, runTimes []time.Time) error {
	lctx, err := e.lock.Lock(ctx)
	if err != nil {
		return err
	}
	defer e.lock.Unlock(lctx) //nolint:errcheck

	if e.baseCtx == nil {
		return ErrSchedulerNotRunning.WithMessagef("executor %s is not started", e.alias)
	}
	if e.instances[job.ID] >= job.MaxInstances {
		return MaxInstancesReachedError(job)
	}

	fn := job.fn
	if fn == nil {
		if fn, err = e.sched.registry.Callable(job.FuncRef); err != nil {
			return err
		}
	}

	e.instances[job.ID]++
	e.sched.metrics.Running.Add(1)
	e.wg.Add(1)
	go e.run(e.baseCtx, job.Clone(), fn, runTimes)
	return nil
}

// Instances 返回任务当前执行中的实例数
func (e *AsyncExecutor) Instances(jobID string) int {
	lctx, err := e.lock.Lock(context.Background())
	if err != nil {
		return 0
	}
	defer e.lock.Unlock(lctx) //nolint:errcheck
	return e.instances[jobID]
}

func (e *AsyncExecutor) run(ctx context.Context, job *Job, fn *Callable, runTimes []time.Time) {
	defer e.wg.Done()

	if fn.Blocking || e.forceBlocking {
		if err := e.pool.Acquire(ctx, 1); err != nil {
			e.logger.Warn("[executor] 任务 %s 等待工作池时执行器已关闭", job.ID)
			e.finish(ctx, job, nil)
			return
		}
		defer e.pool.Release(1)
	}

	events := e.runJob(ctx, job, fn, runTimes)
	e.finish(ctx, job, events)
}

// runJob 依次执行各个计划时间，超过 MisfireGraceTime 的计划时间记为错过
func (e *AsyncExecutor) runJob(ctx context.Context, job *Job, fn *Callable, runTimes []time.Time) []Event {
	events := make([]Event, 0, len(runTimes))
	for _, runTime := range runTimes {
		base := JobEvent{JobID: job.ID, JobStore: job.JobStore}

		if job.MisfireGraceTime != nil {
			if late := e.sched.now().Sub(runTime); late > *job.MisfireGraceTime {
				e.sched.metrics.Missed.Add(1)
				e.logger.Warn("[executor] 任务 %s 错过执行时间 %s，延迟 %s", job, runTime.Format(time.RFC3339), late)
				base.EventCode = EventJobMissed
				events = append(events, &JobExecutionEvent{JobEvent: base, ScheduledRunTime: runTime})
				continue
			}
		}

		e.logger.Info("[executor] 开始执行任务 %s", job)
		retval, err := e.call(ctx, job, fn, runTime)
		if err != nil {
			e.logger.Error("[executor] 任务 %s 执行失败: %v", job, err)
			base.EventCode = EventJobError
		} else {
			e.logger.Info("[executor] 任务 %s 执行成功", job)
			base.EventCode = EventJobExecuted
		}
		events = append(events, &JobExecutionEvent{
			JobEvent:         base,
			ScheduledRunTime: runTime,
			RetVal:           retval,
			Err:              err,
		})
	}
	return events
}

// call 在链路追踪 Span 内调用任务函数，panic 转换为错误
func (e *AsyncExecutor) call(ctx context.Context, job *Job, fn *Callable, runTime time.Time) (retval any, err error) {
	ctx = applog.WithJobStore(applog.WithJobID(ctx, job.ID), job.JobStore)
	ctx, span := e.tracer.Start(ctx, "job.execute",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.name", job.Name),
			attribute.String("job.func", job.FuncRef),
			attribute.String("job.executor", e.alias),
			attribute.String("job.scheduled_run_time", runTime.Format(time.RFC3339Nano)),
		),
	)
	defer span.End()

	span.AddEvent("callable_executing")
	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job %s panicked: %v", job.ID, r)
			}
		}()
		retval, err = fn.Fn(ctx, job.Args, job.Kwargs)
	}()
	duration := time.Since(start).Milliseconds()
	e.sched.metrics.RecordRun(duration, err)

	span.SetAttributes(attribute.Int64("job.duration_ms", duration))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "executed")
	}
	return retval, err
}

// finish 递减实例计数并派发事件
func (e *AsyncExecutor) finish(ctx context.Context, job *Job, events []Event) {
	lctx, _ := e.lock.Lock(context.Background())
	if n := e.instances[job.ID] - 1; n > 0 {
		e.instances[job.ID] = n
	} else {
		delete(e.instances, job.ID)
	}
	e.lock.Unlock(lctx) //nolint:errcheck
	e.sched.metrics.Running.Add(-1)

	for _, ev := range events {
		e.sched.dispatchEvent(context.WithoutCancel(ctx), ev)
	}
}
