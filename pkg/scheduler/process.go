package scheduler

import (
	"context"
	"time"

	"github.com/tokmz/apsched/pkg/errors"
)

// processJobs 处理各任务存储中的到期任务，返回距下次唤醒的等待时间
// 返回 nil 表示没有已排期的任务
func (s *Scheduler) processJobs(ctx context.Context) *time.Duration {
	if s.State() != StateRunning {
		return nil
	}
	s.metrics.ProcessPasses.Add(1)
	s.logger.Debug("[scheduler] 开始处理到期任务")

	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	now := s.now()
	var nextWakeup *time.Time
	retry := func() {
		s.metrics.StoreErrors.Add(1)
		retryAt := now.Add(s.cfg.JobStoreRetryInterval)
		if runTimeBefore(&retryAt, nextWakeup) {
			nextWakeup = &retryAt
		}
	}

	for _, alias := range sortedKeys(s.jobstores) {
		store := s.jobstores[alias]

		dueJobs, err := store.GetDueJobs(lctx, now)
		if err != nil {
			s.logger.Warn("[scheduler] 查询任务存储 %s 的到期任务失败，%s 后重试: %v", alias, s.cfg.JobStoreRetryInterval, err)
			retry()
			continue
		}

		for _, job := range dueJobs {
			if job.JobStore == "" {
				job.JobStore = alias
			}
			s.processDueJob(lctx, store, alias, job, now)
		}

		next, err := store.GetNextRunTime(lctx)
		if err != nil {
			s.logger.Warn("[scheduler] 查询任务存储 %s 的下次执行时间失败: %v", alias, err)
			retry()
			continue
		}
		if runTimeBefore(next, nextWakeup) {
			nextWakeup = next
		}
	}

	if nextWakeup == nil {
		return nil
	}
	wait := nextWakeup.Sub(s.now())
	if wait < 0 {
		wait = 0
	}
	if wait > TimeoutMax {
		wait = TimeoutMax
	}
	return &wait
}

// processDueJob 提交单个到期任务并更新或移除
func (s *Scheduler) processDueJob(ctx context.Context, store JobStore, alias string, job *Job, now time.Time) {
	exec, err := s.lookupExecutor(ctx, job.Executor)
	if err != nil {
		s.logger.Error("[scheduler] 任务 %s 的执行器 %s 不存在，移除该任务", job.ID, job.Executor)
		if err := s.RemoveJob(ctx, job.ID, alias); err != nil {
			s.logger.Error("[scheduler] 从任务存储 %s 移除任务 %s 失败: %v", alias, job.ID, err)
		}
		return
	}

	runTimes := job.GetRunTimes(now)
	if job.Coalesce && len(runTimes) > 1 {
		runTimes = runTimes[len(runTimes)-1:]
	}

	if len(runTimes) > 0 {
		event := &JobSubmissionEvent{
			JobEvent:          JobEvent{JobID: job.ID, JobStore: alias},
			ScheduledRunTimes: runTimes,
		}
		err := exec.SubmitJob(ctx, job, runTimes)
		switch {
		case errors.Is(err, ErrMaxInstancesReached):
			s.metrics.MaxInstanceSkip.Add(1)
			s.logger.Warn("[scheduler] 任务 %s 未执行：已达到最大并发实例数 %d", job, job.MaxInstances)
			event.EventCode = EventJobMaxInstances
			s.dispatchEvent(ctx, event)
		case err != nil:
			s.logger.Error("[scheduler] 提交任务 %s 到执行器 %s 失败: %v", job, job.Executor, err)
		default:
			s.metrics.Submitted.Add(1)
			event.EventCode = EventJobSubmitted
			s.dispatchEvent(ctx, event)
		}
	}

	// 没有可执行的运行时间时不推进触发器
	if len(runTimes) == 0 {
		return
	}

	last := &runTimes[len(runTimes)-1]
	if next := job.Trigger.NextFireTime(last, now); next != nil {
		job.NextRunTime = next
		if err := store.UpdateJob(ctx, job); err != nil {
			s.logger.Error("[scheduler] 更新任务 %s 失败: %v", job.ID, err)
		}
		return
	}

	s.logger.Debug("[scheduler] 任务 %s 已无下次执行时间，移除该任务", job.ID)
	if err := s.RemoveJob(ctx, job.ID, alias); err != nil {
		s.logger.Error("[scheduler] 移除已结束任务 %s 失败: %v", job.ID, err)
	}
}
