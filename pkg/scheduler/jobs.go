package scheduler

import (
	"context"
	"fmt"
	"io"

	"github.com/tokmz/apsched/pkg/errors"
)

// AddJob 添加任务
// fn 为 *Callable 或已注册的引用，trigger 为 Trigger、触发器别名或 nil（立即执行一次）
// 调度器未启动时任务进入待处理列表，启动时提交到任务存储
func (s *Scheduler) AddJob(ctx context.Context, fn any, trigger any, opts ...JobOption) (*Job, error) {
	spec := &jobSpec{job: &Job{}}
	for _, opt := range opts {
		opt(spec)
	}
	job := spec.job

	callable, err := s.resolveCallable(fn)
	if err != nil {
		return nil, err
	}
	job.fn = callable
	job.FuncRef = callable.Ref

	if job.Trigger, err = s.resolveTrigger(trigger, spec.triggerArgs); err != nil {
		return nil, err
	}
	if !spec.idSet {
		job.ID = newJobID()
	}
	if job.Name == "" {
		job.Name = callable.Ref
	}
	if job.Executor == "" {
		job.Executor = DefaultAlias
	}
	if spec.jobStore == "" {
		spec.jobStore = DefaultAlias
	}
	if err := spec.checkExplicit(); err != nil {
		return nil, err
	}

	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	if s.State() == StateStopped {
		s.pendingJobs = append(s.pendingJobs, spec)
		s.logger.Info("[scheduler] 任务 %q 已加入待处理列表，调度器启动后提交到任务存储", job.Name)
		return job.Clone(), nil
	}
	return s.realAddJob(lctx, spec)
}

// checkExplicit 校验显式设置的参数，其余参数在提交时由默认值补全
func (spec *jobSpec) checkExplicit() error {
	if spec.job.ID == "" {
		return ErrInvalidJob.WithMessage("job id must not be empty")
	}
	if spec.maxInstancesSet && spec.job.MaxInstances <= 0 {
		return ErrInvalidJob.WithMessagef("max_instances must be a positive integer, got %d", spec.job.MaxInstances)
	}
	return nil
}

func (s *Scheduler) resolveCallable(fn any) (*Callable, error) {
	switch f := fn.(type) {
	case *Callable:
		if f == nil || f.Ref == "" || f.Fn == nil {
			return nil, ErrInvalidJob.WithMessage("callable must have a ref and a function")
		}
		if _, err := s.registry.Callable(f.Ref); err != nil {
			if err := s.registry.RegisterCallable(f); err != nil {
				return nil, err
			}
		}
		return f, nil
	case string:
		return s.registry.Callable(f)
	default:
		return nil, ErrInvalidJob.WithMessagef("func must be a *Callable or a registered reference, got %T", fn)
	}
}

func (s *Scheduler) resolveTrigger(trigger any, args map[string]any) (Trigger, error) {
	switch t := trigger.(type) {
	case nil:
		return s.registry.NewTrigger("date", args, s.cfg.Timezone, s.now())
	case Trigger:
		return t, nil
	case string:
		return s.registry.NewTrigger(t, args, s.cfg.Timezone, s.now())
	default:
		return nil, ErrInvalidJob.WithMessagef("trigger must be a Trigger or an alias, got %T", trigger)
	}
}

// realAddJob 补全默认值并写入任务存储，调用方须持有任务存储锁
func (s *Scheduler) realAddJob(ctx context.Context, spec *jobSpec) (*Job, error) {
	job := spec.job
	defaults := s.cfg.JobDefaults
	if !spec.misfireSet && defaults.MisfireGraceTime != nil {
		d := *defaults.MisfireGraceTime
		job.MisfireGraceTime = &d
	}
	if !spec.coalesceSet {
		job.Coalesce = defaults.Coalesce
	}
	if !spec.maxInstancesSet {
		job.MaxInstances = defaults.MaxInstances
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	if !spec.nextRunTimeSet {
		job.NextRunTime = job.Trigger.NextFireTime(nil, s.now())
	}

	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	store, ok := s.jobstores[spec.jobStore]
	if !ok {
		return nil, ErrJobStoreNotFound.WithMessagef("no such job store: %s", spec.jobStore)
	}

	job.JobStore = spec.jobStore
	err = store.AddJob(lctx, job)
	if errors.Is(err, ErrConflictingID) && spec.replaceExisting {
		err = store.UpdateJob(lctx, job)
	}
	if err != nil {
		job.JobStore = ""
		return nil, err
	}

	s.metrics.JobsAdded.Add(1)
	s.logger.Info("[scheduler] 任务 %s 已加入任务存储 %s", job, spec.jobStore)
	s.dispatchEvent(lctx, &JobEvent{EventCode: EventJobAdded, JobID: job.ID, JobStore: spec.jobStore})

	if s.Running() {
		s.Wakeup()
	}
	return job.Clone(), nil
}

// lookupJob 查找任务，调用方须持有任务存储锁
// 调度器未启动时在待处理列表中查找，返回所在的待处理项
func (s *Scheduler) lookupJob(ctx context.Context, id, jobstore string) (*Job, string, *jobSpec, error) {
	if s.State() == StateStopped {
		for _, spec := range s.pendingJobs {
			if spec.job.ID == id && (jobstore == "" || spec.jobStore == jobstore) {
				return spec.job.Clone(), spec.jobStore, spec, nil
			}
		}
		return nil, "", nil, JobLookupError(id)
	}

	for _, alias := range sortedKeys(s.jobstores) {
		if jobstore != "" && alias != jobstore {
			continue
		}
		job, err := s.jobstores[alias].LookupJob(ctx, id)
		if err != nil {
			return nil, "", nil, err
		}
		if job != nil {
			job.JobStore = alias
			return job, alias, nil, nil
		}
	}
	return nil, "", nil, JobLookupError(id)
}

// ModifyJob 修改任务属性，不允许修改 ID
func (s *Scheduler) ModifyJob(ctx context.Context, id, jobstore string, changes ...JobOption) (*Job, error) {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	job, alias, pending, err := s.lookupJob(lctx, id, jobstore)
	if err != nil {
		return nil, err
	}

	spec := &jobSpec{job: job}
	for _, change := range changes {
		change(spec)
	}
	if job.ID != id {
		return nil, ErrInvalidJob.WithMessage("the job ID may not be changed")
	}
	if spec.trigger != nil {
		if job.Trigger, err = s.resolveTrigger(spec.trigger, spec.triggerArgs); err != nil {
			return nil, err
		}
	}
	if spec.jobStore != "" && spec.jobStore != alias {
		return nil, ErrInvalidJob.WithMessage("the job store of a job may not be changed")
	}

	if pending != nil {
		if err := spec.checkExplicit(); err != nil {
			return nil, err
		}
		pending.job = job
		pending.misfireSet = pending.misfireSet || spec.misfireSet
		pending.coalesceSet = pending.coalesceSet || spec.coalesceSet
		pending.maxInstancesSet = pending.maxInstancesSet || spec.maxInstancesSet
		pending.nextRunTimeSet = pending.nextRunTimeSet || spec.nextRunTimeSet
		return job.Clone(), nil
	}

	if err := job.validate(); err != nil {
		return nil, err
	}
	if err := s.jobstores[alias].UpdateJob(lctx, job); err != nil {
		return nil, err
	}

	s.dispatchEvent(lctx, &JobEvent{EventCode: EventJobModified, JobID: id, JobStore: alias})
	if s.Running() {
		s.Wakeup()
	}
	return job.Clone(), nil
}

// RescheduleJob 替换任务触发器并重新计算下次执行时间
// 新触发器不再产生执行时间时移除任务并返回 nil
func (s *Scheduler) RescheduleJob(ctx context.Context, id, jobstore string, trigger any, triggerArgs map[string]any) (*Job, error) {
	t, err := s.resolveTrigger(trigger, triggerArgs)
	if err != nil {
		return nil, err
	}
	next := t.NextFireTime(nil, s.now())
	if next == nil {
		return nil, s.RemoveJob(ctx, id, jobstore)
	}
	return s.ModifyJob(ctx, id, jobstore, WithTrigger(t), WithNextRunTime(next))
}

// PauseJob 暂停任务
func (s *Scheduler) PauseJob(ctx context.Context, id, jobstore string) (*Job, error) {
	return s.ModifyJob(ctx, id, jobstore, WithNextRunTime(nil))
}

// ResumeJob 恢复任务，触发器不再产生执行时间时移除任务并返回 nil
func (s *Scheduler) ResumeJob(ctx context.Context, id, jobstore string) (*Job, error) {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	job, _, _, err := s.lookupJob(lctx, id, jobstore)
	if err != nil {
		return nil, err
	}
	next := job.Trigger.NextFireTime(nil, s.now())
	if next == nil {
		return nil, s.RemoveJob(lctx, id, jobstore)
	}
	return s.ModifyJob(lctx, id, jobstore, WithNextRunTime(next))
}

// RemoveJob 移除任务，不存在时返回 JobLookupError
func (s *Scheduler) RemoveJob(ctx context.Context, id, jobstore string) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	alias := ""
	if s.State() == StateStopped {
		for i, spec := range s.pendingJobs {
			if spec.job.ID == id && (jobstore == "" || spec.jobStore == jobstore) {
				s.pendingJobs = append(s.pendingJobs[:i], s.pendingJobs[i+1:]...)
				alias = spec.jobStore
				break
			}
		}
	} else {
		for _, name := range sortedKeys(s.jobstores) {
			if jobstore != "" && name != jobstore {
				continue
			}
			err := s.jobstores[name].RemoveJob(lctx, id)
			if err == nil {
				alias = name
				break
			}
			if !errors.Is(err, ErrJobLookup) {
				return err
			}
		}
	}

	if alias == "" {
		return JobLookupError(id)
	}

	s.metrics.JobsRemoved.Add(1)
	s.logger.Info("[scheduler] 已移除任务 %s", id)
	s.dispatchEvent(lctx, &JobEvent{EventCode: EventJobRemoved, JobID: id, JobStore: alias})
	if s.Running() {
		s.Wakeup()
	}
	return nil
}

// RemoveAllJobs 移除全部任务，jobstore 为空时作用于所有任务存储
func (s *Scheduler) RemoveAllJobs(ctx context.Context, jobstore string) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	if s.State() == StateStopped {
		if jobstore == "" {
			s.pendingJobs = nil
		} else {
			kept := s.pendingJobs[:0]
			for _, spec := range s.pendingJobs {
				if spec.jobStore != jobstore {
					kept = append(kept, spec)
				}
			}
			s.pendingJobs = kept
		}
	} else {
		for _, alias := range sortedKeys(s.jobstores) {
			if jobstore != "" && alias != jobstore {
				continue
			}
			if err := s.jobstores[alias].RemoveAllJobs(lctx); err != nil {
				return err
			}
		}
	}

	s.dispatchEvent(lctx, &SchedulerEvent{EventCode: EventAllJobsRemoved, Alias: jobstore})
	return nil
}

// GetJobs 返回任务列表，jobstore 为空时返回所有任务存储的任务
// 调度器未启动时返回待处理列表中的任务
func (s *Scheduler) GetJobs(ctx context.Context, jobstore string) ([]*Job, error) {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	var jobs []*Job
	if s.State() == StateStopped {
		for _, spec := range s.pendingJobs {
			if jobstore == "" || spec.jobStore == jobstore {
				jobs = append(jobs, spec.job.Clone())
			}
		}
		return jobs, nil
	}

	for _, alias := range sortedKeys(s.jobstores) {
		if jobstore != "" && alias != jobstore {
			continue
		}
		storeJobs, err := s.jobstores[alias].GetAllJobs(lctx)
		if err != nil {
			return nil, err
		}
		for _, job := range storeJobs {
			job.JobStore = alias
		}
		jobs = append(jobs, storeJobs...)
	}
	return jobs, nil
}

// GetJob 查找任务，不存在时返回 nil, nil
func (s *Scheduler) GetJob(ctx context.Context, id, jobstore string) (*Job, error) {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	job, _, _, err := s.lookupJob(lctx, id, jobstore)
	if errors.Is(err, ErrJobLookup) {
		return nil, nil
	}
	return job, err
}

// PrintJobs 输出任务列表，调度器未启动时输出待处理列表
func (s *Scheduler) PrintJobs(ctx context.Context, w io.Writer, jobstore string) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	if s.State() == StateStopped {
		fmt.Fprintln(w, "Pending jobs:")
		printed := 0
		for _, spec := range s.pendingJobs {
			if jobstore == "" || spec.jobStore == jobstore {
				fmt.Fprintf(w, "    %s\n", spec.job)
				printed++
			}
		}
		if printed == 0 {
			fmt.Fprintln(w, "    No pending jobs")
		}
		return nil
	}

	for _, alias := range sortedKeys(s.jobstores) {
		if jobstore != "" && alias != jobstore {
			continue
		}
		fmt.Fprintf(w, "Jobstore %s:\n", alias)
		jobs, err := s.jobstores[alias].GetAllJobs(lctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintln(w, "    No scheduled jobs")
			continue
		}
		for _, job := range jobs {
			job.JobStore = alias
			fmt.Fprintf(w, "    %s\n", job)
		}
	}
	return nil
}
