package scheduler

import (
	"context"
	"time"
)

// JobStore 任务存储接口
// 调用方持有调度器的任务存储锁，实现仍需自行保证内部缓存的并发安全
type JobStore interface {
	// Start 调度器启动或添加存储时调用
	Start(ctx context.Context, sched *Scheduler, alias string) error
	// Shutdown 调度器关闭或移除存储时调用
	Shutdown(ctx context.Context) error
	// LookupJob 查找任务，不存在时返回 nil, nil
	LookupJob(ctx context.Context, id string) (*Job, error)
	// GetDueJobs 返回 NextRunTime <= now 的任务，按 NextRunTime 升序
	GetDueJobs(ctx context.Context, now time.Time) ([]*Job, error)
	// GetNextRunTime 返回最早的 NextRunTime，没有时返回 nil
	GetNextRunTime(ctx context.Context) (*time.Time, error)
	// GetAllJobs 返回全部任务，按 NextRunTime 升序，暂停的任务排在最后
	GetAllJobs(ctx context.Context) ([]*Job, error)
	// AddJob 添加任务，ID 已存在时返回 ConflictingIDError
	AddJob(ctx context.Context, job *Job) error
	// UpdateJob 更新任务，不存在时返回 JobLookupError
	UpdateJob(ctx context.Context, job *Job) error
	// RemoveJob 移除任务，不存在时返回 JobLookupError
	RemoveJob(ctx context.Context, id string) error
	// RemoveAllJobs 清空任务
	RemoveAllJobs(ctx context.Context) error
}

// runTimeBefore 按 NextRunTime 比较，nil 视为无穷大
func runTimeBefore(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Before(*b)
}
