package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventCode 事件类型，可按位组合为监听掩码
type EventCode uint32

const (
	EventSchedulerStarted EventCode = 1 << iota
	EventSchedulerShutdown
	EventSchedulerPaused
	EventSchedulerResumed
	EventExecutorAdded
	EventExecutorRemoved
	EventJobStoreAdded
	EventJobStoreRemoved
	EventAllJobsRemoved
	EventJobAdded
	EventJobRemoved
	EventJobModified
	EventJobExecuted
	EventJobError
	EventJobMissed
	EventJobSubmitted
	EventJobMaxInstances

	EventAll = EventSchedulerStarted | EventSchedulerShutdown | EventSchedulerPaused |
		EventSchedulerResumed | EventExecutorAdded | EventExecutorRemoved |
		EventJobStoreAdded | EventJobStoreRemoved | EventAllJobsRemoved |
		EventJobAdded | EventJobRemoved | EventJobModified | EventJobExecuted |
		EventJobError | EventJobMissed | EventJobSubmitted | EventJobMaxInstances
)

var eventNames = map[EventCode]string{
	EventSchedulerStarted:  "scheduler_started",
	EventSchedulerShutdown: "scheduler_shutdown",
	EventSchedulerPaused:   "scheduler_paused",
	EventSchedulerResumed:  "scheduler_resumed",
	EventExecutorAdded:     "executor_added",
	EventExecutorRemoved:   "executor_removed",
	EventJobStoreAdded:     "jobstore_added",
	EventJobStoreRemoved:   "jobstore_removed",
	EventAllJobsRemoved:    "all_jobs_removed",
	EventJobAdded:          "job_added",
	EventJobRemoved:        "job_removed",
	EventJobModified:       "job_modified",
	EventJobExecuted:       "job_executed",
	EventJobError:          "job_error",
	EventJobMissed:         "job_missed",
	EventJobSubmitted:      "job_submitted",
	EventJobMaxInstances:   "job_max_instances",
}

// Code 返回事件类型，嵌入后即满足 Event 接口
func (c EventCode) Code() EventCode {
	return c
}

func (c EventCode) String() string {
	if name, ok := eventNames[c]; ok {
		return name
	}
	var parts []string
	for code := EventCode(1); code <= EventJobMaxInstances; code <<= 1 {
		if c&code != 0 {
			parts = append(parts, eventNames[code])
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("event(%d)", uint32(c))
	}
	return strings.Join(parts, "|")
}

// Event 调度器事件
type Event interface {
	Code() EventCode
}

// SchedulerEvent 调度器、执行器、任务存储级别的事件
type SchedulerEvent struct {
	EventCode
	Alias string // 执行器或任务存储别名
}

// JobEvent 单个任务的事件
type JobEvent struct {
	EventCode
	JobID    string
	JobStore string
}

// JobSubmissionEvent 任务提交事件
type JobSubmissionEvent struct {
	JobEvent
	ScheduledRunTimes []time.Time
}

// JobExecutionEvent 任务执行结果事件
type JobExecutionEvent struct {
	JobEvent
	ScheduledRunTime time.Time
	RetVal           any
	Err              error
}

// Listener 事件监听器，返回的错误只记录日志
type Listener func(ctx context.Context, event Event) error

// ListenerID 监听器标识，用于移除
type ListenerID uint64

type listenerEntry struct {
	id       ListenerID
	callback Listener
	mask     EventCode
}
