package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tokmz/apsched/pkg/scheduler"
)

// StatusRecorder 监听执行事件，把任务状态与执行结果写回 GormStore
type StatusRecorder struct {
	store *GormStore
	alias string
}

// NewStatusRecorder 创建状态记录器，只处理属于 alias 存储的任务事件
func NewStatusRecorder(store *GormStore, alias string) *StatusRecorder {
	return &StatusRecorder{store: store, alias: alias}
}

// Mask 关注的事件
func (r *StatusRecorder) Mask() scheduler.EventCode {
	return scheduler.EventJobSubmitted | scheduler.EventJobExecuted | scheduler.EventJobError | scheduler.EventJobMissed
}

// Attach 注册到调度器
func (r *StatusRecorder) Attach(sched *scheduler.Scheduler) scheduler.ListenerID {
	return sched.AddListener(r.Listen, r.Mask())
}

// Listen 事件回调
func (r *StatusRecorder) Listen(ctx context.Context, event scheduler.Event) error {
	switch ev := event.(type) {
	case *scheduler.JobSubmissionEvent:
		if ev.JobStore != r.alias {
			return nil
		}
		return r.store.markRunning(ctx, ev.JobID)
	case *scheduler.JobExecutionEvent:
		if ev.JobStore != r.alias {
			return nil
		}
		switch ev.Code() {
		case scheduler.EventJobExecuted:
			return r.store.SetStatus(ctx, ev.JobID, JobStatusCompleted, formatResult(ev.RetVal), nil)
		case scheduler.EventJobError:
			msg := "job raised an error"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			return r.store.SetStatus(ctx, ev.JobID, JobStatusFailed, nil, &msg)
		case scheduler.EventJobMissed:
			msg := fmt.Sprintf("run time %s was missed", ev.ScheduledRunTime.Format("2006-01-02 15:04:05 MST"))
			return r.store.SetStatus(ctx, ev.JobID, JobStatusFailed, nil, &msg)
		}
	}
	return nil
}

// formatResult 结果优先编码为 JSON
func formatResult(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(data)
		}
	}
	return &s
}
