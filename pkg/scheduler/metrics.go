package scheduler

import (
	"sync/atomic"
)

// Metrics 调度器运行指标
type Metrics struct {
	// 任务统计
	JobsAdded   atomic.Int64 // 加入存储的任务数
	JobsRemoved atomic.Int64 // 移除的任务数

	// 执行统计
	Submitted       atomic.Int64 // 提交给执行器的次数
	Executed        atomic.Int64 // 执行成功次数
	Failed          atomic.Int64 // 执行失败次数
	Missed          atomic.Int64 // 错过执行次数
	MaxInstanceSkip atomic.Int64 // 因并发上限跳过的次数
	Running         atomic.Int64 // 执行中的实例数

	// 性能统计（毫秒）
	TotalDuration atomic.Int64
	MaxDuration   atomic.Int64

	// 调度循环
	ProcessPasses atomic.Int64 // 实际处理到期任务的轮数
	StoreErrors   atomic.Int64 // 任务存储查询失败次数
}

// NewMetrics 创建指标实例
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRun 记录一次执行结束
func (m *Metrics) RecordRun(durationMs int64, err error) {
	if err != nil {
		m.Failed.Add(1)
	} else {
		m.Executed.Add(1)
	}
	m.TotalDuration.Add(durationMs)

	for {
		old := m.MaxDuration.Load()
		if durationMs <= old || m.MaxDuration.CompareAndSwap(old, durationMs) {
			break
		}
	}
}

// GetSnapshot 获取指标快照
func (m *Metrics) GetSnapshot() map[string]int64 {
	return map[string]int64{
		"jobs_added":        m.JobsAdded.Load(),
		"jobs_removed":      m.JobsRemoved.Load(),
		"submitted":         m.Submitted.Load(),
		"executed":          m.Executed.Load(),
		"failed":            m.Failed.Load(),
		"missed":            m.Missed.Load(),
		"max_instance_skip": m.MaxInstanceSkip.Load(),
		"running":           m.Running.Load(),
		"total_duration_ms": m.TotalDuration.Load(),
		"max_duration_ms":   m.MaxDuration.Load(),
		"process_passes":    m.ProcessPasses.Load(),
		"store_errors":      m.StoreErrors.Load(),
	}
}

// GetSuccessRate 获取成功率
func (m *Metrics) GetSuccessRate() float64 {
	success := m.Executed.Load()
	total := success + m.Failed.Load()
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total) * 100
}
