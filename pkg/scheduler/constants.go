package scheduler

import "time"

// Version 导出文件中记录的调度器版本
const Version = "1.0.0"

// 任务默认值
const (
	// DefaultMisfireGraceTime 默认允许的延迟执行时间
	DefaultMisfireGraceTime = time.Second
	// DefaultCoalesce 默认合并错过的执行
	DefaultCoalesce = true
	// DefaultMaxInstances 默认单任务并发实例数
	DefaultMaxInstances = 1
)

// 调度器相关常量
const (
	// DefaultJobStoreRetryInterval 任务存储查询失败后的重试间隔
	DefaultJobStoreRetryInterval = 10 * time.Second
	// TimeoutMax 定时器最长等待时间
	TimeoutMax = 4294967 * time.Second
	// DefaultPoolSize 阻塞任务线程池默认大小
	DefaultPoolSize = 10
	// DefaultAlias 默认执行器与任务存储别名
	DefaultAlias = "default"
)

// 状态序列化键
const (
	classKey  = "__apscheduler_class__"
	stateKey  = "__apscheduler_state__"
	pickleKey = "__apscheduler_pickle__"
)
