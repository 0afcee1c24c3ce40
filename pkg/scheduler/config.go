package scheduler

import (
	"time"
)

// JobDefaults 任务默认参数，任务未显式指定时在真正加入存储时填充
type JobDefaults struct {
	MisfireGraceTime *time.Duration // nil 表示不限制延迟
	Coalesce         bool
	MaxInstances     int
}

// Config 调度器配置
type Config struct {
	// 日志器
	Logger Logger

	// 插件注册表（触发器、执行器、任务存储、可调用对象）
	Registry *Registry

	// 时区，用于按别名构造触发器
	Timezone *time.Location

	// 任务存储查询失败后的重试间隔
	JobStoreRetryInterval time.Duration

	// 任务默认参数
	JobDefaults JobDefaults

	// 链路追踪 Tracer 名称
	TracerName string

	// 时钟，测试中可替换
	Clock func() time.Time
}

// Option 配置选项
type Option func(*Config)

// WithLogger 设置日志器
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRegistry 设置插件注册表
func WithRegistry(r *Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithTimezone 设置时区
func WithTimezone(loc *time.Location) Option {
	return func(c *Config) {
		c.Timezone = loc
	}
}

// WithJobStoreRetryInterval 设置任务存储重试间隔
func WithJobStoreRetryInterval(d time.Duration) Option {
	return func(c *Config) {
		c.JobStoreRetryInterval = d
	}
}

// WithJobDefaults 设置任务默认参数
func WithJobDefaults(d JobDefaults) Option {
	return func(c *Config) {
		c.JobDefaults = d
	}
}

// WithTracerName 设置 Tracer 名称
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithClock 设置时钟
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	grace := DefaultMisfireGraceTime
	return &Config{
		Logger:                &StdLogger{},
		Timezone:              time.UTC,
		JobStoreRetryInterval: DefaultJobStoreRetryInterval,
		JobDefaults: JobDefaults{
			MisfireGraceTime: &grace,
			Coalesce:         DefaultCoalesce,
			MaxInstances:     DefaultMaxInstances,
		},
		TracerName: "apsched.scheduler",
		Clock:      time.Now,
	}
}
