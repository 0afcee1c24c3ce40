package storage

import (
	"github.com/tokmz/apsched/pkg/scheduler"
)

// DefaultKeyPrefix Redis 键前缀
const DefaultKeyPrefix = "apscheduler"

type options struct {
	tableName   string
	autoMigrate bool
	keyPrefix   string
	registry    *scheduler.Registry
	logger      scheduler.Logger
}

// Option 存储选项
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		tableName:   DefaultTableName,
		autoMigrate: true,
		keyPrefix:   DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTableName 设置任务表名（GormStore）
func WithTableName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.tableName = name
		}
	}
}

// WithAutoMigrate 设置启动时是否自动迁移表结构（GormStore）
func WithAutoMigrate(enable bool) Option {
	return func(o *options) {
		o.autoMigrate = enable
	}
}

// WithKeyPrefix 设置键前缀（RedisStore）
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithRegistry 设置还原任务使用的注册表，未设置时使用调度器的注册表
func WithRegistry(reg *scheduler.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLogger 设置日志，未设置时使用调度器的日志
func WithLogger(logger scheduler.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
