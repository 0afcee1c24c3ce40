package storage

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tokmz/apsched/pkg/scheduler"
)

// 注册到 Registry 的存储类型别名
const (
	GormAlias  = "gorm"
	RedisAlias = "redis"
)

// RegisterGorm 注册 gorm 存储类型，配置中可通过 table 指定表名
func RegisterGorm(reg *scheduler.Registry, db *gorm.DB, opts ...Option) {
	reg.RegisterJobStore(GormAlias, func(cfg map[string]any) (scheduler.JobStore, error) {
		o := append([]Option(nil), opts...)
		if table, ok := cfg["table"].(string); ok {
			o = append(o, WithTableName(table))
		} else if table, ok := cfg["tablename"].(string); ok {
			o = append(o, WithTableName(table))
		}
		if migrate, ok := cfg["auto_migrate"].(bool); ok {
			o = append(o, WithAutoMigrate(migrate))
		}
		return NewGormStore(db, o...), nil
	})
}

// RegisterRedis 注册 redis 存储类型，配置中可通过 prefix 指定键前缀
func RegisterRedis(reg *scheduler.Registry, client redis.UniversalClient, opts ...Option) {
	reg.RegisterJobStore(RedisAlias, func(cfg map[string]any) (scheduler.JobStore, error) {
		o := append([]Option(nil), opts...)
		if prefix, ok := cfg["prefix"].(string); ok {
			o = append(o, WithKeyPrefix(prefix))
		}
		return NewRedisStore(client, o...), nil
	})
}

var (
	_ scheduler.JobStore = (*GormStore)(nil)
	_ scheduler.JobStore = (*RedisStore)(nil)
)
