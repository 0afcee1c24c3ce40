// Package orm 创建任务存储使用的 gorm 连接
package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"github.com/tokmz/apsched/pkg/logger"
)

// New 创建 GORM 数据库实例
// log 为 nil 时使用 gorm 默认日志
func New(cfg *Config, log logger.Logger) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	gormConfig := &gorm.Config{
		SkipDefaultTransaction: cfg.SkipDefaultTransaction,
		PrepareStmt:            cfg.PrepareStmt,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: cfg.TablePrefix,
		},
	}
	if log != nil {
		gormConfig.Logger = newLogger(cfg, log)
	}

	dialector, err := getDialector(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if cfg.ReadWriteSplit != nil {
		if err := setupReadWriteSplit(db, cfg); err != nil {
			return nil, fmt.Errorf("failed to setup read-write split: %w", err)
		}
	}

	if cfg.EnableTracing {
		if err := db.Use(NewTracingPlugin(WithSQLTrace(cfg.TraceSQL))); err != nil {
			return nil, fmt.Errorf("failed to register tracing plugin: %w", err)
		}
	}

	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// getDialector 根据数据库类型返回对应的 Dialector
func getDialector(dbType DBType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case MySQL:
		return mysql.Open(dsn), nil
	case PostgreSQL:
		return postgres.Open(dsn), nil
	case SQLite, "":
		return sqlite.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// setupReadWriteSplit 配置读写分离
func setupReadWriteSplit(db *gorm.DB, cfg *Config) error {
	rwCfg := cfg.ReadWriteSplit
	if len(rwCfg.Sources) == 0 {
		return fmt.Errorf("read-write split enabled but no sources provided")
	}

	replicas := make([]gorm.Dialector, 0, len(rwCfg.Sources))
	for _, dsn := range rwCfg.Sources {
		dialector, err := getDialector(cfg.Type, dsn)
		if err != nil {
			return err
		}
		replicas = append(replicas, dialector)
	}

	resolver := dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   getLoadBalancePolicy(rwCfg.Policy),
	})
	if rwCfg.MaxIdleConns != nil {
		resolver.SetMaxIdleConns(*rwCfg.MaxIdleConns)
	}
	if rwCfg.MaxOpenConns != nil {
		resolver.SetMaxOpenConns(*rwCfg.MaxOpenConns)
	}
	if rwCfg.ConnMaxLifetime != nil {
		resolver.SetConnMaxLifetime(*rwCfg.ConnMaxLifetime)
	}

	return db.Use(resolver)
}

// getLoadBalancePolicy 获取负载均衡策略
func getLoadBalancePolicy(policy string) dbresolver.Policy {
	if policy == "round_robin" {
		return dbresolver.RoundRobinPolicy()
	}
	return dbresolver.RandomPolicy{}
}

// zapGormLogger 将 gorm 日志输出到 zap
type zapGormLogger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newLogger(cfg *Config, log logger.Logger) gormlogger.Interface {
	level := gormlogger.LogLevel(cfg.LogLevel)
	if level == 0 {
		level = gormlogger.Warn
	}
	return &zapGormLogger{log: log.Named("gorm"), level: level, slowThreshold: cfg.SlowThreshold}
}

func (l *zapGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "[gorm] 执行失败", zap.Error(err), zap.Duration("elapsed", elapsed), zap.String("sql", sql), zap.Int64("rows", rows))
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "[gorm] 慢查询", zap.Duration("elapsed", elapsed), zap.String("sql", sql), zap.Int64("rows", rows))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.DebugContext(ctx, "[gorm] sql", zap.Duration("elapsed", elapsed), zap.String("sql", sql), zap.Int64("rows", rows))
	}
}
