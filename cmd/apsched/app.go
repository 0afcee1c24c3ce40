package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tokmz/apsched/pkg/config"
	"github.com/tokmz/apsched/pkg/flowrun"
	applog "github.com/tokmz/apsched/pkg/logger"
	"github.com/tokmz/apsched/pkg/orm"
	"github.com/tokmz/apsched/pkg/rdb"
	"github.com/tokmz/apsched/pkg/scheduler"
	"github.com/tokmz/apsched/pkg/scheduler/storage"
	"github.com/tokmz/apsched/pkg/tracing"
)

const (
	envPrefix       = "APSCHED"
	schedulerPrefix = "scheduler."
	defaultStore    = "default"
)

// AppConfig 进程级配置，scheduler 段交给 Scheduler.Configure 处理
type AppConfig struct {
	Logger    applog.Config  `mapstructure:"logger"`
	Database  orm.Config     `mapstructure:"database"`
	Redis     *rdb.Config    `mapstructure:"redis"` // 为空时不注册 redis 存储类型
	Tracing   tracing.Config `mapstructure:"tracing"`
	FlowRun   flowrun.Config `mapstructure:"flowrun"`
	JobsTable string         `mapstructure:"jobs_table"`
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Logger:    applog.Config{Level: applog.InfoLevel, Format: applog.ConsoleFormat, Console: true},
		Database:  *orm.DefaultConfig(),
		Tracing:   *tracing.DefaultConfig(),
		FlowRun:   *flowrun.DefaultConfig(),
		JobsTable: storage.DefaultTableName,
	}
}

// app 命令共享的运行时依赖
type app struct {
	conf   *config.Config
	cfg    *AppConfig
	log    applog.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	tracer *tracing.Provider
	runner *flowrun.Runner
	sched  *scheduler.Scheduler
}

// loadConfig 读取配置文件与 APSCHED_ 前缀的环境变量
func loadConfig(path string, watch bool) (*config.Config, *AppConfig, error) {
	conf := config.New(
		config.WithConfigFile(path),
		config.WithEnvPrefix(envPrefix),
		config.WithAutoWatch(watch),
		config.WithDefaults(map[string]any{
			schedulerPrefix + "jobstores." + defaultStore + ".type": storage.GormAlias,
		}),
	)
	if err := conf.Load(); err != nil {
		return nil, nil, err
	}
	cfg := defaultAppConfig()
	if err := conf.Unmarshal(cfg); err != nil {
		return nil, nil, err
	}
	return conf, cfg, nil
}

// newApp 按配置组装日志、数据库、Redis、链路追踪与调度器
func newApp(ctx context.Context, path string, watch bool) (_ *app, err error) {
	conf, cfg, err := loadConfig(path, watch)
	if err != nil {
		return nil, err
	}
	a := &app{conf: conf, cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if a.log, err = applog.New(&cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if a.tracer, err = tracing.Setup(ctx, &cfg.Tracing); err != nil {
		return nil, err
	}
	if a.db, err = orm.New(&cfg.Database, a.log.Named("gorm")); err != nil {
		return nil, err
	}
	if cfg.Redis != nil {
		if a.redis, err = rdb.New(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}

	reg := scheduler.DefaultRegistry()
	storage.RegisterGorm(reg, a.db, storage.WithTableName(cfg.JobsTable))
	if a.redis != nil {
		storage.RegisterRedis(reg, a.redis)
	}
	a.runner = flowrun.NewWithConfig(&cfg.FlowRun, a.log.Named("flowrun"))
	if err = a.runner.Register(reg); err != nil {
		return nil, err
	}

	a.sched = scheduler.New(
		scheduler.WithLogger(scheduler.NewZapLogger(a.log.Named("scheduler").Zap())),
		scheduler.WithRegistry(reg),
	)
	if err = a.sched.Configure(ctx, conf.FlatSettings(schedulerPrefix), schedulerPrefix); err != nil {
		return nil, err
	}
	return a, nil
}

// statusStore 与调度器共用任务表的 GormStore，用于状态记录与按用户查询
// 可能先于调度器启动，因此同样执行建表
func (a *app) statusStore(ctx context.Context) (*storage.GormStore, error) {
	store := storage.NewGormStore(a.db, storage.WithTableName(a.cfg.JobsTable))
	if err := store.Start(ctx, a.sched, defaultStore); err != nil {
		return nil, err
	}
	return store, nil
}

// attachStatusRecorder 默认存储为 gorm 时注册状态记录监听器，需在 Start 之前调用
// 返回 nil 表示默认存储不是 gorm
func (a *app) attachStatusRecorder(ctx context.Context) (*storage.GormStore, error) {
	if a.conf.GetString(schedulerPrefix+"jobstores."+defaultStore+".type") != storage.GormAlias {
		return nil, nil
	}
	store, err := a.statusStore(ctx)
	if err != nil {
		return nil, err
	}
	storage.NewStatusRecorder(store, defaultStore).Attach(a.sched)
	return store, nil
}

// watchLogLevel 配置文件变更时调整日志级别
func (a *app) watchLogLevel() {
	a.conf.OnChange(func(c *config.Config) {
		level, err := applog.ParseLevel(c.GetString("logger.level"))
		if err != nil {
			a.log.Warn("[config] 无效的日志级别", zap.Error(err))
			return
		}
		if level != a.log.Level() {
			a.log.SetLevel(level)
			a.log.Info("[config] 日志级别已更新", zap.String("level", level.String()))
		}
	})
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.conf != nil {
		a.conf.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, orm.Close(a.db))
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.log != nil {
		if err := errors.Join(errs...); err != nil {
			a.log.Error("[apsched] 资源释放失败", zap.Error(err))
		}
		_ = a.log.Sync()
	}
}
