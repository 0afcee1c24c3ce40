package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Configure 按配置项设置调度器，只能在未启动时调用
// settings 中以 prefix 开头的键会去掉前缀，点分键展开为嵌套结构，例如：
//
//	apscheduler.timezone: Asia/Shanghai
//	apscheduler.jobstore_retry_interval: 30
//	apscheduler.job_defaults.coalesce: false
//	apscheduler.executors.default.type: async
//	apscheduler.jobstores.default.type: memory
func (s *Scheduler) Configure(ctx context.Context, settings map[string]any, prefix string) error {
	if s.State() != StateStopped {
		return ErrSchedulerAlreadyRunning.WithMessage("a running scheduler cannot be configured")
	}

	conf := expandSettings(settings, prefix)

	if v, ok := conf["timezone"]; ok && v != nil {
		loc, err := toLocation(v)
		if err != nil {
			return ErrInvalidJob.WithMessagef("invalid timezone %v", v).WithError(err)
		}
		s.cfg.Timezone = loc
	}
	if v, ok := conf["jobstore_retry_interval"]; ok && v != nil {
		d, err := toDuration(v)
		if err != nil || d <= 0 {
			return ErrInvalidJob.WithMessagef("invalid jobstore_retry_interval %v", v)
		}
		s.cfg.JobStoreRetryInterval = d
	}
	if v, ok := conf["job_defaults"]; ok {
		defaults, ok := v.(map[string]any)
		if !ok {
			return ErrInvalidJob.WithMessagef("job_defaults must be a map, got %T", v)
		}
		if err := s.configureJobDefaults(defaults); err != nil {
			return err
		}
	}

	if v, ok := conf["executors"]; ok {
		plugins, ok := v.(map[string]any)
		if !ok {
			return ErrInvalidJob.WithMessagef("executors must be a map, got %T", v)
		}
		if err := s.configureExecutors(ctx, plugins); err != nil {
			return err
		}
	}
	if v, ok := conf["jobstores"]; ok {
		plugins, ok := v.(map[string]any)
		if !ok {
			return ErrInvalidJob.WithMessagef("jobstores must be a map, got %T", v)
		}
		if err := s.configureJobStores(ctx, plugins); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) configureJobDefaults(defaults map[string]any) error {
	jd := s.cfg.JobDefaults
	if v, ok := defaults["misfire_grace_time"]; ok {
		if v == nil {
			jd.MisfireGraceTime = nil
		} else {
			d, err := toDuration(v)
			if err != nil {
				return ErrInvalidJob.WithMessagef("invalid misfire_grace_time %v", v)
			}
			if d <= 0 {
				jd.MisfireGraceTime = nil
			} else {
				jd.MisfireGraceTime = &d
			}
		}
	}
	if v, ok := defaults["coalesce"]; ok {
		b, err := toBool(v)
		if err != nil {
			return ErrInvalidJob.WithMessagef("invalid coalesce %v", v)
		}
		jd.Coalesce = b
	}
	if v, ok := defaults["max_instances"]; ok {
		n, err := toInt(v)
		if err != nil || n <= 0 {
			return ErrInvalidJob.WithMessagef("invalid max_instances %v", v)
		}
		jd.MaxInstances = n
	}
	s.cfg.JobDefaults = jd
	return nil
}

func (s *Scheduler) configureExecutors(ctx context.Context, plugins map[string]any) error {
	lctx, err := s.executorsLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.executorsLock.Unlock(lctx) //nolint:errcheck

	s.executors = make(map[string]Executor)
	for _, alias := range sortedKeys(plugins) {
		var exec Executor
		switch v := plugins[alias].(type) {
		case Executor:
			exec = v
		case map[string]any:
			typeAlias, err := pluginType(v)
			if err != nil {
				return fmt.Errorf("executor %s: %w", alias, err)
			}
			if exec, err = s.registry.NewExecutor(typeAlias, v); err != nil {
				return err
			}
		default:
			return ErrInvalidJob.WithMessagef("expected executor instance or map for executors[%s], got %T", alias, v)
		}
		if err := s.AddExecutor(lctx, exec, alias); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) configureJobStores(ctx context.Context, plugins map[string]any) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	s.jobstores = make(map[string]JobStore)
	for _, alias := range sortedKeys(plugins) {
		var store JobStore
		switch v := plugins[alias].(type) {
		case JobStore:
			store = v
		case map[string]any:
			typeAlias, err := pluginType(v)
			if err != nil {
				return fmt.Errorf("job store %s: %w", alias, err)
			}
			if store, err = s.registry.NewJobStore(typeAlias, v); err != nil {
				return err
			}
		default:
			return ErrInvalidJob.WithMessagef("expected job store instance or map for jobstores[%s], got %T", alias, v)
		}
		if err := s.AddJobStore(lctx, store, alias); err != nil {
			return err
		}
	}
	return nil
}

// pluginType 读取插件别名，兼容 type 与 class 两种写法
func pluginType(opts map[string]any) (string, error) {
	for _, key := range []string{"type", "class"} {
		if v, ok := opts[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrUnknownAlias.WithMessage("plugin needs either a \"type\" or a \"class\" option")
}

// expandSettings 去掉前缀并将点分键展开为嵌套 map
func expandSettings(settings map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for key, value := range settings {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(key, prefix), ".")
		setNested(out, parts, value)
	}
	return out
}

func setNested(m map[string]any, parts []string, value any) {
	key := parts[0]
	if len(parts) == 1 {
		if nested, ok := value.(map[string]any); ok {
			existing, _ := m[key].(map[string]any)
			if existing == nil {
				existing = make(map[string]any)
				m[key] = existing
			}
			for k, v := range nested {
				setNested(existing, strings.Split(k, "."), v)
			}
			return
		}
		m[key] = value
		return
	}
	child, ok := m[key].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[key] = child
	}
	setNested(child, parts[1:], value)
}

// durationSeconds 以秒表示的时长，nil 表示不限制
func durationSeconds(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return d.Seconds()
}
