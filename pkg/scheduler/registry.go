package scheduler

import (
	"sort"
	"sync"
	"time"
)

// TriggerFactory 按参数构造触发器
type TriggerFactory func(args map[string]any, loc *time.Location, now time.Time) (Trigger, error)

// ExecutorFactory 按配置构造执行器
type ExecutorFactory func(opts map[string]any) (Executor, error)

// JobStoreFactory 按配置构造任务存储
type JobStoreFactory func(opts map[string]any) (JobStore, error)

// ClassFactory 构造可还原状态的空对象
type ClassFactory func() Stateful

// Registry 插件注册表：触发器、执行器、任务存储的别名工厂，以及可调用对象和状态类
type Registry struct {
	mu        sync.RWMutex
	triggers  map[string]TriggerFactory
	executors map[string]ExecutorFactory
	stores    map[string]JobStoreFactory
	callables map[string]*Callable
	classes   map[string]ClassFactory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		triggers:  make(map[string]TriggerFactory),
		executors: make(map[string]ExecutorFactory),
		stores:    make(map[string]JobStoreFactory),
		callables: make(map[string]*Callable),
		classes:   make(map[string]ClassFactory),
	}
}

// DefaultRegistry 创建包含内置触发器、执行器和内存存储的注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterTrigger("date", newDateTriggerFromArgs)
	r.RegisterTrigger("interval", newIntervalTriggerFromArgs)
	r.RegisterTrigger("cron", newCronTriggerFromArgs)
	r.RegisterClass(dateTriggerRef, func() Stateful { return &DateTrigger{} })
	r.RegisterClass(intervalTriggerRef, func() Stateful { return &IntervalTrigger{} })
	r.RegisterClass(cronTriggerRef, func() Stateful { return &CronTrigger{} })

	r.RegisterExecutor("async", func(opts map[string]any) (Executor, error) {
		return newExecutorFromOptions(opts, false)
	})
	r.RegisterExecutor("threadpool", func(opts map[string]any) (Executor, error) {
		return newExecutorFromOptions(opts, true)
	})
	r.RegisterJobStore("memory", func(map[string]any) (JobStore, error) {
		return NewMemoryStore(), nil
	})
	return r
}

// RegisterTrigger 注册触发器别名
func (r *Registry) RegisterTrigger(alias string, f TriggerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[alias] = f
}

// RegisterExecutor 注册执行器别名
func (r *Registry) RegisterExecutor(alias string, f ExecutorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[alias] = f
}

// RegisterJobStore 注册任务存储别名
func (r *Registry) RegisterJobStore(alias string, f JobStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[alias] = f
}

// RegisterClass 注册状态类引用
func (r *Registry) RegisterClass(ref string, f ClassFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[ref] = f
}

// RegisterCallable 注册可调用对象
func (r *Registry) RegisterCallable(c *Callable) error {
	if c == nil || c.Ref == "" || c.Fn == nil {
		return ErrInvalidJob.WithMessage("callable must have a ref and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callables[c.Ref] = c
	return nil
}

// RegisterFunc 注册非阻塞函数
func (r *Registry) RegisterFunc(ref string, fn Func) error {
	return r.RegisterCallable(&Callable{Ref: ref, Fn: fn})
}

// Callable 按引用查找可调用对象
func (r *Registry) Callable(ref string) (*Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callables[ref]
	if !ok {
		return nil, ErrInvalidJob.WithMessagef("unresolvable callable reference %q", ref)
	}
	return c, nil
}

// NewTrigger 按别名构造触发器
func (r *Registry) NewTrigger(alias string, args map[string]any, loc *time.Location, now time.Time) (Trigger, error) {
	r.mu.RLock()
	f, ok := r.triggers[alias]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAlias.WithMessagef("no trigger by the name %q was found", alias)
	}
	if args == nil {
		args = map[string]any{}
	}
	return f(args, loc, now)
}

// NewExecutor 按别名构造执行器
func (r *Registry) NewExecutor(alias string, opts map[string]any) (Executor, error) {
	r.mu.RLock()
	f, ok := r.executors[alias]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAlias.WithMessagef("no executor by the name %q was found", alias)
	}
	return f(opts)
}

// NewJobStore 按别名构造任务存储
func (r *Registry) NewJobStore(alias string, opts map[string]any) (JobStore, error) {
	r.mu.RLock()
	f, ok := r.stores[alias]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAlias.WithMessagef("no job store by the name %q was found", alias)
	}
	return f(opts)
}

// newStateful 按引用构造空状态对象
func (r *Registry) newStateful(ref string) (Stateful, error) {
	r.mu.RLock()
	f, ok := r.classes[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrCorruptState.WithMessagef("unknown class reference %q", ref)
	}
	return f(), nil
}

// TriggerAliases 已注册的触发器别名
func (r *Registry) TriggerAliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	aliases := make([]string, 0, len(r.triggers))
	for alias := range r.triggers {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func triggerLocation(args map[string]any, loc *time.Location) (*time.Location, error) {
	if tz, ok := args["timezone"]; ok && tz != nil {
		return toLocation(tz)
	}
	if loc == nil {
		return time.UTC, nil
	}
	return loc, nil
}

func newDateTriggerFromArgs(args map[string]any, loc *time.Location, now time.Time) (Trigger, error) {
	loc, err := triggerLocation(args, loc)
	if err != nil {
		return nil, err
	}
	v, ok := args["run_date"]
	if !ok || v == nil {
		return NewDateTrigger(now.In(loc)), nil
	}
	runDate, err := toTime(v, loc)
	if err != nil {
		return nil, ErrInvalidJob.WithError(err)
	}
	return NewDateTrigger(runDate), nil
}

var intervalUnits = []struct {
	key  string
	unit time.Duration
}{
	{"weeks", 7 * 24 * time.Hour},
	{"days", 24 * time.Hour},
	{"hours", time.Hour},
	{"minutes", time.Minute},
	{"seconds", time.Second},
}

func newIntervalTriggerFromArgs(args map[string]any, loc *time.Location, now time.Time) (Trigger, error) {
	loc, err := triggerLocation(args, loc)
	if err != nil {
		return nil, err
	}

	var interval time.Duration
	if v, ok := args["interval"]; ok {
		if interval, err = toDuration(v); err != nil {
			return nil, ErrInvalidJob.WithError(err)
		}
	}
	for _, u := range intervalUnits {
		v, ok := args[u.key]
		if !ok {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, ErrInvalidJob.WithError(err)
		}
		interval += time.Duration(f * float64(u.unit))
	}
	if interval <= 0 {
		// 间隔为 0 时按 1 秒处理
		interval = time.Second
	}

	var start time.Time
	if v, ok := args["start_date"]; ok && v != nil {
		if start, err = toTime(v, loc); err != nil {
			return nil, ErrInvalidJob.WithError(err)
		}
	}
	t, err := NewIntervalTrigger(interval, start, now)
	if err != nil {
		return nil, ErrInvalidJob.WithError(err)
	}
	if v, ok := args["end_date"]; ok && v != nil {
		end, err := toTime(v, loc)
		if err != nil {
			return nil, ErrInvalidJob.WithError(err)
		}
		t.EndDate = &end
	}
	return t, nil
}

func newCronTriggerFromArgs(args map[string]any, loc *time.Location, _ time.Time) (Trigger, error) {
	loc, err := triggerLocation(args, loc)
	if err != nil {
		return nil, err
	}

	expr, _ := args["expr"].(string)
	if expr == "" {
		var ok bool
		if expr, ok = buildCronExpr(args); !ok {
			return nil, ErrInvalidJob.WithMessage("cron trigger requires expr or at least one field")
		}
	}
	t, err := NewCronTrigger(expr, loc)
	if err != nil {
		return nil, ErrInvalidJob.WithError(err)
	}
	for key, dst := range map[string]**time.Time{"start_date": &t.StartDate, "end_date": &t.EndDate} {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		ts, err := toTime(v, loc)
		if err != nil {
			return nil, ErrInvalidJob.WithError(err)
		}
		*dst = &ts
	}
	return t, nil
}
