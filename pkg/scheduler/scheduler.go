package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tokmz/apsched/pkg/syncx"
)

// State 调度器状态
type State int32

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Scheduler 任务调度器
// 由单个循环 goroutine 处理到期任务，其余 API 可并发调用
type Scheduler struct {
	cfg      *Config
	logger   Logger
	registry *Registry
	metrics  *Metrics
	state    atomic.Int32

	// startMu 串行化 Start/Shutdown
	startMu sync.Mutex

	executorsLock *syncx.ReentrantLock
	executors     map[string]Executor

	// jobstoresLock 同时保护 pendingJobs
	jobstoresLock *syncx.ReentrantLock
	jobstores     map[string]JobStore
	pendingJobs   []*jobSpec

	listenersLock  *syncx.ReentrantLock
	listeners      []listenerEntry
	nextListenerID ListenerID

	wakeupCh   chan struct{}
	timerMu    sync.Mutex
	timer      *time.Timer
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New 创建调度器
func New(opts ...Option) *Scheduler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = &StdLogger{}
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.JobStoreRetryInterval <= 0 {
		cfg.JobStoreRetryInterval = DefaultJobStoreRetryInterval
	}

	return &Scheduler{
		cfg:           cfg,
		logger:        cfg.Logger,
		registry:      cfg.Registry,
		metrics:       NewMetrics(),
		executorsLock: syncx.NewReentrantLock(),
		executors:     make(map[string]Executor),
		jobstoresLock: syncx.NewReentrantLock(),
		jobstores:     make(map[string]JobStore),
		listenersLock: syncx.NewReentrantLock(),
		wakeupCh:      make(chan struct{}, 1),
	}
}

// State 当前状态
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Running 是否处于运行状态（不含暂停）
func (s *Scheduler) Running() bool {
	return s.State() == StateRunning
}

// Registry 插件注册表
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Logger 日志器
func (s *Scheduler) Logger() Logger {
	return s.logger
}

// Metrics 运行指标
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Timezone 触发器默认时区
func (s *Scheduler) Timezone() *time.Location {
	return s.cfg.Timezone
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Clock()
}

// Start 启动调度器，paused 为 true 时以暂停状态启动
func (s *Scheduler) Start(ctx context.Context, paused bool) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.State() != StateStopped {
		return ErrSchedulerAlreadyRunning
	}

	if err := s.startExecutors(ctx); err != nil {
		return err
	}
	if err := s.startJobStores(ctx); err != nil {
		return err
	}

	if paused {
		s.state.Store(int32(StatePaused))
	} else {
		s.state.Store(int32(StateRunning))
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(loopCtx)

	s.logger.Info("[scheduler] 调度器已启动")
	s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventSchedulerStarted})

	if !paused {
		s.Wakeup()
	}
	return nil
}

func (s *Scheduler) startExecutors(ctx context.Context) error {
	lctx, err := s.executorsLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.executorsLock.Unlock(lctx) //nolint:errcheck

	if _, ok := s.executors[DefaultAlias]; !ok {
		exec, err := s.registry.NewExecutor("async", nil)
		if err != nil {
			return err
		}
		s.executors[DefaultAlias] = exec
	}
	for _, alias := range sortedKeys(s.executors) {
		if err := s.executors[alias].Start(lctx, s, alias); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) startJobStores(ctx context.Context) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	if _, ok := s.jobstores[DefaultAlias]; !ok {
		store, err := s.registry.NewJobStore("memory", nil)
		if err != nil {
			return err
		}
		s.jobstores[DefaultAlias] = store
	}
	for _, alias := range sortedKeys(s.jobstores) {
		if err := s.jobstores[alias].Start(lctx, s, alias); err != nil {
			return err
		}
	}

	// 提交待处理任务
	pending := s.pendingJobs
	s.pendingJobs = nil
	for _, spec := range pending {
		if _, err := s.realAddJob(lctx, spec); err != nil {
			s.logger.Error("[scheduler] 提交待处理任务 %s 失败: %v", spec.job.ID, err)
		}
	}
	return nil
}

// Shutdown 关闭调度器，wait 为 true 时等待执行中的任务完成
func (s *Scheduler) Shutdown(ctx context.Context, wait bool) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.State() == StateStopped {
		return ErrSchedulerNotRunning
	}
	s.state.Store(int32(StateStopped))

	s.loopCancel()
	<-s.loopDone
	s.stopTimer()

	executors := s.snapshotExecutors(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for alias, exec := range executors {
		g.Go(func() error {
			if err := exec.Shutdown(gctx, wait); err != nil {
				s.logger.Error("[scheduler] 关闭执行器 %s 失败: %v", alias, err)
				return err
			}
			return nil
		})
	}
	execErr := g.Wait()

	for alias, store := range s.snapshotJobStores(ctx) {
		if err := store.Shutdown(ctx); err != nil {
			s.logger.Error("[scheduler] 关闭任务存储 %s 失败: %v", alias, err)
		}
	}

	s.logger.Info("[scheduler] 调度器已关闭")
	s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventSchedulerShutdown})
	return execErr
}

// Pause 暂停任务处理
func (s *Scheduler) Pause(ctx context.Context) error {
	switch s.State() {
	case StateStopped:
		return ErrSchedulerNotRunning
	case StateRunning:
		s.state.Store(int32(StatePaused))
		s.logger.Info("[scheduler] 已暂停任务处理")
		s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventSchedulerPaused})
	}
	return nil
}

// Resume 恢复任务处理
func (s *Scheduler) Resume(ctx context.Context) error {
	switch s.State() {
	case StateStopped:
		return ErrSchedulerNotRunning
	case StatePaused:
		s.state.Store(int32(StateRunning))
		s.logger.Info("[scheduler] 已恢复任务处理")
		s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventSchedulerResumed})
		s.Wakeup()
	}
	return nil
}

// Wakeup 通知调度循环立即处理一次，多次调用会合并
func (s *Scheduler) Wakeup() {
	select {
	case s.wakeupCh <- struct{}{}:
	default:
	}
}

// loop 调度循环
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wakeupCh:
		}

		wait := s.processJobs(ctx)
		if ctx.Err() != nil {
			return
		}
		s.armTimer(wait)
	}
}

// armTimer 停止旧定时器，按 wait 重新设置
func (s *Scheduler) armTimer(wait *time.Duration) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if wait == nil {
		s.logger.Debug("[scheduler] 暂无待执行任务，等待唤醒")
		return
	}
	s.logger.Debug("[scheduler] %s 后再次唤醒", *wait)
	s.timer = time.AfterFunc(*wait, s.Wakeup)
}

func (s *Scheduler) stopTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// AddExecutor 添加执行器，调度器运行中时立即启动
func (s *Scheduler) AddExecutor(ctx context.Context, exec Executor, alias string) error {
	lctx, err := s.executorsLock.Lock(ctx)
	if err != nil {
		return err
	}
	if _, exists := s.executors[alias]; exists {
		s.executorsLock.Unlock(lctx) //nolint:errcheck
		return ErrExecutorAliasExists.WithMessagef("this scheduler already has an executor by the alias of %q", alias)
	}
	if s.State() != StateStopped {
		if err := exec.Start(lctx, s, alias); err != nil {
			s.executorsLock.Unlock(lctx) //nolint:errcheck
			return err
		}
	}
	s.executors[alias] = exec
	s.executorsLock.Unlock(lctx) //nolint:errcheck

	s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventExecutorAdded, Alias: alias})
	return nil
}

// AddExecutorByType 按注册表别名构造并添加执行器
func (s *Scheduler) AddExecutorByType(ctx context.Context, typeAlias, alias string, opts map[string]any) error {
	exec, err := s.registry.NewExecutor(typeAlias, opts)
	if err != nil {
		return err
	}
	return s.AddExecutor(ctx, exec, alias)
}

// RemoveExecutor 移除执行器，shutdown 为 true 时等待其任务完成后关闭
func (s *Scheduler) RemoveExecutor(ctx context.Context, alias string, shutdown bool) error {
	lctx, err := s.executorsLock.Lock(ctx)
	if err != nil {
		return err
	}
	exec, ok := s.executors[alias]
	if !ok {
		s.executorsLock.Unlock(lctx) //nolint:errcheck
		return ErrExecutorNotFound.WithMessagef("no such executor: %s", alias)
	}
	delete(s.executors, alias)
	s.executorsLock.Unlock(lctx) //nolint:errcheck

	if shutdown {
		if err := exec.Shutdown(ctx, true); err != nil {
			s.logger.Error("[scheduler] 关闭执行器 %s 失败: %v", alias, err)
		}
	}
	s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventExecutorRemoved, Alias: alias})
	return nil
}

// AddJobStore 添加任务存储，调度器运行中时立即启动并唤醒
func (s *Scheduler) AddJobStore(ctx context.Context, store JobStore, alias string) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	if _, exists := s.jobstores[alias]; exists {
		s.jobstoresLock.Unlock(lctx) //nolint:errcheck
		return ErrJobStoreAliasExists.WithMessagef("this scheduler already has a job store by the alias of %q", alias)
	}
	if s.State() != StateStopped {
		if err := store.Start(lctx, s, alias); err != nil {
			s.jobstoresLock.Unlock(lctx) //nolint:errcheck
			return err
		}
	}
	s.jobstores[alias] = store
	s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventJobStoreAdded, Alias: alias})
	if s.Running() {
		s.Wakeup()
	}
	return nil
}

// AddJobStoreByType 按注册表别名构造并添加任务存储
func (s *Scheduler) AddJobStoreByType(ctx context.Context, typeAlias, alias string, opts map[string]any) error {
	store, err := s.registry.NewJobStore(typeAlias, opts)
	if err != nil {
		return err
	}
	return s.AddJobStore(ctx, store, alias)
}

// RemoveJobStore 移除任务存储
func (s *Scheduler) RemoveJobStore(ctx context.Context, alias string, shutdown bool) error {
	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	store, ok := s.jobstores[alias]
	if !ok {
		s.jobstoresLock.Unlock(lctx) //nolint:errcheck
		return ErrJobStoreNotFound.WithMessagef("no such job store: %s", alias)
	}
	delete(s.jobstores, alias)
	s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	if shutdown {
		if err := store.Shutdown(ctx); err != nil {
			s.logger.Error("[scheduler] 关闭任务存储 %s 失败: %v", alias, err)
		}
	}
	s.dispatchEvent(ctx, &SchedulerEvent{EventCode: EventJobStoreRemoved, Alias: alias})
	return nil
}

// AddListener 添加事件监听器，mask 为 0 时监听全部事件
func (s *Scheduler) AddListener(fn Listener, mask EventCode) ListenerID {
	if mask == 0 {
		mask = EventAll
	}
	lctx, _ := s.listenersLock.Lock(context.Background())
	defer s.listenersLock.Unlock(lctx) //nolint:errcheck

	s.nextListenerID++
	id := s.nextListenerID
	s.listeners = append(s.listeners, listenerEntry{id: id, callback: fn, mask: mask})
	return id
}

// RemoveListener 移除事件监听器
func (s *Scheduler) RemoveListener(id ListenerID) bool {
	lctx, _ := s.listenersLock.Lock(context.Background())
	defer s.listenersLock.Unlock(lctx) //nolint:errcheck

	for i, entry := range s.listeners {
		if entry.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// dispatchEvent 在锁内复制匹配的监听器，锁外逐个调用
func (s *Scheduler) dispatchEvent(ctx context.Context, event Event) {
	lctx, err := s.listenersLock.Lock(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	var matched []listenerEntry
	for _, entry := range s.listeners {
		if entry.mask&event.Code() != 0 {
			matched = append(matched, entry)
		}
	}
	s.listenersLock.Unlock(lctx) //nolint:errcheck

	for _, entry := range matched {
		s.callListener(ctx, entry, event)
	}
}

func (s *Scheduler) callListener(ctx context.Context, entry listenerEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[scheduler] 事件监听器 %d 处理 %s 时 panic: %v", entry.id, event.Code(), r)
		}
	}()
	if err := entry.callback(ctx, event); err != nil {
		s.logger.Error("[scheduler] 事件监听器 %d 处理 %s 失败: %v", entry.id, event.Code(), err)
	}
}

func (s *Scheduler) lookupExecutor(ctx context.Context, alias string) (Executor, error) {
	lctx, err := s.executorsLock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer s.executorsLock.Unlock(lctx) //nolint:errcheck

	exec, ok := s.executors[alias]
	if !ok {
		return nil, ErrExecutorNotFound.WithMessagef("no such executor: %s", alias)
	}
	return exec, nil
}

func (s *Scheduler) snapshotExecutors(ctx context.Context) map[string]Executor {
	lctx, err := s.executorsLock.Lock(context.WithoutCancel(ctx))
	if err != nil {
		return nil
	}
	defer s.executorsLock.Unlock(lctx) //nolint:errcheck

	out := make(map[string]Executor, len(s.executors))
	for alias, exec := range s.executors {
		out[alias] = exec
	}
	return out
}

func (s *Scheduler) snapshotJobStores(ctx context.Context) map[string]JobStore {
	lctx, err := s.jobstoresLock.Lock(context.WithoutCancel(ctx))
	if err != nil {
		return nil
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	out := make(map[string]JobStore, len(s.jobstores))
	for alias, store := range s.jobstores {
		out[alias] = store
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
