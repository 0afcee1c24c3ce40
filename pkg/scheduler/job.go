package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func 任务函数
type Func func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Callable 可调度的函数，通过 Ref 在注册表中登记，持久化时只记录 Ref
type Callable struct {
	Ref      string
	Fn       Func
	Blocking bool // 阻塞型函数在执行器的有界工作池中运行
}

// JobState 任务的可序列化状态
type JobState map[string]any

// Job 调度任务
type Job struct {
	ID               string
	Name             string
	Trigger          Trigger
	FuncRef          string
	Args             []any
	Kwargs           map[string]any
	Executor         string
	MisfireGraceTime *time.Duration // nil 表示不限制延迟
	Coalesce         bool
	MaxInstances     int
	NextRunTime      *time.Time // nil 表示已暂停
	JobStore         string     // 所在任务存储别名，为空表示尚未提交

	fn *Callable
}

// Pending 任务是否尚未提交到任务存储
func (j *Job) Pending() bool {
	return j.JobStore == ""
}

// Func 返回已解析的可调用对象
func (j *Job) Func() *Callable {
	return j.fn
}

// GetRunTimes 返回从 NextRunTime 到 now（含）之间的所有触发时间
func (j *Job) GetRunTimes(now time.Time) []time.Time {
	var runTimes []time.Time
	next := j.NextRunTime
	for next != nil && !next.After(now) {
		runTimes = append(runTimes, *next)
		following := j.Trigger.NextFireTime(next, now)
		if following != nil && !following.After(*next) {
			break
		}
		next = following
	}
	return runTimes
}

func (j *Job) String() string {
	status := "pending"
	switch {
	case j.Pending():
	case j.NextRunTime == nil:
		status = "paused"
	default:
		status = "next run at: " + j.NextRunTime.Format("2006-01-02 15:04:05 MST")
	}
	return fmt.Sprintf("%s (trigger: %s, %s)", j.Name, j.Trigger, status)
}

// Clone 浅拷贝任务，Args/Kwargs 复制一层
func (j *Job) Clone() *Job {
	c := *j
	if j.Args != nil {
		c.Args = append([]any(nil), j.Args...)
	}
	if j.Kwargs != nil {
		c.Kwargs = make(map[string]any, len(j.Kwargs))
		for k, v := range j.Kwargs {
			c.Kwargs[k] = v
		}
	}
	if j.NextRunTime != nil {
		t := *j.NextRunTime
		c.NextRunTime = &t
	}
	if j.MisfireGraceTime != nil {
		d := *j.MisfireGraceTime
		c.MisfireGraceTime = &d
	}
	return &c
}

func (j *Job) validate() error {
	if j.ID == "" {
		return ErrInvalidJob.WithMessage("job id must not be empty")
	}
	if j.Trigger == nil {
		return ErrInvalidJob.WithMessagef("job %s has no trigger", j.ID)
	}
	if j.FuncRef == "" {
		return ErrInvalidJob.WithMessagef("job %s has no callable", j.ID)
	}
	if j.MaxInstances <= 0 {
		return ErrInvalidJob.WithMessagef("max_instances must be a positive integer, got %d", j.MaxInstances)
	}
	if j.MisfireGraceTime != nil && *j.MisfireGraceTime <= 0 {
		return ErrInvalidJob.WithMessage("misfire_grace_time must be either nil or a positive duration")
	}
	return nil
}

// State 导出任务状态，trigger 保留为对象，由编解码器负责序列化
func (j *Job) State() (JobState, error) {
	args := j.Args
	if args == nil {
		args = []any{}
	}
	kwargs := j.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return JobState{
		"version":            1,
		"id":                 j.ID,
		"func":               j.FuncRef,
		"trigger":            j.Trigger,
		"executor":           j.Executor,
		"args":               args,
		"kwargs":             kwargs,
		"name":               j.Name,
		"misfire_grace_time": durationSeconds(j.MisfireGraceTime),
		"coalesce":           j.Coalesce,
		"max_instances":      j.MaxInstances,
		"next_run_time":      formatTime(j.NextRunTime),
	}, nil
}

// SetState 还原任务状态，state 中的 trigger 必须已解码为 Trigger
func (j *Job) SetState(state JobState) error {
	version, err := toInt(state["version"])
	if err != nil {
		return ErrCorruptState.WithMessagef("invalid job state version %v", state["version"])
	}
	if version > 1 {
		return ErrCorruptState.WithMessagef("job has version %d, but only version 1 can be handled", version)
	}

	trigger, ok := state["trigger"].(Trigger)
	if !ok {
		return ErrCorruptState.WithMessagef("job state has invalid trigger %T", state["trigger"])
	}
	id, _ := state["id"].(string)
	funcRef, _ := state["func"].(string)
	if id == "" || funcRef == "" {
		return ErrCorruptState.WithMessage("job state is missing id or func")
	}

	maxInstances, err := toInt(state["max_instances"])
	if err != nil {
		return ErrCorruptState.WithError(err)
	}
	coalesce, err := toBool(state["coalesce"])
	if err != nil {
		return ErrCorruptState.WithError(err)
	}
	var grace *time.Duration
	if v := state["misfire_grace_time"]; v != nil {
		d, err := toDuration(v)
		if err != nil {
			return ErrCorruptState.WithError(err)
		}
		grace = &d
	}
	next, err := parseOptionalTime(state["next_run_time"])
	if err != nil {
		return ErrCorruptState.WithError(err)
	}

	var args []any
	switch a := state["args"].(type) {
	case nil:
	case []any:
		args = a
	default:
		return ErrCorruptState.WithMessagef("job state has invalid args %T", a)
	}
	var kwargs map[string]any
	switch k := state["kwargs"].(type) {
	case nil:
	case map[string]any:
		kwargs = k
	default:
		return ErrCorruptState.WithMessagef("job state has invalid kwargs %T", k)
	}

	j.ID = id
	j.FuncRef = funcRef
	j.Trigger = trigger
	j.Executor, _ = state["executor"].(string)
	j.Name, _ = state["name"].(string)
	j.Args = args
	j.Kwargs = kwargs
	j.MisfireGraceTime = grace
	j.Coalesce = coalesce
	j.MaxInstances = maxInstances
	j.NextRunTime = next
	return nil
}

// newJobID 生成 32 位十六进制任务 ID
func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// jobSpec 创建或修改任务时的参数集合
type jobSpec struct {
	job             *Job
	jobStore        string
	replaceExisting bool
	trigger         any
	triggerArgs     map[string]any

	idSet           bool
	misfireSet      bool
	coalesceSet     bool
	maxInstancesSet bool
	nextRunTimeSet  bool
}

// JobOption 任务选项
type JobOption func(*jobSpec)

// WithID 设置任务 ID
func WithID(id string) JobOption {
	return func(s *jobSpec) {
		s.job.ID = id
		s.idSet = true
	}
}

// WithName 设置任务名称，默认为可调用对象的 Ref
func WithName(name string) JobOption {
	return func(s *jobSpec) {
		s.job.Name = name
	}
}

// WithArgs 设置位置参数
func WithArgs(args ...any) JobOption {
	return func(s *jobSpec) {
		s.job.Args = args
	}
}

// WithKwargs 设置关键字参数
func WithKwargs(kwargs map[string]any) JobOption {
	return func(s *jobSpec) {
		s.job.Kwargs = kwargs
	}
}

// WithMisfireGraceTime 设置允许的延迟执行时间，d <= 0 表示不限制
func WithMisfireGraceTime(d time.Duration) JobOption {
	return func(s *jobSpec) {
		if d <= 0 {
			s.job.MisfireGraceTime = nil
		} else {
			s.job.MisfireGraceTime = &d
		}
		s.misfireSet = true
	}
}

// WithCoalesce 设置是否合并错过的执行
func WithCoalesce(coalesce bool) JobOption {
	return func(s *jobSpec) {
		s.job.Coalesce = coalesce
		s.coalesceSet = true
	}
}

// WithMaxInstances 设置单任务并发实例上限
func WithMaxInstances(n int) JobOption {
	return func(s *jobSpec) {
		s.job.MaxInstances = n
		s.maxInstancesSet = true
	}
}

// WithNextRunTime 指定首次执行时间，nil 表示以暂停状态加入
func WithNextRunTime(t *time.Time) JobOption {
	return func(s *jobSpec) {
		if t != nil {
			v := *t
			t = &v
		}
		s.job.NextRunTime = t
		s.nextRunTimeSet = true
	}
}

// WithJobStore 指定任务存储别名
func WithJobStore(alias string) JobOption {
	return func(s *jobSpec) {
		s.jobStore = alias
	}
}

// WithExecutor 指定执行器别名
func WithExecutor(alias string) JobOption {
	return func(s *jobSpec) {
		s.job.Executor = alias
	}
}

// WithReplaceExisting ID 冲突时覆盖已有任务
func WithReplaceExisting(replace bool) JobOption {
	return func(s *jobSpec) {
		s.replaceExisting = replace
	}
}

// WithTriggerArgs 按别名构造触发器时使用的参数
func WithTriggerArgs(args map[string]any) JobOption {
	return func(s *jobSpec) {
		s.triggerArgs = args
	}
}

// WithTrigger 替换触发器，接受 Trigger 或触发器别名
func WithTrigger(trigger any) JobOption {
	return func(s *jobSpec) {
		s.trigger = trigger
	}
}
