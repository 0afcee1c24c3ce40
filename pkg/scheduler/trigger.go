package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger 触发器，根据上次触发时间与当前时间计算下次触发时间
type Trigger interface {
	Stateful
	// NextFireTime 返回下次触发时间，nil 表示不再触发
	NextFireTime(prev *time.Time, now time.Time) *time.Time
	String() string
}

const (
	dateTriggerRef     = "apscheduler.triggers.date:DateTrigger"
	intervalTriggerRef = "apscheduler.triggers.interval:IntervalTrigger"
	cronTriggerRef     = "apscheduler.triggers.cron:CronTrigger"
)

// DateTrigger 在指定时间触发一次
type DateTrigger struct {
	RunDate time.Time
}

// NewDateTrigger 创建一次性触发器
func NewDateTrigger(runDate time.Time) *DateTrigger {
	return &DateTrigger{RunDate: runDate}
}

func (t *DateTrigger) NextFireTime(prev *time.Time, _ time.Time) *time.Time {
	if prev != nil {
		return nil
	}
	rd := t.RunDate
	return &rd
}

func (t *DateTrigger) ClassRef() string { return dateTriggerRef }

func (t *DateTrigger) GetState() (map[string]any, error) {
	return map[string]any{
		"version":  1,
		"run_date": t.RunDate.Format(time.RFC3339Nano),
	}, nil
}

func (t *DateTrigger) SetState(state map[string]any) error {
	if err := checkStateVersion(state, "DateTrigger"); err != nil {
		return err
	}
	rd, err := toTime(state["run_date"], time.UTC)
	if err != nil {
		return fmt.Errorf("date trigger: %w", err)
	}
	t.RunDate = rd
	return nil
}

func (t *DateTrigger) String() string {
	return "date[" + t.RunDate.Format("2006-01-02 15:04:05 MST") + "]"
}

// IntervalTrigger 从 StartDate 起按固定间隔触发
type IntervalTrigger struct {
	Interval  time.Duration
	StartDate time.Time
	EndDate   *time.Time
}

// NewIntervalTrigger 创建间隔触发器，start 为零值时从 now+interval 开始
func NewIntervalTrigger(interval time.Duration, start time.Time, now time.Time) (*IntervalTrigger, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if start.IsZero() {
		start = now.Add(interval)
	}
	return &IntervalTrigger{Interval: interval, StartDate: start}, nil
}

func (t *IntervalTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	var next time.Time
	switch {
	case prev != nil:
		next = prev.Add(t.Interval)
	case !now.After(t.StartDate):
		next = t.StartDate
	default:
		diff := now.Sub(t.StartDate)
		n := diff / t.Interval
		if diff%t.Interval != 0 {
			n++
		}
		next = t.StartDate.Add(n * t.Interval)
	}

	if t.EndDate != nil && next.After(*t.EndDate) {
		return nil
	}
	return &next
}

func (t *IntervalTrigger) ClassRef() string { return intervalTriggerRef }

func (t *IntervalTrigger) GetState() (map[string]any, error) {
	return map[string]any{
		"version":    1,
		"interval":   t.Interval.Seconds(),
		"start_date": t.StartDate.Format(time.RFC3339Nano),
		"end_date":   formatTime(t.EndDate),
	}, nil
}

func (t *IntervalTrigger) SetState(state map[string]any) error {
	if err := checkStateVersion(state, "IntervalTrigger"); err != nil {
		return err
	}
	interval, err := toDuration(state["interval"])
	if err != nil || interval <= 0 {
		return fmt.Errorf("interval trigger: invalid interval %v", state["interval"])
	}
	start, err := toTime(state["start_date"], time.UTC)
	if err != nil {
		return fmt.Errorf("interval trigger: %w", err)
	}
	end, err := parseOptionalTime(state["end_date"])
	if err != nil {
		return fmt.Errorf("interval trigger: %w", err)
	}
	t.Interval, t.StartDate, t.EndDate = interval, start, end
	return nil
}

func (t *IntervalTrigger) String() string {
	return "interval[" + t.Interval.String() + "]"
}

// cronParser 支持 5 段或带秒的 6 段表达式以及 @daily 等描述符
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronTrigger cron 表达式触发器
type CronTrigger struct {
	Expr      string
	Location  *time.Location
	StartDate *time.Time
	EndDate   *time.Time

	schedule cron.Schedule
}

// NewCronTrigger 解析 cron 表达式
func NewCronTrigger(expr string, loc *time.Location) (*CronTrigger, error) {
	t := &CronTrigger{Expr: expr, Location: loc}
	if err := t.parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *CronTrigger) parse() error {
	if t.Location == nil {
		t.Location = time.UTC
	}
	sched, err := cronParser.Parse(t.Expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", t.Expr, err)
	}
	if spec, ok := sched.(*cron.SpecSchedule); ok {
		spec.Location = t.Location
	}
	t.schedule = sched
	return nil
}

func (t *CronTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	base := now.Add(-time.Nanosecond)
	if prev != nil && prev.Before(now) {
		base = *prev
	}
	if t.StartDate != nil && base.Before(*t.StartDate) {
		base = t.StartDate.Add(-time.Nanosecond)
	}

	next := t.schedule.Next(base.In(t.Location))
	if next.IsZero() {
		return nil
	}
	if t.EndDate != nil && next.After(*t.EndDate) {
		return nil
	}
	return &next
}

func (t *CronTrigger) ClassRef() string { return cronTriggerRef }

func (t *CronTrigger) GetState() (map[string]any, error) {
	return map[string]any{
		"version":    1,
		"expr":       t.Expr,
		"timezone":   t.Location.String(),
		"start_date": formatTime(t.StartDate),
		"end_date":   formatTime(t.EndDate),
	}, nil
}

func (t *CronTrigger) SetState(state map[string]any) error {
	if err := checkStateVersion(state, "CronTrigger"); err != nil {
		return err
	}
	expr, _ := state["expr"].(string)
	loc := time.UTC
	if tz, ok := state["timezone"].(string); ok && tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("cron trigger: %w", err)
		}
		loc = l
	}
	start, err := parseOptionalTime(state["start_date"])
	if err != nil {
		return fmt.Errorf("cron trigger: %w", err)
	}
	end, err := parseOptionalTime(state["end_date"])
	if err != nil {
		return fmt.Errorf("cron trigger: %w", err)
	}
	t.Expr, t.Location, t.StartDate, t.EndDate = expr, loc, start, end
	return t.parse()
}

func (t *CronTrigger) String() string {
	return fmt.Sprintf("cron[%s, tz=%s]", t.Expr, t.Location)
}

// cronFields 按从高到低的顺序排列，用于由字段参数拼出表达式
var cronFields = []struct {
	name string
	min  string
}{
	{"month", "1"},
	{"day", "1"},
	{"day_of_week", "*"},
	{"hour", "0"},
	{"minute", "0"},
	{"second", "0"},
}

// buildCronExpr 由 month/day/day_of_week/hour/minute/second 参数生成 6 段表达式
// 比最低位显式字段更低的字段取最小值，其余为 *
func buildCronExpr(args map[string]any) (string, bool) {
	values := make(map[string]string, len(cronFields))
	lowest := -1
	for i, f := range cronFields {
		if v, ok := args[f.name]; ok {
			values[f.name] = fmt.Sprint(v)
			lowest = i
		}
	}
	if lowest < 0 {
		return "", false
	}

	for i, f := range cronFields {
		if _, ok := values[f.name]; ok {
			continue
		}
		if i > lowest {
			values[f.name] = f.min
		} else {
			values[f.name] = "*"
		}
	}

	return strings.Join([]string{
		values["second"], values["minute"], values["hour"], values["day"], values["month"], values["day_of_week"],
	}, " "), true
}

// checkStateVersion 拒绝高于当前支持版本的状态
func checkStateVersion(state map[string]any, kind string) error {
	v, ok := state["version"]
	if !ok {
		return nil
	}
	version, err := toInt(v)
	if err != nil {
		return fmt.Errorf("%s: invalid state version %v", kind, v)
	}
	if version > 1 {
		return ErrCorruptState.WithMessagef("%s has version %d, but only version 1 can be handled", kind, version)
	}
	return nil
}
