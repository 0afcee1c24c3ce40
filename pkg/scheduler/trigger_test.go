package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// TestDateTrigger 测试一次性触发器
func TestDateTrigger(t *testing.T) {
	runAt := mustTime(t, "2024-01-01T10:00:00Z")
	trigger := NewDateTrigger(runAt)

	next := trigger.NextFireTime(nil, runAt.Add(time.Hour))
	require.NotNil(t, next)
	assert.True(t, next.Equal(runAt))

	assert.Nil(t, trigger.NextFireTime(next, runAt.Add(time.Hour)))
	assert.Equal(t, "date[2024-01-01 10:00:00 UTC]", trigger.String())
}

// TestIntervalTrigger 测试间隔触发器
func TestIntervalTrigger(t *testing.T) {
	start := mustTime(t, "2024-01-01T10:00:00Z")
	trigger, err := NewIntervalTrigger(10*time.Second, start, start)
	require.NoError(t, err)

	tests := []struct {
		name string
		prev *time.Time
		now  time.Time
		want time.Time
	}{
		{"未到开始时间", nil, start.Add(-time.Minute), start},
		{"介于两次之间", nil, start.Add(25 * time.Second), start.Add(30 * time.Second)},
		{"恰好落在间隔上", nil, start.Add(20 * time.Second), start.Add(20 * time.Second)},
		{"基于上次时间", &start, start.Add(time.Hour), start.Add(10 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := trigger.NextFireTime(tt.prev, tt.now)
			require.NotNil(t, next)
			assert.True(t, next.Equal(tt.want), "got %s want %s", next, tt.want)
		})
	}

	end := start.Add(15 * time.Second)
	trigger.EndDate = &end
	prev := start.Add(10 * time.Second)
	assert.Nil(t, trigger.NextFireTime(&prev, prev))
}

// TestIntervalTriggerDefaultStart 测试未指定开始时间时从 now+interval 开始
func TestIntervalTriggerDefaultStart(t *testing.T) {
	now := mustTime(t, "2024-01-01T10:00:00Z")
	trigger, err := NewIntervalTrigger(time.Minute, time.Time{}, now)
	require.NoError(t, err)
	assert.True(t, trigger.StartDate.Equal(now.Add(time.Minute)))

	_, err = NewIntervalTrigger(0, time.Time{}, now)
	assert.Error(t, err)
}

// TestCronTrigger 测试 cron 触发器
func TestCronTrigger(t *testing.T) {
	trigger, err := NewCronTrigger("0 */5 * * * *", time.UTC)
	require.NoError(t, err)

	now := mustTime(t, "2024-01-01T10:02:30Z")
	next := trigger.NextFireTime(nil, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(mustTime(t, "2024-01-01T10:05:00Z")))

	// now 恰好命中时包含 now
	exact := mustTime(t, "2024-01-01T10:05:00Z")
	next = trigger.NextFireTime(nil, exact)
	require.NotNil(t, next)
	assert.True(t, next.Equal(exact))

	// 基于上次触发时间
	next = trigger.NextFireTime(&exact, exact.Add(time.Minute))
	require.NotNil(t, next)
	assert.True(t, next.Equal(mustTime(t, "2024-01-01T10:10:00Z")))

	start := mustTime(t, "2024-02-01T00:00:00Z")
	trigger.StartDate = &start
	next = trigger.NextFireTime(nil, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(start))

	end := mustTime(t, "2024-01-15T00:00:00Z")
	trigger.EndDate = &end
	assert.Nil(t, trigger.NextFireTime(nil, now))
}

// TestCronTriggerLocation 测试 cron 触发器时区
func TestCronTriggerLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	trigger, err := NewCronTrigger("0 0 9 * * *", loc)
	require.NoError(t, err)

	next := trigger.NextFireTime(nil, mustTime(t, "2024-01-01T00:00:00Z"))
	require.NotNil(t, next)
	assert.True(t, next.Equal(mustTime(t, "2024-01-01T01:00:00Z")))
}

// TestCronTriggerFiveFields 测试 5 段表达式与描述符
func TestCronTriggerFiveFields(t *testing.T) {
	trigger, err := NewCronTrigger("30 9 * * 1-5", time.UTC)
	require.NoError(t, err)

	// 2024-01-06 是周六
	next := trigger.NextFireTime(nil, mustTime(t, "2024-01-06T00:00:00Z"))
	require.NotNil(t, next)
	assert.True(t, next.Equal(mustTime(t, "2024-01-08T09:30:00Z")))

	daily, err := NewCronTrigger("@daily", time.UTC)
	require.NoError(t, err)
	next = daily.NextFireTime(nil, mustTime(t, "2024-01-06T12:00:00Z"))
	require.NotNil(t, next)
	assert.True(t, next.Equal(mustTime(t, "2024-01-07T00:00:00Z")))

	_, err = NewCronTrigger("not a cron", time.UTC)
	assert.Error(t, err)
}

// TestBuildCronExpr 测试字段参数拼接表达式
func TestBuildCronExpr(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"小时", map[string]any{"hour": 5}, "0 0 5 * * *"},
		{"分钟", map[string]any{"minute": "*/15"}, "0 */15 * * * *"},
		{"星期", map[string]any{"day_of_week": "mon"}, "0 0 0 * * mon"},
		{"日期", map[string]any{"month": 6, "day": 1}, "0 0 0 1 6 *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, ok := buildCronExpr(tt.args)
			require.True(t, ok)
			assert.Equal(t, tt.want, expr)
		})
	}

	_, ok := buildCronExpr(map[string]any{"timezone": "UTC"})
	assert.False(t, ok)
}

// TestTriggerFactories 测试按别名构造触发器
func TestTriggerFactories(t *testing.T) {
	reg := DefaultRegistry()
	now := mustTime(t, "2024-01-01T10:00:00Z")

	tr, err := reg.NewTrigger("date", nil, time.UTC, now)
	require.NoError(t, err)
	assert.True(t, tr.(*DateTrigger).RunDate.Equal(now))

	tr, err = reg.NewTrigger("date", map[string]any{"run_date": "2024-03-01 08:00:00"}, time.UTC, now)
	require.NoError(t, err)
	assert.True(t, tr.(*DateTrigger).RunDate.Equal(mustTime(t, "2024-03-01T08:00:00Z")))

	tr, err = reg.NewTrigger("interval", map[string]any{"minutes": 1, "seconds": 30}, time.UTC, now)
	require.NoError(t, err)
	interval := tr.(*IntervalTrigger)
	assert.Equal(t, 90*time.Second, interval.Interval)
	assert.True(t, interval.StartDate.Equal(now.Add(90*time.Second)))

	tr, err = reg.NewTrigger("cron", map[string]any{"hour": 3, "end_date": "2024-06-01T00:00:00Z"}, time.UTC, now)
	require.NoError(t, err)
	cronTrigger := tr.(*CronTrigger)
	assert.Equal(t, "0 0 3 * * *", cronTrigger.Expr)
	require.NotNil(t, cronTrigger.EndDate)

	_, err = reg.NewTrigger("calendar", nil, time.UTC, now)
	assert.ErrorIs(t, err, ErrUnknownAlias)
}
