package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFunc(context.Context, []any, map[string]any) (any, error) {
	return nil, nil
}

func newCodecRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := DefaultRegistry()
	require.NoError(t, reg.RegisterFunc("test:noop", noopFunc))
	return reg
}

// TestMarshalJobRoundTrip 测试任务序列化与还原
func TestMarshalJobRoundTrip(t *testing.T) {
	reg := newCodecRegistry(t)
	start := mustTime(t, "2024-01-01T10:00:00Z")
	trigger, err := NewIntervalTrigger(time.Minute, start, start)
	require.NoError(t, err)

	flowID := uuid.New()
	grace := 30 * time.Second
	next := start.Add(time.Minute)
	job := &Job{
		ID:               "job-1",
		Name:             "nightly",
		Trigger:          trigger,
		FuncRef:          "test:noop",
		Args:             []any{"a", 1.5},
		Kwargs:           map[string]any{"flow": flowID, "count": 3, "nested": map[string]any{"k": "v"}},
		Executor:         DefaultAlias,
		MisfireGraceTime: &grace,
		Coalesce:         true,
		MaxInstances:     2,
		NextRunTime:      &next,
	}

	data, err := reg.MarshalJob(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), intervalTriggerRef)

	restored, err := reg.UnmarshalJob(data)
	require.NoError(t, err)

	assert.Equal(t, job.ID, restored.ID)
	assert.Equal(t, job.Name, restored.Name)
	assert.Equal(t, job.FuncRef, restored.FuncRef)
	assert.NotNil(t, restored.Func())
	assert.Equal(t, []any{"a", 1.5}, restored.Args)
	assert.Equal(t, flowID, restored.Kwargs["flow"])
	assert.Equal(t, int64(3), restored.Kwargs["count"])
	assert.Equal(t, map[string]any{"k": "v"}, restored.Kwargs["nested"])
	require.NotNil(t, restored.MisfireGraceTime)
	assert.Equal(t, grace, *restored.MisfireGraceTime)
	assert.True(t, restored.Coalesce)
	assert.Equal(t, 2, restored.MaxInstances)
	require.NotNil(t, restored.NextRunTime)
	assert.True(t, restored.NextRunTime.Equal(next))

	restoredTrigger, ok := restored.Trigger.(*IntervalTrigger)
	require.True(t, ok)
	assert.Equal(t, time.Minute, restoredTrigger.Interval)
	assert.True(t, restoredTrigger.StartDate.Equal(start))
}

// TestMarshalCronTrigger 测试 cron 触发器状态还原
func TestMarshalCronTrigger(t *testing.T) {
	reg := newCodecRegistry(t)
	trigger, err := NewCronTrigger("0 30 2 * * *", time.UTC)
	require.NoError(t, err)

	job := &Job{ID: "cron", Name: "cron", Trigger: trigger, FuncRef: "test:noop", MaxInstances: 1}
	data, err := reg.MarshalJob(job)
	require.NoError(t, err)

	restored, err := reg.UnmarshalJob(data)
	require.NoError(t, err)
	assert.Nil(t, restored.NextRunTime)
	assert.Nil(t, restored.MisfireGraceTime)

	cronTrigger := restored.Trigger.(*CronTrigger)
	now := mustTime(t, "2024-01-01T00:00:00Z")
	next := cronTrigger.NextFireTime(nil, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(mustTime(t, "2024-01-01T02:30:00Z")))
}

// TestUnmarshalJobCorrupt 测试损坏状态的识别
func TestUnmarshalJobCorrupt(t *testing.T) {
	reg := newCodecRegistry(t)
	job := &Job{ID: "x", Name: "x", Trigger: NewDateTrigger(time.Now()), FuncRef: "test:noop", MaxInstances: 1}
	valid, err := reg.MarshalJob(job)
	require.NoError(t, err)

	other := NewRegistry()
	other.RegisterClass(dateTriggerRef, func() Stateful { return &DateTrigger{} })

	tests := []struct {
		name string
		reg  *Registry
		data []byte
	}{
		{"非 JSON", reg, []byte("not json")},
		{"空对象", reg, []byte("null")},
		{"版本过高", reg, []byte(`{"version": 2, "id": "x", "func": "test:noop"}`)},
		{"未知类引用", reg, []byte(`{"version": 1, "id": "x", "func": "test:noop", "max_instances": 1, "coalesce": true,
			"trigger": {"__apscheduler_class__": "nope:Trigger", "__apscheduler_state__": {}}}`)},
		{"未知可调用对象", other, valid},
		{"损坏的 gob", reg, []byte(`{"version": 1, "args": [{"__apscheduler_pickle__": "!!!"}]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.reg.UnmarshalJob(tt.data)
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

// TestMarshalUnserializable 测试无法序列化的值
func TestMarshalUnserializable(t *testing.T) {
	reg := newCodecRegistry(t)
	job := &Job{
		ID:           "x",
		Name:         "x",
		Trigger:      NewDateTrigger(time.Now()),
		FuncRef:      "test:noop",
		MaxInstances: 1,
		Kwargs:       map[string]any{"ch": make(chan int)},
	}
	_, err := reg.MarshalJob(job)
	assert.ErrorIs(t, err, ErrUnserializable)
}

// TestJobSetStateVersion 测试高版本任务状态被拒绝
func TestJobSetStateVersion(t *testing.T) {
	job := &Job{}
	err := job.SetState(JobState{"version": 2})
	assert.ErrorIs(t, err, ErrCorruptState)
}
