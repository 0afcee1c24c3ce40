package logger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// captureHook 记录写入的日志条目
type captureHook struct {
	mu      sync.Mutex
	entries []zapcore.Entry
	fields  [][]zapcore.Field
}

func (h *captureHook) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	h.fields = append(h.fields, fields)
	return nil
}

func (h *captureHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "console output", config: &Config{Level: InfoLevel, Format: JSONFormat, Console: true}},
		{name: "file output", config: &Config{Format: JSONFormat, File: filepath.Join(dir, "test.log")}},
		{name: "rotate output", config: &Config{Rotate: &RotateConfig{Filename: filepath.Join(dir, "rotate.log")}}},
		{name: "sampling", config: &Config{Console: true, Sampling: &SamplingConfig{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			require.NoError(t, err)
			require.NotNil(t, l)
			l.Info("hello")
		})
	}
}

// TestNewWithOptions 测试使用 Options 创建 Logger
func TestNewWithOptions(t *testing.T) {
	l, err := NewWithOptions(
		WithLevel(DebugLevel),
		WithFormat(ConsoleFormat),
		WithConsoleOutput(),
		WithCaller(true),
	)
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, l.Level())
}

// TestSetLevel 测试动态调整级别对子 Logger 生效
func TestSetLevel(t *testing.T) {
	hook := &captureHook{}
	l, err := NewWithOptions(WithLevel(InfoLevel), WithHook(hook), WithFileOutput(filepath.Join(t.TempDir(), "l.log")))
	require.NoError(t, err)

	child := l.Named("scheduler")
	child.Debug("dropped")
	assert.Equal(t, 0, hook.count())

	l.SetLevel(DebugLevel)
	child.Debug("kept")
	assert.Equal(t, 1, hook.count())
	assert.Equal(t, DebugLevel, child.Level())
}

// TestContextFields 测试从 context 提取任务字段
func TestContextFields(t *testing.T) {
	hook := &captureHook{}
	l, err := NewWithOptions(WithHook(hook), WithFileOutput(filepath.Join(t.TempDir(), "l.log")))
	require.NoError(t, err)

	ctx := WithJobStore(WithJobID(context.Background(), "job-1"), "default")
	l.InfoContext(ctx, "run", zap.Int("n", 1))

	require.Equal(t, 1, hook.count())
	keys := map[string]bool{}
	for _, f := range hook.fields[0] {
		keys[f.Key] = true
	}
	assert.True(t, keys["job_id"])
	assert.True(t, keys["jobstore"])
	assert.True(t, keys["n"])
	assert.False(t, keys["trace_id"])
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	var lv Level
	require.NoError(t, lv.UnmarshalText([]byte("warn")))
	assert.Equal(t, WarnLevel, lv)
	assert.Equal(t, "warn", lv.String())
}

// TestNop 测试空 Logger
func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	assert.NotNil(t, l.Zap())
}
