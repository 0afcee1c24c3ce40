package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/apsched/pkg/errors"
)

const testYAML = `
scheduler:
  timezone: Asia/Shanghai
  jobstore_retry_interval: 5s
  job_defaults:
    coalesce: false
    max_instances: 3
  jobstores:
    default:
      type: gorm
      table: flow_jobs
logger:
  level: debug
  format: console
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadTest(t *testing.T, opts ...Option) *Config {
	t.Helper()
	path := writeTestConfig(t, t.TempDir(), "apsched.yaml", testYAML)
	c := New(append([]Option{WithConfigFile(path)}, opts...)...)
	require.NoError(t, c.Load())
	return c
}

// TestLoad 测试加载配置文件
func TestLoad(t *testing.T) {
	c := loadTest(t)
	assert.Equal(t, "Asia/Shanghai", c.GetString("scheduler.timezone"))
	assert.Equal(t, 5*time.Second, c.GetDuration("scheduler.jobstore_retry_interval"))
	assert.Equal(t, 3, c.GetInt("scheduler.job_defaults.max_instances"))
	assert.False(t, c.GetBool("scheduler.job_defaults.coalesce"))
	assert.True(t, c.IsSet("logger.level"))
}

// TestLoadWithNameAndPaths 测试按名称搜索配置文件
func TestLoadWithNameAndPaths(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, "apsched.yaml", testYAML)

	c := New(WithConfigName("apsched"), WithConfigType("yaml"), WithConfigPaths(dir))
	require.NoError(t, c.Load())
	assert.Equal(t, "gorm", c.GetString("scheduler.jobstores.default.type"))
}

// TestLoadWithoutFile 测试仅使用默认值
func TestLoadWithoutFile(t *testing.T) {
	c := New(WithDefaults(map[string]any{"scheduler.timezone": "UTC"}))
	require.NoError(t, c.Load())
	assert.Equal(t, "UTC", c.GetString("scheduler.timezone"))
}

// TestConfigFileNotFound 测试配置文件不存在
func TestConfigFileNotFound(t *testing.T) {
	c := New(WithConfigName("missing"), WithConfigPaths(t.TempDir()))
	err := c.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestGenericGet 测试泛型获取
func TestGenericGet(t *testing.T) {
	c := loadTest(t)
	assert.Equal(t, "console", Get[string](c, "logger.format"))
	assert.Equal(t, 0, Get[int](c, "logger.format"))
	assert.Nil(t, Get[map[string]any](c, "missing"))
}

// TestFlatSettings 测试点分键展开
func TestFlatSettings(t *testing.T) {
	c := loadTest(t)
	flat := c.FlatSettings("scheduler.")

	assert.Equal(t, "Asia/Shanghai", flat["scheduler.timezone"])
	assert.Equal(t, "flow_jobs", flat["scheduler.jobstores.default.table"])
	assert.NotContains(t, flat, "logger.level")
}

// TestSub 测试子配置
func TestSub(t *testing.T) {
	c := loadTest(t)
	sub := c.Sub("scheduler.job_defaults")
	require.NotNil(t, sub)
	assert.Equal(t, 3, sub.GetInt("max_instances"))
	assert.Nil(t, c.Sub("nope"))
}

type testLevel int

func (l *testLevel) UnmarshalText(b []byte) error {
	if string(b) == "debug" {
		*l = -1
	}
	return nil
}

// TestUnmarshalKey 测试结构体反序列化与解码钩子
func TestUnmarshalKey(t *testing.T) {
	c := loadTest(t)

	var sched struct {
		Timezone      string        `mapstructure:"timezone"`
		RetryInterval time.Duration `mapstructure:"jobstore_retry_interval"`
	}
	require.NoError(t, c.UnmarshalKey("scheduler", &sched))
	assert.Equal(t, "Asia/Shanghai", sched.Timezone)
	assert.Equal(t, 5*time.Second, sched.RetryInterval)

	var lg struct {
		Level  testLevel `mapstructure:"level"`
		Format string    `mapstructure:"format"`
	}
	require.NoError(t, c.UnmarshalKey("logger", &lg))
	assert.Equal(t, testLevel(-1), lg.Level)
}

// TestWithEnvPrefix 测试环境变量覆盖
func TestWithEnvPrefix(t *testing.T) {
	t.Setenv("APSCHED_SCHEDULER_TIMEZONE", "Europe/Berlin")
	c := loadTest(t, WithEnvPrefix("APSCHED"))
	assert.Equal(t, "Europe/Berlin", c.GetString("scheduler.timezone"))
}

// TestWatchOnChange 测试文件变更回调
func TestWatchOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "apsched.yaml", testYAML)

	changed := make(chan string, 4)
	c := New(WithConfigFile(path), WithAutoWatch(true), WithOnChange(func(c *Config) {
		changed <- c.GetString("logger.level")
	}))
	require.NoError(t, c.Load())
	defer c.Close()

	// 等待 watcher 就绪
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: warn\n"), 0o644))

	select {
	case lv := <-changed:
		assert.Equal(t, "warn", lv)
	case <-time.After(3 * time.Second):
		t.Fatal("change callback not invoked")
	}
}

// TestSafeCallRecoversPanic 测试回调 panic 被捕获
func TestSafeCallRecoversPanic(t *testing.T) {
	var reported error
	c := New(WithOnError(func(err error) { reported = err }))
	c.safeCall(func(*Config) { panic("boom") })
	require.Error(t, reported)
	assert.Contains(t, reported.Error(), "boom")
}
