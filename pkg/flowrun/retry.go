package flowrun

import (
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`  // 最大重试次数（默认 3）
	InitialDelay time.Duration `mapstructure:"initial_delay"` // 初始退避（默认 500ms）
	MaxDelay     time.Duration `mapstructure:"max_delay"`     // 最大退避（默认 10s）
	Multiplier   float64       `mapstructure:"multiplier"`    // 退避倍数（默认 2.0）

	RetryIf func(statusCode int, err error) bool `mapstructure:"-"`
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		RetryIf:      defaultRetryIf,
	}
}

// defaultRetryIf 网络错误、429 与 5xx 重试
func defaultRetryIf(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

// backoff 计算第 attempt 次重试的退避时间（带 ±25% 抖动）
func (rc *RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(attempt))
	if delay > float64(rc.MaxDelay) {
		delay = float64(rc.MaxDelay)
	}
	jitter := delay * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(delay + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// normalize 填充零值字段为默认值
func (rc *RetryConfig) normalize() {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 3
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = 500 * time.Millisecond
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = 10 * time.Second
	}
	if rc.Multiplier <= 0 {
		rc.Multiplier = 2.0
	}
	if rc.RetryIf == nil {
		rc.RetryIf = defaultRetryIf
	}
}
