package flowrun

import (
	"net/http"
	"time"
)

// Config 流程运行客户端配置
type Config struct {
	BaseURL         string            `mapstructure:"base_url"`          // 服务地址，例如 http://localhost:7860
	APIKey          string            `mapstructure:"api_key"`           // 任务未携带 api_key 时使用
	Timeout         time.Duration     `mapstructure:"timeout"`           // 单次请求超时（默认 60s）
	Headers         map[string]string `mapstructure:"headers"`           // 额外请求头
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`    // 最大空闲连接数（默认 100）
	IdleConnTimeout time.Duration     `mapstructure:"idle_conn_timeout"` // 空闲连接超时（默认 90s）
	EnableTracing   bool              `mapstructure:"enable_tracing"`    // 注入 trace headers 并记录 client span
	Retry           *RetryConfig      `mapstructure:"retry"`             // nil 不重试

	Transport http.RoundTripper `mapstructure:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:7860",
		Timeout:         60 * time.Second,
		Headers:         make(map[string]string),
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		EnableTracing:   true,
		Retry:           DefaultRetryConfig(),
	}
}

// buildTransport 根据配置构建 http.Transport
func (c *Config) buildTransport() http.RoundTripper {
	var t http.RoundTripper = c.Transport
	if t == nil {
		t = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			MaxIdleConns:    c.MaxIdleConns,
			IdleConnTimeout: c.IdleConnTimeout,
		}
	}
	if c.EnableTracing {
		t = newTracingTransport(t)
	}
	return t
}

// Option 配置选项函数
type Option func(*Config)

// WithBaseURL 设置服务地址
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey 设置默认 API Key
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHeader 设置额外请求头
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[key] = value
	}
}

// WithRetry 设置重试配置
func WithRetry(cfg *RetryConfig) Option {
	return func(c *Config) { c.Retry = cfg }
}

// WithTracing 启用 OpenTelemetry 追踪
func WithTracing(enable bool) Option {
	return func(c *Config) { c.EnableTracing = enable }
}

// WithTransport 设置自定义 Transport
func WithTransport(t http.RoundTripper) Option {
	return func(c *Config) { c.Transport = t }
}
