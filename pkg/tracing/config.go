package tracing

import (
	"fmt"
	"time"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp"      // OTLP over HTTP
	ExporterOTLPGRPC = "otlp-grpc" // OTLP over gRPC
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Config 链路追踪配置
type Config struct {
	ServiceName    string `mapstructure:"service_name"`    // 服务名称（必填）
	ServiceVersion string `mapstructure:"service_version"` // 服务版本
	Environment    string `mapstructure:"environment"`     // 部署环境

	ExporterType     string            `mapstructure:"exporter"` // otlp/otlp-grpc/stdout/noop
	ExporterEndpoint string            `mapstructure:"endpoint"` // 导出器端点
	ExporterHeaders  map[string]string `mapstructure:"headers"`  // 导出器请求头
	Insecure         bool              `mapstructure:"insecure"` // 是否使用非 TLS 连接

	SamplingRate float64 `mapstructure:"sampling_rate"` // 采样率（0.0-1.0）
	SamplingType string  `mapstructure:"sampling_type"` // always/never/ratio/parent_based

	Enabled bool `mapstructure:"enabled"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "apsched",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterNoop,
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            true,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("tracing config error: service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("tracing config error: sampling rate must be between 0.0 and 1.0")
	}
	switch c.ExporterType {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return fmt.Errorf("tracing config error: invalid exporter type: %s", c.ExporterType)
	}
	return nil
}
