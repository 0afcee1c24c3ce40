package logger

import "go.uber.org/zap/zapcore"

// Format 日志格式
type Format string

const (
	// JSONFormat JSON 格式（生产环境推荐）
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式（开发环境推荐）
	ConsoleFormat Format = "console"
)

// Config 日志配置
// mapstructure 标签用于从配置文件 logger 段直接反序列化
type Config struct {
	Level  Level  `mapstructure:"level"`  // 日志级别（默认 info）
	Format Format `mapstructure:"format"` // 日志格式（json/console，默认 json）

	// 输出配置
	Console bool          `mapstructure:"console"` // 是否输出到控制台
	File    string        `mapstructure:"file"`    // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig `mapstructure:"rotate"`  // 轮转配置（nil 则不轮转）

	Sampling *SamplingConfig `mapstructure:"sampling"` // 采样配置（nil 则不采样）

	EnableCaller     bool `mapstructure:"caller"`     // 是否记录调用位置
	EnableStacktrace bool `mapstructure:"stacktrace"` // Error 及以上是否记录堆栈

	EncoderConfig *zapcore.EncoderConfig `mapstructure:"-"` // 自定义 Encoder 配置
	Hooks         []Hook                 `mapstructure:"-"` // Hook 列表
}

// RotateConfig 文件轮转配置
type RotateConfig struct {
	Filename   string `mapstructure:"filename"`    // 日志文件路径
	MaxSize    int    `mapstructure:"max_size"`    // 单文件最大大小（MB，默认 100）
	MaxAge     int    `mapstructure:"max_age"`     // 文件保留天数（默认 30）
	MaxBackups int    `mapstructure:"max_backups"` // 最多保留文件数（默认 10）
	Compress   bool   `mapstructure:"compress"`    // 是否压缩
}

// SamplingConfig 采样配置
type SamplingConfig struct {
	Initial    int `mapstructure:"initial"`    // 每秒前 N 条日志必定记录
	Thereafter int `mapstructure:"thereafter"` // 之后每 M 条记录 1 条
}

// Hook 日志钩子
type Hook interface {
	// OnWrite 在日志写入时调用
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
	if c.Rotate != nil {
		if c.Rotate.MaxSize == 0 {
			c.Rotate.MaxSize = 100
		}
		if c.Rotate.MaxAge == 0 {
			c.Rotate.MaxAge = 30
		}
		if c.Rotate.MaxBackups == 0 {
			c.Rotate.MaxBackups = 10
		}
	}
	if c.Sampling != nil {
		if c.Sampling.Initial == 0 {
			c.Sampling.Initial = 100
		}
		if c.Sampling.Thereafter == 0 {
			c.Sampling.Thereafter = 100
		}
	}
}
