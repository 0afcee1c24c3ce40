package config

import "github.com/tokmz/apsched/pkg/errors"

// 配置包专用错误定义
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3001, "config file not found")
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3003, "failed to read config")
	// ErrConfigDecode 配置反序列化失败
	ErrConfigDecode = errors.New(3004, "failed to decode config")
)
