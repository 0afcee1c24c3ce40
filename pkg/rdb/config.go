package rdb

import (
	"time"
)

// Mode Redis 部署模式
type Mode string

const (
	Standalone Mode = "standalone"
	Cluster    Mode = "cluster"
	Sentinel   Mode = "sentinel"
)

// Config Redis 连接配置
type Config struct {
	Addr         string        `mapstructure:"addr"`           // 地址（单机）
	Addrs        []string      `mapstructure:"addrs"`          // 地址列表（集群/哨兵）
	Mode         Mode          `mapstructure:"mode"`           // standalone, cluster, sentinel
	Username     string        `mapstructure:"username"`       // 用户名（Redis 6.0+）
	Password     string        `mapstructure:"password"`       // 密码
	DB           int           `mapstructure:"db"`             // 数据库编号
	PoolSize     int           `mapstructure:"pool_size"`      // 连接池大小
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 最小空闲连接
	MaxRetries   int           `mapstructure:"max_retries"`    // 最大重试次数
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 连接超时
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 读超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 写超时
	MasterName   string        `mapstructure:"master_name"`    // 哨兵模式主节点名称

	EnableTracing bool `mapstructure:"enable_tracing"` // 为每条命令记录 client span
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		Mode:         Standalone,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
