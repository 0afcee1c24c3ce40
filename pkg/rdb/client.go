// Package rdb 按配置创建 go-redis UniversalClient，支持单机、集群与哨兵模式
package rdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/apsched/pkg/errors"
)

var (
	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = errors.New(5001, "invalid redis config")
	// ErrConnection 连接失败
	ErrConnection = errors.New(5002, "redis connection failed")
)

// New 创建客户端并检查连接
func New(ctx context.Context, cfg *Config) (redis.UniversalClient, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.EnableTracing {
		client.AddHook(newTracingHook(cfg.Mode))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrConnection.WithError(err)
	}
	return client, nil
}

func newClient(cfg *Config) (redis.UniversalClient, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig.WithMessage("redis config is required")
	}

	switch cfg.Mode {
	case Standalone, "":
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil

	case Cluster:
		if len(cfg.Addrs) == 0 {
			return nil, ErrInvalidConfig.WithMessage("cluster mode requires addrs")
		}
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil

	case Sentinel:
		if len(cfg.Addrs) == 0 {
			return nil, ErrInvalidConfig.WithMessage("sentinel mode requires addrs")
		}
		if cfg.MasterName == "" {
			return nil, ErrInvalidConfig.WithMessage("sentinel mode requires master name")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		}), nil
	}
	return nil, ErrInvalidConfig.WithMessagef("unsupported redis mode: %s", cfg.Mode)
}
