package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/apsched/pkg/scheduler"
)

// RedisStore 基于 Redis 的任务存储
// 任务状态保存在 <prefix>.jobs 哈希表中，下次运行时间保存在 <prefix>.run_times 有序集合中
// 集群模式下两个键需落在同一 slot，可用 {tag} 形式的前缀
type RedisStore struct {
	client     redis.UniversalClient
	jobsKey    string
	runTimeKey string

	mu       sync.RWMutex
	registry *scheduler.Registry
	logger   scheduler.Logger
	alias    string
}

// NewRedisStore 创建 Redis 任务存储，client 的生命周期由调用方管理
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := newOptions(opts)
	return &RedisStore{
		client:     client,
		jobsKey:    o.keyPrefix + ".jobs",
		runTimeKey: o.keyPrefix + ".run_times",
		registry:   o.registry,
		logger:     o.logger,
	}
}

func (s *RedisStore) Start(ctx context.Context, sched *scheduler.Scheduler, alias string) error {
	s.mu.Lock()
	s.alias = alias
	if s.registry == nil {
		s.registry = sched.Registry()
	}
	if s.logger == nil {
		s.logger = sched.Logger()
	}
	s.mu.Unlock()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Shutdown(context.Context) error {
	return nil
}

func (s *RedisStore) LookupJob(ctx context.Context, id string) (*scheduler.Job, error) {
	data, err := s.client.HGet(ctx, s.jobsKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	jobs, err := s.restoreJobs(ctx, []string{id}, []any{string(data)})
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

func (s *RedisStore) GetDueJobs(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.runTimeKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(now),
	}).Result()
	if err != nil {
		return nil, err
	}
	jobs, err := s.loadJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// 分数是浮点秒，最终以任务自身的时间为准
	due := jobs[:0]
	for _, job := range jobs {
		if job.NextRunTime != nil && !job.NextRunTime.After(now) {
			due = append(due, job)
		}
	}
	return due, nil
}

func (s *RedisStore) GetNextRunTime(ctx context.Context) (*time.Time, error) {
	for {
		ids, err := s.client.ZRange(ctx, s.runTimeKey, 0, 0).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		job, err := s.LookupJob(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		if job == nil {
			// 哈希表中已不存在，清理孤立的运行时间
			if err := s.client.ZRem(ctx, s.runTimeKey, ids[0]).Err(); err != nil {
				return nil, err
			}
			continue
		}
		return job.NextRunTime, nil
	}
}

func (s *RedisStore) GetAllJobs(ctx context.Context) ([]*scheduler.Job, error) {
	all, err := s.client.HGetAll(ctx, s.jobsKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	values := make([]any, 0, len(all))
	for id, data := range all {
		ids = append(ids, id)
		values = append(values, data)
	}
	jobs, err := s.restoreJobs(ctx, ids, values)
	if err != nil {
		return nil, err
	}
	sortJobs(jobs)
	return jobs, nil
}

func (s *RedisStore) AddJob(ctx context.Context, job *scheduler.Job) error {
	data, err := s.encode(job)
	if err != nil {
		return err
	}
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, s.jobsKey, job.ID).Result()
		if err != nil {
			return err
		}
		if exists {
			return scheduler.ConflictingIDError(job.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeJob(ctx, pipe, job, data)
			return nil
		})
		return err
	}, s.jobsKey)
}

func (s *RedisStore) UpdateJob(ctx context.Context, job *scheduler.Job) error {
	data, err := s.encode(job)
	if err != nil {
		return err
	}
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, s.jobsKey, job.ID).Result()
		if err != nil {
			return err
		}
		if !exists {
			return scheduler.JobLookupError(job.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeJob(ctx, pipe, job, data)
			return nil
		})
		return err
	}, s.jobsKey)
}

func (s *RedisStore) RemoveJob(ctx context.Context, id string) error {
	var hdel *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hdel = pipe.HDel(ctx, s.jobsKey, id)
		pipe.ZRem(ctx, s.runTimeKey, id)
		return nil
	})
	if err != nil {
		return err
	}
	if hdel.Val() == 0 {
		return scheduler.JobLookupError(id)
	}
	return nil
}

func (s *RedisStore) RemoveAllJobs(ctx context.Context) error {
	return s.client.Del(ctx, s.jobsKey, s.runTimeKey).Err()
}

// writeJob 写入任务状态，暂停的任务从有序集合中移除
func (s *RedisStore) writeJob(ctx context.Context, pipe redis.Pipeliner, job *scheduler.Job, data []byte) {
	pipe.HSet(ctx, s.jobsKey, job.ID, data)
	if job.NextRunTime != nil {
		pipe.ZAdd(ctx, s.runTimeKey, redis.Z{Score: timeScore(*job.NextRunTime), Member: job.ID})
	} else {
		pipe.ZRem(ctx, s.runTimeKey, job.ID)
	}
}

func (s *RedisStore) encode(job *scheduler.Job) ([]byte, error) {
	stored := job.Clone()
	stored.JobStore = s.currentAlias()
	return s.currentRegistry().MarshalJob(stored)
}

// loadJobs 按 ID 顺序读取任务
func (s *RedisStore) loadJobs(ctx context.Context, ids []string) ([]*scheduler.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.jobsKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	return s.restoreJobs(ctx, ids, values)
}

// restoreJobs 还原任务，无法还原或已丢失的条目会被清理
func (s *RedisStore) restoreJobs(ctx context.Context, ids []string, values []any) ([]*scheduler.Job, error) {
	reg := s.currentRegistry()
	alias := s.currentAlias()

	jobs := make([]*scheduler.Job, 0, len(ids))
	var corrupt []string
	for i, id := range ids {
		raw, ok := values[i].(string)
		if !ok {
			corrupt = append(corrupt, id)
			continue
		}
		job, err := reg.UnmarshalJob([]byte(raw))
		if err != nil {
			s.log().Error("[jobstore] 无法还原任务 %s，已删除: %v", id, err)
			corrupt = append(corrupt, id)
			continue
		}
		job.JobStore = alias
		jobs = append(jobs, job)
	}

	if len(corrupt) > 0 {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.jobsKey, corrupt...)
			members := make([]any, len(corrupt))
			for i, id := range corrupt {
				members[i] = id
			}
			pipe.ZRem(ctx, s.runTimeKey, members...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *RedisStore) currentRegistry() *scheduler.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return scheduler.DefaultRegistry()
	}
	return s.registry
}

func (s *RedisStore) currentAlias() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alias
}

func (s *RedisStore) log() scheduler.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return scheduler.NopLogger{}
	}
	return s.logger
}

// timeScore 时间转换为浮点秒
func timeScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// formatScore 查询上限，向上取整到微秒以免因精度丢失漏掉到期任务
func formatScore(t time.Time) string {
	us := math.Ceil(float64(t.UnixNano()) / float64(time.Microsecond))
	return fmt.Sprintf("%.6f", us/1e6)
}

// sortJobs 按 NextRunTime 升序，暂停的任务排在最后
func sortJobs(jobs []*scheduler.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].NextRunTime, jobs[j].NextRunTime
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		if a.Equal(*b) {
			return jobs[i].ID < jobs[j].ID
		}
		return a.Before(*b)
	})
}
