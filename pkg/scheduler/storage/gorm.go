package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tokmz/apsched/pkg/scheduler"
)

// DefaultTableName 默认任务表名
const DefaultTableName = "apscheduler_jobs"

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Valid 是否为已知状态
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobRecord 任务数据模型
type JobRecord struct {
	ID          string     `gorm:"primaryKey;size:191" json:"id"`
	Name        string     `gorm:"size:255" json:"name"`
	FlowID      uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"flow_id"`
	UserID      uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"user_id"`
	IsActive    bool       `gorm:"index;not null" json:"is_active"`
	NextRunTime *time.Time `gorm:"index" json:"next_run_time"`
	JobState    []byte     `gorm:"not null" json:"-"`
	Status      JobStatus  `gorm:"size:16;index;not null" json:"status"`
	Result      *string    `gorm:"type:text" json:"result"`
	Error       *string    `gorm:"type:text" json:"error"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 默认表名，实际表名由 GormStore 通过 Table 指定
func (JobRecord) TableName() string {
	return DefaultTableName
}

// UserJobFilter 按用户查询任务的过滤条件
// 两者都为空时只返回仍处于调度中的任务
type UserJobFilter struct {
	Pending *bool      // true 只返回待执行任务，false 只返回非待执行任务
	Status  *JobStatus // 按状态过滤
}

// GormStore 基于 GORM 的持久化任务存储
// 只接受一次性的 DateTrigger 任务，任务必须关联 flow 与所属用户
type GormStore struct {
	db       *gorm.DB
	table    string
	migrate  bool
	registry *scheduler.Registry
	logger   scheduler.Logger
	alias    string

	mu    sync.RWMutex
	cache map[string]cachedJob
	sf    singleflight.Group // 合并并发的单任务加载
}

// cachedJob 缓存的任务及写入时的 job_state，用于判断行是否被改动
type cachedJob struct {
	job   *scheduler.Job
	state []byte
}

// NewGormStore 创建 GORM 任务存储
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	o := newOptions(opts)
	return &GormStore{
		db:       db,
		table:    o.tableName,
		migrate:  o.autoMigrate,
		registry: o.registry,
		logger:   o.logger,
		cache:    make(map[string]cachedJob),
	}
}

// Table 任务表名
func (s *GormStore) Table() string {
	return s.table
}

// Migrate 创建或更新任务表
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&JobRecord{}); err != nil {
		return fmt.Errorf("failed to migrate table %s: %w", s.table, err)
	}
	return nil
}

func (s *GormStore) Start(ctx context.Context, sched *scheduler.Scheduler, alias string) error {
	s.mu.Lock()
	s.alias = alias
	if s.registry == nil {
		s.registry = sched.Registry()
	}
	if s.logger == nil {
		s.logger = sched.Logger()
	}
	s.mu.Unlock()

	if s.migrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}

	entries, err := s.restoreJobs(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_active = ?", true)
	})
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	s.mu.Lock()
	s.cache = make(map[string]cachedJob, len(entries))
	for _, entry := range entries {
		s.cache[entry.job.ID] = entry
	}
	s.mu.Unlock()

	s.log().Info("[jobstore] %s 已加载 %d 个任务", alias, len(entries))
	return nil
}

func (s *GormStore) Shutdown(context.Context) error {
	s.mu.Lock()
	s.cache = make(map[string]cachedJob)
	s.mu.Unlock()
	return nil
}

// LookupJob 查找任务，不存在时返回 nil, nil
// 每次都读取 job_state，与缓存一致时直接返回缓存，否则重新还原，无法还原的行被删除
func (s *GormStore) LookupJob(ctx context.Context, id string) (*scheduler.Job, error) {
	v, err, _ := s.sf.Do(id, func() (any, error) {
		active := func(tx *gorm.DB) *gorm.DB {
			return tx.Where("id = ? AND is_active = ?", id, true)
		}

		var records []JobRecord
		if err := active(s.db.WithContext(ctx).Table(s.table)).
			Select("id", "job_state").Limit(1).Find(&records).Error; err != nil {
			return nil, err
		}
		if len(records) == 0 {
			s.evict(id)
			return nil, nil
		}

		s.mu.RLock()
		cached, ok := s.cache[id]
		s.mu.RUnlock()
		if ok && bytes.Equal(cached.state, records[0].JobState) {
			return cached.job, nil
		}

		entries, err := s.restoreJobs(ctx, active)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, nil
		}
		s.mu.Lock()
		s.cache[id] = entries[0]
		s.mu.Unlock()
		return entries[0].job, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*scheduler.Job).Clone(), nil
}

// LookupUserJob 查找属于指定用户的任务，不存在时返回 nil, nil
func (s *GormStore) LookupUserJob(ctx context.Context, id string, userID uuid.UUID) (*scheduler.Job, error) {
	jobs, err := s.queryJobs(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true)
	})
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// GetUserJobs 返回指定用户的任务
func (s *GormStore) GetUserJobs(ctx context.Context, userID uuid.UUID, filter UserJobFilter) ([]*scheduler.Job, error) {
	return s.queryJobs(ctx, func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("user_id = ?", userID)
		if filter.Pending != nil {
			if *filter.Pending {
				tx = tx.Where("is_active = ? AND status = ?", true, JobStatusPending)
			} else {
				tx = tx.Where("status <> ?", JobStatusPending)
			}
		}
		if filter.Status != nil {
			tx = tx.Where("status = ?", *filter.Status)
		}
		if filter.Pending == nil && filter.Status == nil {
			tx = tx.Where("is_active = ?", true)
		}
		return tx
	})
}

func (s *GormStore) GetDueJobs(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	return s.queryJobs(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_active = ? AND next_run_time IS NOT NULL AND next_run_time <= ?", true, now.UTC())
	})
}

func (s *GormStore) GetNextRunTime(ctx context.Context) (*time.Time, error) {
	var records []JobRecord
	err := s.db.WithContext(ctx).Table(s.table).
		Select("next_run_time").
		Where("is_active = ? AND next_run_time IS NOT NULL", true).
		Order("next_run_time ASC").
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || records[0].NextRunTime == nil {
		return nil, nil
	}
	t := records[0].NextRunTime.UTC()
	return &t, nil
}

func (s *GormStore) GetAllJobs(ctx context.Context) ([]*scheduler.Job, error) {
	return s.queryJobs(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_active = ?", true)
	})
}

func (s *GormStore) AddJob(ctx context.Context, job *scheduler.Job) error {
	if _, ok := job.Trigger.(*scheduler.DateTrigger); !ok {
		return scheduler.ErrUnsupportedTrigger.WithMessagef("only one-shot date triggers can be persisted, got %T", job.Trigger)
	}
	flowID, err := kwargRef(job.Kwargs, "flow")
	if err != nil {
		return err
	}
	userID, err := kwargRef(job.Kwargs, "api_key_user", "user")
	if err != nil {
		return err
	}

	stored := job.Clone()
	stored.JobStore = s.alias
	data, err := s.registry.MarshalJob(stored)
	if err != nil {
		return err
	}

	record := &JobRecord{
		ID:          job.ID,
		Name:        job.Name,
		FlowID:      flowID,
		UserID:      userID,
		IsActive:    true,
		NextRunTime: utcPtr(job.NextRunTime),
		JobState:    data,
		Status:      JobStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []JobRecord
		if err := tx.Table(s.table).Select("id", "is_active").Where("id = ?", job.ID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			if existing[0].IsActive {
				return scheduler.ConflictingIDError(job.ID)
			}
			// 已软删除的同 ID 记录让位给新任务
			if err := tx.Table(s.table).Where("id = ?", job.ID).Delete(&JobRecord{}).Error; err != nil {
				return err
			}
		}
		return tx.Table(s.table).Create(record).Error
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[job.ID] = cachedJob{job: stored, state: data}
	s.mu.Unlock()
	return nil
}

func (s *GormStore) UpdateJob(ctx context.Context, job *scheduler.Job) error {
	stored := job.Clone()
	stored.JobStore = s.alias
	data, err := s.registry.MarshalJob(stored)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Table(s.table).
		Where("id = ? AND is_active = ?", job.ID, true).
		Updates(map[string]any{
			"name":          job.Name,
			"next_run_time": utcPtr(job.NextRunTime),
			"job_state":     data,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		s.evict(job.ID)
		return scheduler.JobLookupError(job.ID)
	}

	s.mu.Lock()
	s.cache[job.ID] = cachedJob{job: stored, state: data}
	s.mu.Unlock()
	return nil
}

// RemoveJob 软删除任务：标记为 COMPLETED 并停止调度，已写入的终态保持不变
func (s *GormStore) RemoveJob(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Table(s.table).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{
			"is_active":     false,
			"next_run_time": nil,
			"status": gorm.Expr("CASE WHEN status = ? OR status = ? THEN ? ELSE status END",
				JobStatusPending, JobStatusRunning, JobStatusCompleted),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	s.evict(id)
	if result.RowsAffected == 0 {
		return scheduler.JobLookupError(id)
	}
	return nil
}

func (s *GormStore) RemoveAllJobs(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).Where("1 = 1").Delete(&JobRecord{}).Error; err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = make(map[string]cachedJob)
	s.mu.Unlock()
	return nil
}

// SetStatus 写入任务状态与执行结果
func (s *GormStore) SetStatus(ctx context.Context, id string, status JobStatus, result, errText *string) error {
	if !status.Valid() {
		return scheduler.ErrInvalidJob.WithMessagef("unknown job status %q", status)
	}
	res := s.db.WithContext(ctx).Table(s.table).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"result":     result,
			"error":      errText,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return scheduler.JobLookupError(id)
	}
	return nil
}

// GetRecord 读取任务原始记录，包括已软删除的记录
func (s *GormStore) GetRecord(ctx context.Context, id string) (*JobRecord, error) {
	var record JobRecord
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduler.JobLookupError(id)
		}
		return nil, err
	}
	return &record, nil
}

// markRunning 仅在任务仍为 PENDING 时标记为 RUNNING
func (s *GormStore) markRunning(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Table(s.table).
		Where("id = ? AND status = ?", id, JobStatusPending).
		Updates(map[string]any{
			"status":     JobStatusRunning,
			"updated_at": time.Now().UTC(),
		}).Error
}

// queryJobs 查询并还原任务，按下次运行时间排序
func (s *GormStore) queryJobs(ctx context.Context, scope func(tx *gorm.DB) *gorm.DB) ([]*scheduler.Job, error) {
	entries, err := s.restoreJobs(ctx, scope)
	if err != nil {
		return nil, err
	}
	jobs := make([]*scheduler.Job, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, entry.job)
	}
	sortJobs(jobs)
	return jobs, nil
}

// restoreJobs 查询并还原任务，无法还原的记录在同一事务内删除
func (s *GormStore) restoreJobs(ctx context.Context, scope func(tx *gorm.DB) *gorm.DB) ([]cachedJob, error) {
	var entries []cachedJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var records []JobRecord
		if err := scope(tx.Table(s.table)).Find(&records).Error; err != nil {
			return err
		}

		var corrupt []string
		for i := range records {
			job, err := s.registry.UnmarshalJob(records[i].JobState)
			if err != nil {
				s.log().Error("[jobstore] 无法还原任务 %s，已删除: %v", records[i].ID, err)
				corrupt = append(corrupt, records[i].ID)
				continue
			}
			job.JobStore = s.alias
			entries = append(entries, cachedJob{job: job, state: records[i].JobState})
		}

		if len(corrupt) > 0 {
			s.mu.Lock()
			for _, id := range corrupt {
				delete(s.cache, id)
			}
			s.mu.Unlock()
			return tx.Table(s.table).Where("id IN ?", corrupt).Delete(&JobRecord{}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) evict(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

func (s *GormStore) log() scheduler.Logger {
	if s.logger == nil {
		return scheduler.NopLogger{}
	}
	return s.logger
}

// kwargRef 从 kwargs 中按顺序取第一个存在的 key，转换为 UUID
func kwargRef(kwargs map[string]any, keys ...string) (uuid.UUID, error) {
	for _, key := range keys {
		v, ok := kwargs[key]
		if !ok || v == nil {
			continue
		}
		id, err := scheduler.ToUUID(v)
		if err != nil {
			return uuid.Nil, scheduler.ErrMissingReference.WithMessagef("invalid %s reference", key).WithError(err)
		}
		return id, nil
	}
	return uuid.Nil, scheduler.ErrMissingReference.WithMessagef("job kwargs must contain %q", keys[0])
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
