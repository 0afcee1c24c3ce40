package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 内存任务存储，保存任务副本
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  *jobHeap
	seq   uint64
	alias string
}

// NewMemoryStore 创建内存任务存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: newJobHeap()}
}

func (s *MemoryStore) Start(_ context.Context, _ *Scheduler, alias string) error {
	s.mu.Lock()
	s.alias = alias
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Shutdown(context.Context) error {
	return nil
}

func (s *MemoryStore) LookupJob(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs.Get(id)
	if !ok {
		return nil, nil
	}
	return e.job.Clone(), nil
}

func (s *MemoryStore) GetDueJobs(_ context.Context, now time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*heapEntry
	for _, e := range s.jobs.items {
		if next := e.job.NextRunTime; next != nil && !next.After(now) {
			due = append(due, e)
		}
	}
	return sortedClones(due), nil
}

func (s *MemoryStore) GetNextRunTime(context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next := s.jobs.NextRunTime()
	if next == nil {
		return nil, nil
	}
	t := *next
	return &t, nil
}

func (s *MemoryStore) GetAllJobs(context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedClones(append([]*heapEntry(nil), s.jobs.items...)), nil
}

func (s *MemoryStore) AddJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs.Get(job.ID); exists {
		return ConflictingIDError(job.ID)
	}
	s.seq++
	stored := job.Clone()
	stored.JobStore = s.alias
	s.jobs.Add(&heapEntry{job: stored, seq: s.seq})
	return nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := job.Clone()
	stored.JobStore = s.alias
	if !s.jobs.Update(stored) {
		return JobLookupError(job.ID)
	}
	return nil
}

func (s *MemoryStore) RemoveJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs.Remove(id) == nil {
		return JobLookupError(id)
	}
	return nil
}

func (s *MemoryStore) RemoveAllJobs(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs.Clear()
	return nil
}

func sortedClones(entries []*heapEntry) []*Job {
	sort.Slice(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
	jobs := make([]*Job, len(entries))
	for i, e := range entries {
		jobs[i] = e.job.Clone()
	}
	return jobs
}
