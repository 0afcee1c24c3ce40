package scheduler

import (
	"context"
	"encoding/json"
	"io"
)

// exportDocument 导出文件格式
type exportDocument struct {
	Version          int              `json:"version"`
	SchedulerVersion string           `json:"scheduler_version"`
	Jobs             []map[string]any `json:"jobs"`
}

// ExportJobs 将任务导出为 JSON，jobstore 为空时导出所有任务存储
// 仅导出已提交到任务存储的任务，要求调度器已启动
func (s *Scheduler) ExportJobs(ctx context.Context, w io.Writer, jobstore string) error {
	if s.State() == StateStopped {
		return ErrSchedulerNotRunning.WithMessage("the scheduler must have been started for job export to work")
	}

	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	doc := exportDocument{
		Version:          1,
		SchedulerVersion: Version,
		Jobs:             make([]map[string]any, 0),
	}
	for _, alias := range sortedKeys(s.jobstores) {
		if jobstore != "" && alias != jobstore {
			continue
		}
		jobs, err := s.jobstores[alias].GetAllJobs(lctx)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			encoded, err := s.registry.EncodeJob(job)
			if err != nil {
				return err
			}
			doc.Jobs = append(doc.Jobs, encoded)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return ErrUnserializable.WithError(err)
	}
	s.logger.Info("[scheduler] 已导出 %d 个任务", len(doc.Jobs))
	return nil
}

// ImportJobs 从 ExportJobs 生成的 JSON 导入任务，jobstore 为空时导入默认任务存储
// 文档不是 JSON 对象时返回 ErrInvalidDocument，版本不为 1 时返回 ErrUnrecognizedVersion
func (s *Scheduler) ImportJobs(ctx context.Context, r io.Reader, jobstore string) (int, error) {
	if jobstore == "" {
		jobstore = DefaultAlias
	}

	var raw any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return 0, ErrInvalidDocument.WithError(err)
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return 0, ErrInvalidDocument.WithMessagef("input must be a JSON object, got %T", raw)
	}
	if version, err := toInt(doc["version"]); err != nil || version != 1 {
		return 0, ErrUnrecognizedVersion.WithMessagef("unrecognized version: %v", doc["version"])
	}
	rawJobs, ok := doc["jobs"].([]any)
	if !ok && doc["jobs"] != nil {
		return 0, ErrInvalidDocument.WithMessagef("jobs must be a list, got %T", doc["jobs"])
	}

	lctx, err := s.jobstoresLock.Lock(ctx)
	if err != nil {
		return 0, err
	}
	defer s.jobstoresLock.Unlock(lctx) //nolint:errcheck

	store, ok := s.jobstores[jobstore]
	if !ok {
		return 0, ErrJobStoreNotFound.WithMessagef("no such job store: %s", jobstore)
	}

	imported := 0
	for _, item := range rawJobs {
		encoded, ok := item.(map[string]any)
		if !ok {
			return imported, ErrInvalidDocument.WithMessagef("job entry must be an object, got %T", item)
		}
		job, err := s.registry.DecodeJob(encoded)
		if err != nil {
			return imported, err
		}
		job.JobStore = jobstore
		if err := store.AddJob(lctx, job); err != nil {
			return imported, err
		}
		imported++
	}

	s.logger.Info("[scheduler] 已导入 %d 个任务到任务存储 %s", imported, jobstore)
	if imported > 0 && s.Running() {
		s.Wakeup()
	}
	return imported, nil
}
