package logger

import "context"

type contextKey string

const (
	jobIDKey    contextKey = "job_id"
	jobStoreKey contextKey = "jobstore"
)

// WithJobID 在 context 中记录当前任务 ID，日志会自动带上 job_id 字段
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext 获取 context 中的任务 ID
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// WithJobStore 在 context 中记录任务存储别名
func WithJobStore(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, jobStoreKey, alias)
}

// JobStoreFromContext 获取 context 中的任务存储别名
func JobStoreFromContext(ctx context.Context) string {
	alias, _ := ctx.Value(jobStoreKey).(string)
	return alias
}
