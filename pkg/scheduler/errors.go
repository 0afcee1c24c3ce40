package scheduler

import (
	"github.com/tokmz/apsched/pkg/errors"
)

// 错误码定义
const (
	ErrCodeSchedulerAlreadyRunning = 2001
	ErrCodeSchedulerNotRunning     = 2002
	ErrCodeExecutorAliasExists     = 2003
	ErrCodeJobStoreAliasExists     = 2004
	ErrCodeUnknownAlias            = 2005
	ErrCodeMissingReference        = 2006
	ErrCodeUnsupportedTrigger      = 2007
	ErrCodeInvalidJob              = 2008
	ErrCodeJobLookup               = 2009
	ErrCodeConflictingID           = 2010
	ErrCodeMaxInstancesReached     = 2011
	ErrCodeExecutorNotFound        = 2012
	ErrCodeJobStoreNotFound        = 2013
	ErrCodeInvalidDocument         = 2014
	ErrCodeUnrecognizedVersion     = 2015
	ErrCodeCorruptState            = 2016
	ErrCodeUnserializable          = 2017
)

// 错误定义，使用 errors.Is 按错误码匹配
var (
	// ErrSchedulerAlreadyRunning 调度器已在运行
	ErrSchedulerAlreadyRunning = errors.New(ErrCodeSchedulerAlreadyRunning, "scheduler is already running")
	// ErrSchedulerNotRunning 调度器未运行
	ErrSchedulerNotRunning = errors.New(ErrCodeSchedulerNotRunning, "scheduler is not running")
	// ErrExecutorAliasExists 执行器别名已存在
	ErrExecutorAliasExists = errors.New(ErrCodeExecutorAliasExists, "executor alias already exists")
	// ErrJobStoreAliasExists 任务存储别名已存在
	ErrJobStoreAliasExists = errors.New(ErrCodeJobStoreAliasExists, "job store alias already exists")
	// ErrUnknownAlias 注册表中不存在的插件别名
	ErrUnknownAlias = errors.New(ErrCodeUnknownAlias, "unknown plugin alias")
	// ErrMissingReference 任务缺少 flow 或所属用户引用
	ErrMissingReference = errors.New(ErrCodeMissingReference, "job is missing a required reference")
	// ErrUnsupportedTrigger 任务存储不支持该触发器
	ErrUnsupportedTrigger = errors.New(ErrCodeUnsupportedTrigger, "trigger not supported by job store")
	// ErrInvalidJob 任务参数非法
	ErrInvalidJob = errors.New(ErrCodeInvalidJob, "invalid job")
	// ErrJobLookup 任务不存在
	ErrJobLookup = errors.New(ErrCodeJobLookup, "job not found")
	// ErrConflictingID 任务 ID 冲突
	ErrConflictingID = errors.New(ErrCodeConflictingID, "conflicting job id")
	// ErrMaxInstancesReached 任务并发实例数已达上限
	ErrMaxInstancesReached = errors.New(ErrCodeMaxInstancesReached, "max instances reached")
	// ErrExecutorNotFound 执行器不存在
	ErrExecutorNotFound = errors.New(ErrCodeExecutorNotFound, "executor not found")
	// ErrJobStoreNotFound 任务存储不存在
	ErrJobStoreNotFound = errors.New(ErrCodeJobStoreNotFound, "job store not found")
	// ErrInvalidDocument 导入文档不是 JSON 对象
	ErrInvalidDocument = errors.New(ErrCodeInvalidDocument, "invalid job document")
	// ErrUnrecognizedVersion 无法识别的版本号
	ErrUnrecognizedVersion = errors.New(ErrCodeUnrecognizedVersion, "unrecognized version")
	// ErrCorruptState 持久化状态无法还原
	ErrCorruptState = errors.New(ErrCodeCorruptState, "corrupt job state")
	// ErrUnserializable 值无法序列化
	ErrUnserializable = errors.New(ErrCodeUnserializable, "value cannot be serialized")
)

// JobLookupError 任务不存在
func JobLookupError(id string) error {
	return ErrJobLookup.WithMessagef("no job by the id of %s was found", id)
}

// ConflictingIDError 任务 ID 已存在
func ConflictingIDError(id string) error {
	return ErrConflictingID.WithMessagef("job identifier (%s) conflicts with an existing job", id)
}

// MaxInstancesReachedError 任务并发实例数已达上限
func MaxInstancesReachedError(job *Job) error {
	return ErrMaxInstancesReached.WithMessagef("job %q has already reached its maximum number of instances (%d)", job.ID, job.MaxInstances)
}
