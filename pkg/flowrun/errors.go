package flowrun

import "github.com/tokmz/apsched/pkg/errors"

// 3000 段错误码：流程运行
var (
	// ErrMissingFlow 任务参数缺少 flow
	ErrMissingFlow = errors.New(3001, "flow reference is missing")
	// ErrMissingAPIKey 没有可用的 API Key
	ErrMissingAPIKey = errors.New(3002, "api key is missing")
	// ErrRequestFailed 请求失败
	ErrRequestFailed = errors.New(3003, "flow run request failed")
	// ErrFlowFailed 服务端返回非 2xx
	ErrFlowFailed = errors.New(3004, "flow run returned an error status")
	// ErrMaxRetry 重试次数已用尽
	ErrMaxRetry = errors.New(3005, "flow run retries exhausted")
	// ErrInvalidResponse 响应不是合法 JSON
	ErrInvalidResponse = errors.New(3006, "invalid flow run response")
)
