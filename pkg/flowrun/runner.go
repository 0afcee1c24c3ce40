package flowrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	applog "github.com/tokmz/apsched/pkg/logger"
	"github.com/tokmz/apsched/pkg/scheduler"
)

const (
	// CallableRef 注册到调度器的可调用对象引用
	CallableRef = "flowrun:run"

	tracerName   = "apsched.flowrun"
	apiKeyHeader = "x-api-key"
)

// 透传到请求体的任务参数
var payloadKeys = []string{"input_value", "input_type", "output_type", "output_component", "tweaks", "session_id"}

// Runner 通过 HTTP 触发流程运行
type Runner struct {
	cfg    *Config
	client *http.Client
	logger applog.Logger
}

// New 创建流程运行器
func New(logger applog.Logger, opts ...Option) *Runner {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg, logger)
}

// NewWithConfig 使用配置创建流程运行器
func NewWithConfig(cfg *Config, logger applog.Logger) *Runner {
	if logger == nil {
		logger = applog.Nop()
	}
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: cfg.buildTransport()},
		logger: logger,
	}
}

// Callable 返回阻塞型可调用对象，在执行器的工作池中运行
func (r *Runner) Callable() *scheduler.Callable {
	return &scheduler.Callable{Ref: CallableRef, Fn: r.Run, Blocking: true}
}

// Register 注册到注册表
func (r *Runner) Register(reg *scheduler.Registry) error {
	return reg.RegisterCallable(r.Callable())
}

// Run 运行 kwargs["flow"] 指定的流程，返回解析后的响应体
// API Key 依次取 kwargs["api_key"]、kwargs["api_key_user"].api_key 与配置中的默认值
func (r *Runner) Run(ctx context.Context, _ []any, kwargs map[string]any) (any, error) {
	flowID, err := scheduler.ToUUID(kwargs["flow"])
	if err != nil {
		return nil, ErrMissingFlow.WithError(err)
	}
	apiKey := r.apiKey(kwargs)
	if apiKey == "" {
		return nil, ErrMissingAPIKey.WithMessagef("no api key for flow %s", flowID)
	}

	payload := make(map[string]any)
	for _, key := range payloadKeys {
		if v, ok := kwargs[key]; ok && v != nil {
			payload[key] = v
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrRequestFailed.WithMessage("cannot encode request body").WithError(err)
	}

	endpoint, err := url.JoinPath(r.cfg.BaseURL, "api", "v1", "run", flowID.String())
	if err != nil {
		return nil, ErrRequestFailed.WithMessagef("invalid base url %q", r.cfg.BaseURL).WithError(err)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "flowrun.run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("flow.id", flowID.String()),
			attribute.String("job.id", applog.JobIDFromContext(ctx)),
		),
	)
	defer span.End()

	status, respBody, err := r.execute(ctx, endpoint, apiKey, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "[flowrun] 流程运行失败",
			zap.String("flow_id", flowID.String()),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	var result any
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, ErrInvalidResponse.WithError(err)
		}
	}
	r.logger.InfoContext(ctx, "[flowrun] 流程运行完成", zap.String("flow_id", flowID.String()))
	return result, nil
}

func (r *Runner) apiKey(kwargs map[string]any) string {
	if key, ok := kwargs["api_key"].(string); ok && key != "" {
		return key
	}
	for _, k := range []string{"api_key_user", "user"} {
		if user, ok := kwargs[k].(map[string]any); ok {
			if key, ok := user["api_key"].(string); ok && key != "" {
				return key
			}
		}
	}
	return r.cfg.APIKey
}

// execute 发送请求，按重试配置退避重试
func (r *Runner) execute(ctx context.Context, endpoint, apiKey string, body []byte) (int, []byte, error) {
	if r.cfg.Retry == nil {
		return r.doOnce(ctx, endpoint, apiKey, body)
	}

	rc := *r.cfg.Retry
	rc.normalize()

	var (
		status   int
		respBody []byte
		lastErr  error
	)
	for attempt := 0; attempt <= rc.MaxAttempts; attempt++ {
		status, respBody, lastErr = r.doOnce(ctx, endpoint, apiKey, body)
		if attempt == rc.MaxAttempts || !rc.RetryIf(status, lastErr) {
			break
		}

		delay := rc.backoff(attempt)
		r.logger.WarnContext(ctx, "[flowrun] 请求失败，准备重试",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, nil, ErrRequestFailed.WithError(ctx.Err())
		case <-timer.C:
		}
	}

	if lastErr != nil && rc.RetryIf(status, lastErr) {
		return status, nil, ErrMaxRetry.WithError(lastErr)
	}
	return status, respBody, lastErr
}

// doOnce 执行单次请求，非 2xx 作为错误返回
func (r *Runner) doOnce(ctx context.Context, endpoint, apiKey string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, ErrRequestFailed.WithError(err)
	}
	for k, v := range r.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, ErrRequestFailed.WithError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, ErrRequestFailed.WithError(err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, respBody, ErrFlowFailed.WithMessagef("flow run returned %d: %s",
			resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 512))
	}
	return resp.StatusCode, respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
