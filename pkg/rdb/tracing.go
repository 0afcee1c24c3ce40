package rdb

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "apsched.redis"

// tracingHook 为命令与管道记录 client span
type tracingHook struct {
	mode Mode
}

func newTracingHook(mode Mode) *tracingHook {
	if mode == "" {
		mode = Standalone
	}
	return &tracingHook{mode: mode}
}

func (h *tracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *tracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := h.start(ctx, "redis."+cmd.Name(), 1)
		defer span.End()

		err := next(ctx, cmd)
		h.finish(span, err)
		return err
	}
}

func (h *tracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		ctx, span := h.start(ctx, "redis.pipeline", len(cmds))
		span.SetAttributes(attribute.String("db.operation", strings.Join(names, " ")))
		defer span.End()

		err := next(ctx, cmds)
		h.finish(span, err)
		return err
	}
}

// start 每次获取 tracer，Provider 晚于客户端初始化时同样生效
func (h *tracingHook) start(ctx context.Context, name string, n int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.redis.mode", string(h.mode)),
			attribute.Int("db.redis.num_cmd", n),
		),
	)
}

func (h *tracingHook) finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
