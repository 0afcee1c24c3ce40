package scheduler

import (
	"log"

	"go.uber.org/zap"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StdLogger 标准库 log 适配器
type StdLogger struct{}

func (l *StdLogger) Debug(msg string, args ...any) { l.print("[DEBUG] ", msg, args) }

func (l *StdLogger) Info(msg string, args ...any) { l.print("[INFO] ", msg, args) }

func (l *StdLogger) Warn(msg string, args ...any) { l.print("[WARN] ", msg, args) }

func (l *StdLogger) Error(msg string, args ...any) { l.print("[ERROR] ", msg, args) }

func (l *StdLogger) print(level, msg string, args []any) {
	if len(args) == 0 {
		log.Print(level + msg)
		return
	}
	log.Printf(level+msg, args...)
}

// NopLogger 空日志实现
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}

func (NopLogger) Info(string, ...any) {}

func (NopLogger) Warn(string, ...any) {}

func (NopLogger) Error(string, ...any) {}

// ZapLogger zap 日志适配器
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger 创建 zap 日志适配器
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *ZapLogger) Debug(msg string, args ...any) {
	if len(args) == 0 {
		l.sugar.Debug(msg)
		return
	}
	l.sugar.Debugf(msg, args...)
}

func (l *ZapLogger) Info(msg string, args ...any) {
	if len(args) == 0 {
		l.sugar.Info(msg)
		return
	}
	l.sugar.Infof(msg, args...)
}

func (l *ZapLogger) Warn(msg string, args ...any) {
	if len(args) == 0 {
		l.sugar.Warn(msg)
		return
	}
	l.sugar.Warnf(msg, args...)
}

func (l *ZapLogger) Error(msg string, args ...any) {
	if len(args) == 0 {
		l.sugar.Error(msg)
		return
	}
	l.sugar.Errorf(msg, args...)
}
