package orm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tokmz/apsched/pkg/logger"
)

type probe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

// TestNewSQLite 测试创建 sqlite 连接
func TestNewSQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "orm.db")

	db, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, db.AutoMigrate(&probe{}))
	require.NoError(t, db.Create(&probe{Name: "a"}).Error)

	var n int64
	require.NoError(t, db.Model(&probe{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

// TestNewErrors 测试配置错误
func TestNewErrors(t *testing.T) {
	_, err := New(&Config{Type: SQLite}, nil)
	assert.Error(t, err)

	_, err = New(&Config{Type: "oracle", DSN: "x"}, nil)
	assert.ErrorContains(t, err, "unsupported database type")
}

// TestTracingPlugin 测试 SQL 生成 Span
func TestTracingPlugin(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "trace.db")
	db, err := New(cfg, nil)
	require.NoError(t, err)
	defer Close(db)
	require.NoError(t, db.AutoMigrate(&probe{}))

	require.NoError(t, db.Use(NewTracingPlugin(WithSQLTrace(true))))

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&probe{Name: "b"}).Error)
	span.End()

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "parent")
	assert.Contains(t, names, "gorm.create")
}

// TestLoadBalancePolicy 测试负载均衡策略选择
func TestLoadBalancePolicy(t *testing.T) {
	assert.NotNil(t, getLoadBalancePolicy("round_robin"))
	assert.NotNil(t, getLoadBalancePolicy(""))
}
