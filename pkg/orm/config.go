package orm

import "time"

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置
type Config struct {
	Type DBType `mapstructure:"type"` // 数据库类型: mysql, postgres, sqlite, sqlserver
	DSN  string `mapstructure:"dsn"`  // 数据源名称

	// 连接池配置
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// GORM 配置
	SkipDefaultTransaction bool `mapstructure:"skip_default_transaction"`
	PrepareStmt            bool `mapstructure:"prepare_stmt"`

	// 日志配置
	LogLevel      int           `mapstructure:"log_level"`      // 1:Silent 2:Error 3:Warn 4:Info
	SlowThreshold time.Duration `mapstructure:"slow_threshold"` // 慢查询阈值

	TablePrefix string `mapstructure:"table_prefix"` // 表名前缀

	// 链路追踪
	EnableTracing bool `mapstructure:"enable_tracing"`
	TraceSQL      bool `mapstructure:"trace_sql"` // 是否在 Span 中记录完整 SQL

	// 读写分离配置（可选）
	ReadWriteSplit *ReadWriteSplitConfig `mapstructure:"read_write_split"`
}

// ReadWriteSplitConfig 读写分离配置
// 任务存储的到期查询走从库，写操作与事务始终走主库
type ReadWriteSplitConfig struct {
	Sources []string `mapstructure:"sources"` // 从库 DSN 列表（只读）
	Policy  string   `mapstructure:"policy"`  // 负载均衡策略: random, round_robin

	MaxIdleConns    *int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    *int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime *time.Duration `mapstructure:"conn_max_lifetime"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		DSN:             "apsched.db",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PrepareStmt:     true,
		LogLevel:        3,
		SlowThreshold:   200 * time.Millisecond,
	}
}
