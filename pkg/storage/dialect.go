package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回 database/sql 驱动名
	DriverName() string

	// ConfigureDB 配置数据库连接（如SQLite的PRAGMA）
	// 返回需要执行的SQL语句列表
	ConfigureDB() []string

	// MaxOpenConns 最大连接数，0 表示不限制
	MaxOpenConns() int

	// AutoIncrementKeyword 返回自增主键列定义
	// SQLite: INTEGER PRIMARY KEY AUTOINCREMENT
	// MySQL: BIGINT PRIMARY KEY AUTO_INCREMENT
	// PostgreSQL: BIGSERIAL PRIMARY KEY
	AutoIncrementKeyword() string

	// TextType 返回文本类型
	TextType() string

	// TimestampType 返回时间戳类型
	TimestampType() string

	// CreateIndexSQL 返回建索引语句，需可重复执行
	CreateIndexSQL(name, table string, columns []string) string

	// SupportsReturning 插入时是否支持 RETURNING 取回自增ID
	SupportsReturning() bool

	// IsUniqueViolation 错误是否为唯一约束冲突
	IsUniqueViolation(err error) bool

	// IsDuplicateIndex 错误是否为索引已存在
	IsDuplicateIndex(err error) bool
}
