package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/LENAX/async-actions/pkg/storage"
)

const uniqueViolation = "23505"

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// ConfigureDB 返回PostgreSQL配置SQL
func (d *PostgresDialect) ConfigureDB() []string {
	return []string{
		"SET TIME ZONE 'UTC'",
	}
}

// MaxOpenConns 不限制
func (d *PostgresDialect) MaxOpenConns() int {
	return 0
}

// AutoIncrementKeyword 返回PostgreSQL自增关键字
func (d *PostgresDialect) AutoIncrementKeyword() string {
	return "BIGSERIAL PRIMARY KEY"
}

// TextType 返回PostgreSQL文本类型
func (d *PostgresDialect) TextType() string {
	return "TEXT"
}

// TimestampType 返回PostgreSQL时间戳类型
func (d *PostgresDialect) TimestampType() string {
	return "TIMESTAMP"
}

// CreateIndexSQL 返回建索引语句
func (d *PostgresDialect) CreateIndexSQL(name, table string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(columns, ", "))
}

// SupportsReturning PostgreSQL 没有 LastInsertId，使用 RETURNING
func (d *PostgresDialect) SupportsReturning() bool {
	return true
}

// IsUniqueViolation unique_violation
func (d *PostgresDialect) IsUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == uniqueViolation
}

// IsDuplicateIndex 使用 IF NOT EXISTS，不会出现
func (d *PostgresDialect) IsDuplicateIndex(err error) bool {
	return false
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
