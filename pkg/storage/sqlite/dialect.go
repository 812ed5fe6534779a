package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/LENAX/async-actions/pkg/storage"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
}

// MaxOpenConns SQLite 单写者，使用单连接串行化写入，PRAGMA 也只需设置一次
func (d *SQLiteDialect) MaxOpenConns() int {
	return 1
}

// AutoIncrementKeyword 返回SQLite自增关键字
func (d *SQLiteDialect) AutoIncrementKeyword() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// TextType 返回SQLite文本类型
func (d *SQLiteDialect) TextType() string {
	return "TEXT"
}

// TimestampType 返回SQLite时间戳类型
func (d *SQLiteDialect) TimestampType() string {
	return "DATETIME"
}

// CreateIndexSQL 返回建索引语句
func (d *SQLiteDialect) CreateIndexSQL(name, table string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(columns, ", "))
}

// SupportsReturning SQLite 使用 LastInsertId
func (d *SQLiteDialect) SupportsReturning() bool {
	return false
}

// IsUniqueViolation 主键或唯一约束冲突
func (d *SQLiteDialect) IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// IsDuplicateIndex SQLite 使用 IF NOT EXISTS，不会出现
func (d *SQLiteDialect) IsDuplicateIndex(err error) bool {
	return false
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
