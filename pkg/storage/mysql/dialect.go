package mysql

import (
	"errors"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"github.com/LENAX/async-actions/pkg/storage"
)

const (
	errDupEntry   = 1062
	errDupKeyName = 1061
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// ConfigureDB MySQL无需额外配置
func (d *MySQLDialect) ConfigureDB() []string {
	return nil
}

// MaxOpenConns 不限制
func (d *MySQLDialect) MaxOpenConns() int {
	return 0
}

// AutoIncrementKeyword 返回MySQL自增关键字
func (d *MySQLDialect) AutoIncrementKeyword() string {
	return "BIGINT PRIMARY KEY AUTO_INCREMENT"
}

// TextType 返回MySQL文本类型
func (d *MySQLDialect) TextType() string {
	return "LONGTEXT"
}

// TimestampType 返回MySQL时间戳类型（微秒精度）
func (d *MySQLDialect) TimestampType() string {
	return "DATETIME(6)"
}

// CreateIndexSQL MySQL 不支持 IF NOT EXISTS，重复创建由 IsDuplicateIndex 识别
func (d *MySQLDialect) CreateIndexSQL(name, table string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, strings.Join(columns, ", "))
}

// SupportsReturning MySQL 使用 LastInsertId
func (d *MySQLDialect) SupportsReturning() bool {
	return false
}

// IsUniqueViolation Duplicate entry
func (d *MySQLDialect) IsUniqueViolation(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// IsDuplicateIndex Duplicate key name
func (d *MySQLDialect) IsDuplicateIndex(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDupKeyName
}

// NormalizeDSN 补全 parseTime 和 clientFoundRows 参数
// clientFoundRows 保证 UPDATE 在值未变化时也返回匹配行数
func NormalizeDSN(dsn string) string {
	for _, param := range []string{"parseTime=true", "clientFoundRows=true"} {
		if strings.Contains(dsn, param) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
