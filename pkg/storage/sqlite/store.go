package sqlite

import (
	"github.com/LENAX/async-actions/pkg/storage/sqlstore"
)

// NewStoreFromDSN 通过DSN创建SQLite存储（对外导出）
// 例如 "file:async_actions.db?cache=shared" 或临时文件路径
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	return sqlstore.Open(NewSQLiteDialect(), dsn)
}
