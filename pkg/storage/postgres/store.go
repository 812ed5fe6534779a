package postgres

import (
	"github.com/LENAX/async-actions/pkg/storage/sqlstore"
)

// NewStoreFromDSN 通过DSN创建PostgreSQL存储（对外导出）
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	return sqlstore.Open(NewPostgresDialect(), dsn)
}
