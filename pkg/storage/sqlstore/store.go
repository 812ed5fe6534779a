package sqlstore

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/async-actions/pkg/storage"
)

const (
	tableLock        = "async_actions_lock"
	tableTaskState   = "async_actions_task_state"
	tableTaskNote    = "async_actions_task_note"
	tableGroupResult = "async_actions_group_result"
)

// Store 基于 sqlx 的通用存储实现（对外导出）
// 锁、任务状态、备注、提交结果共用一个连接池，方言差异由 storage.Dialect 屏蔽
type Store struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// New 创建存储实例并初始化表结构（对外导出）
func New(db *sqlx.DB, dialect storage.Dialect) (*Store, error) {
	if n := dialect.MaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}
	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return s, nil
}

// Open 打开数据库、执行方言配置并创建存储实例（对外导出）
func Open(dialect storage.Dialect, dsn string) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if n := dialect.MaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置%s失败: %w", dialect.Name(), err)
		}
	}
	store, err := New(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// GetDB 获取底层数据库连接（对外导出）
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Dialect 返回方言
func (s *Store) Dialect() storage.Dialect {
	return s.dialect
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
func (s *Store) initSchema() error {
	d := s.dialect
	stmts := []string{
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		checksum VARCHAR(64) NOT NULL PRIMARY KEY,
		created_time %s NOT NULL
	)`, tableLock, d.TimestampType()),
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id %s,
		task_id VARCHAR(255) NOT NULL UNIQUE,
		task_name VARCHAR(255) NOT NULL,
		verbose_name VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		target_type VARCHAR(255) NOT NULL,
		target_id VARCHAR(255) NOT NULL,
		traceback %s NOT NULL,
		created_time %s NOT NULL,
		updated_time %s NOT NULL
	)`, tableTaskState, d.AutoIncrementKeyword(), d.TextType(), d.TimestampType(), d.TimestampType()),
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id %s,
		task_state_id BIGINT NOT NULL,
		level INTEGER NOT NULL,
		note %s NOT NULL,
		created_time %s NOT NULL,
		FOREIGN KEY (task_state_id) REFERENCES %s (id) ON DELETE CASCADE
	)`, tableTaskNote, d.AutoIncrementKeyword(), d.TextType(), d.TimestampType(), tableTaskState),
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		task_ids %s NOT NULL,
		created_time %s NOT NULL
	)`, tableGroupResult, d.TextType(), d.TimestampType()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("建表失败: %w\n%s", err, strings.TrimSpace(stmt))
		}
	}

	indexes := []struct {
		name    string
		table   string
		columns []string
	}{
		{"idx_async_actions_task_state_target", tableTaskState, []string{"target_type", "target_id"}},
		{"idx_async_actions_task_note_state", tableTaskNote, []string{"task_state_id"}},
	}
	for _, idx := range indexes {
		stmt := d.CreateIndexSQL(idx.name, idx.table, idx.columns)
		if _, err := s.db.Exec(stmt); err != nil && !d.IsDuplicateIndex(err) {
			return fmt.Errorf("创建索引 %s 失败: %w", idx.name, err)
		}
	}
	return nil
}

var _ storage.Repository = (*Store)(nil)
