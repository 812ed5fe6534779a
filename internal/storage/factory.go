package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/LENAX/async-actions/pkg/config"
	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/storage"
	"github.com/LENAX/async-actions/pkg/storage/mysql"
	"github.com/LENAX/async-actions/pkg/storage/postgres"
	"github.com/LENAX/async-actions/pkg/storage/redislock"
	pkgsqlite "github.com/LENAX/async-actions/pkg/storage/sqlite"
	"github.com/LENAX/async-actions/pkg/storage/sqlstore"
)

// Backend 存储集合（内部使用）
// 任务状态和提交结果始终在关系库中，锁可以单独放在 redis 或内存中
type Backend struct {
	Repository storage.Repository
	Locks      lock.Store

	closers []func() error
}

// Close 关闭所有连接
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewRepository 创建关系库存储（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
func NewRepository(dbType, dsn string) (*sqlstore.Store, error) {
	var (
		store *sqlstore.Store
		err   error
	)
	switch dbType {
	case "sqlite":
		store, err = pkgsqlite.NewStoreFromDSN(dsn)
	case "mysql":
		store, err = mysql.NewStoreFromDSN(dsn)
	case "postgres", "postgresql":
		store, err = postgres.NewStoreFromDSN(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("创建%s存储失败: %w", dbType, err)
	}
	return store, nil
}

// Open 根据配置创建存储集合（内部方法）
func Open(ctx context.Context, cfg *config.EngineConfig) (*Backend, error) {
	dbCfg := cfg.AsyncActions.Storage.Database
	store, err := NewRepository(dbCfg.Type, dbCfg.DSN)
	if err != nil {
		return nil, err
	}

	// 连接池配置，方言限定了连接数时以方言为准（如 SQLite）
	db := store.GetDB()
	if store.Dialect().MaxOpenConns() == 0 {
		db.SetMaxOpenConns(dbCfg.MaxOpenConns)
		db.SetMaxIdleConns(dbCfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(dbCfg.ConnMaxIdleTime)

	b := &Backend{Repository: store, closers: []func() error{store.Close}}
	locks, err := newLockStore(ctx, cfg, store, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Locks = locks
	return b, nil
}

func newLockStore(ctx context.Context, cfg *config.EngineConfig, repo storage.Repository, b *Backend) (lock.Store, error) {
	switch cfg.GetLockBackend() {
	case config.LockBackendSQL:
		return repo, nil
	case config.LockBackendMemory:
		return lock.NewMemoryStore(), nil
	case config.LockBackendRedis:
		rc := cfg.AsyncActions.Locks.Redis
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{rc.Addr},
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("连接 redis 失败: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		return redislock.New(client, rc.Prefix), nil
	default:
		return nil, fmt.Errorf("不支持的锁后端: %s", cfg.GetLockBackend())
	}
}
