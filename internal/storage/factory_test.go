package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/config"
	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/storage/redislock"
)

func sqliteConfig(t *testing.T, backend string) *config.EngineConfig {
	t.Helper()
	cfg := &config.EngineConfig{}
	cfg.AsyncActions.Storage.Database.Type = "sqlite"
	cfg.AsyncActions.Storage.Database.DSN = filepath.Join(t.TempDir(), "factory.db")
	cfg.AsyncActions.Locks.Backend = backend
	cfg.ApplyDefaults()
	return cfg
}

func TestNewRepository_UnsupportedType(t *testing.T) {
	_, err := NewRepository("oracle", "dsn")
	assert.Error(t, err)
}

func TestOpen_SQLLocksShareRepository(t *testing.T) {
	b, err := Open(context.Background(), sqliteConfig(t, config.LockBackendSQL))
	require.NoError(t, err)
	defer b.Close()

	assert.Same(t, b.Repository, b.Locks)
	m := lock.NewManager(b.Locks, nil)
	_, err = m.Acquire(context.Background(), "abc")
	require.NoError(t, err)
	held, err := b.Repository.LockExists(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestOpen_MemoryLocks(t *testing.T) {
	b, err := Open(context.Background(), sqliteConfig(t, config.LockBackendMemory))
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.Locks.(*lock.MemoryStore)
	assert.True(t, ok)
}

func TestOpen_RedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t, config.LockBackendRedis)
	cfg.AsyncActions.Locks.Redis.Addr = mr.Addr()
	cfg.AsyncActions.Locks.Redis.Prefix = "test:lock:"

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.Locks.(*redislock.Store)
	require.True(t, ok)
	require.NoError(t, b.Locks.AcquireLocks(context.Background(), []string{"abc"}))
	assert.True(t, mr.Exists("test:lock:abc"))
}

func TestOpen_RedisUnavailable(t *testing.T) {
	cfg := sqliteConfig(t, config.LockBackendRedis)
	cfg.AsyncActions.Locks.Redis.Addr = "127.0.0.1:1"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
