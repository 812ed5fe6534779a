package config

import (
	"time"
)

// 锁存储后端
const (
	LockBackendSQL    = "sql"
	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"
)

// 消息渲染缓存后端
const (
	CacheBackendMemory    = "memory"
	CacheBackendRistretto = "ristretto"
)

// EngineConfig 框架配置（对外导出）
type EngineConfig struct {
	AsyncActions struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Locks struct {
			Backend string `yaml:"backend"`
			Redis   struct {
				Addr     string `yaml:"addr"`
				Password string `yaml:"password"`
				DB       int    `yaml:"db"`
				Prefix   string `yaml:"prefix"`
			} `yaml:"redis"`
		} `yaml:"locks"`
		Execution struct {
			WorkerConcurrency int           `yaml:"worker_concurrency"`
			ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
			LockRetry         struct {
				Delay      time.Duration `yaml:"delay"`
				Backoff    float64       `yaml:"backoff"`
				MaxDelay   time.Duration `yaml:"max_delay"`
				MaxRetries int           `yaml:"max_retries"`
				Jitter     *bool         `yaml:"jitter"`
			} `yaml:"lock_retry"`
		} `yaml:"execution"`
		Messages struct {
			Debug bool `yaml:"debug"`
			Cache struct {
				Enabled       bool          `yaml:"enabled"`
				Backend       string        `yaml:"backend"`
				TTL           time.Duration `yaml:"ttl"`
				MaxCost       int64         `yaml:"max_cost"`
				CleanInterval time.Duration `yaml:"clean_interval"`
			} `yaml:"cache"`
		} `yaml:"messages"`
		API struct {
			Addr string `yaml:"addr"`
		} `yaml:"api"`
	} `yaml:"async-actions"`
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.AsyncActions.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.AsyncActions.Storage.Database.DSN
}

// GetLockBackend 获取锁存储后端
func (c *EngineConfig) GetLockBackend() string {
	if c.AsyncActions.Locks.Backend == "" {
		return LockBackendSQL
	}
	return c.AsyncActions.Locks.Backend
}

// GetWorkerConcurrency 获取Worker并发数
func (c *EngineConfig) GetWorkerConcurrency() int {
	concurrency := c.AsyncActions.Execution.WorkerConcurrency
	if concurrency <= 0 {
		return 10 // 默认值
	}
	return concurrency
}

// JitterEnabled 锁重试是否加随机抖动，未配置时启用
func (c *EngineConfig) JitterEnabled() bool {
	j := c.AsyncActions.Execution.LockRetry.Jitter
	return j == nil || *j
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	a := &c.AsyncActions

	// General默认值
	if a.General.InstanceName == "" {
		a.General.InstanceName = "async-actions"
	}
	if a.General.LogLevel == "" {
		a.General.LogLevel = "info"
	}
	if a.General.Env == "" {
		a.General.Env = "dev"
	}

	// Database默认值
	if a.Storage.Database.Type == "" {
		a.Storage.Database.Type = "sqlite"
	}
	if a.Storage.Database.DSN == "" && a.Storage.Database.Type == "sqlite" {
		a.Storage.Database.DSN = "async_actions.db"
	}
	if a.Storage.Database.MaxOpenConns <= 0 {
		a.Storage.Database.MaxOpenConns = 10
	}
	if a.Storage.Database.MaxIdleConns <= 0 {
		a.Storage.Database.MaxIdleConns = 5
	}
	if a.Storage.Database.ConnMaxLifetime <= 0 {
		a.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if a.Storage.Database.ConnMaxIdleTime <= 0 {
		a.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Locks默认值
	if a.Locks.Backend == "" {
		a.Locks.Backend = LockBackendSQL
	}
	if a.Locks.Backend == LockBackendRedis && a.Locks.Redis.Addr == "" {
		a.Locks.Redis.Addr = "localhost:6379"
	}

	// Execution默认值
	if a.Execution.WorkerConcurrency <= 0 {
		a.Execution.WorkerConcurrency = 10
	}
	if a.Execution.ShutdownTimeout <= 0 {
		a.Execution.ShutdownTimeout = 30 * time.Second
	}

	// 锁重试默认值：1s起，指数退避，最长60s，最多12次
	if a.Execution.LockRetry.Delay <= 0 {
		a.Execution.LockRetry.Delay = 1 * time.Second
	}
	if a.Execution.LockRetry.Backoff <= 0 {
		a.Execution.LockRetry.Backoff = 2
	}
	if a.Execution.LockRetry.MaxDelay <= 0 {
		a.Execution.LockRetry.MaxDelay = 60 * time.Second
	}
	if a.Execution.LockRetry.MaxRetries <= 0 {
		a.Execution.LockRetry.MaxRetries = 12
	}

	// Messages缓存默认值
	if a.Messages.Cache.Backend == "" {
		a.Messages.Cache.Backend = CacheBackendRistretto
	}
	if a.Messages.Cache.TTL <= 0 {
		a.Messages.Cache.TTL = 1 * time.Hour
	}
	if a.Messages.Cache.MaxCost <= 0 {
		a.Messages.Cache.MaxCost = 8 << 20
	}
	if a.Messages.Cache.CleanInterval <= 0 {
		a.Messages.Cache.CleanInterval = 30 * time.Minute
	}

	// API默认值
	if a.API.Addr == "" {
		a.API.Addr = ":8080"
	}
}
