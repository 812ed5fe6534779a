package config

import (
	"fmt"
)

// Validate 校验框架配置合法性
func (c *EngineConfig) Validate() error {
	return ValidateFrameworkConfig(c)
}

// ValidateFrameworkConfig 校验框架配置合法性
func ValidateFrameworkConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	a := &cfg.AsyncActions

	// 校验General
	if a.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	if a.General.LogLevel != "" {
		validLevels := map[string]bool{
			"trace": true,
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[a.General.LogLevel] {
			return fmt.Errorf("log_level必须是trace/debug/info/warn/error之一")
		}
	}

	// 校验Storage.Database
	if a.Storage.Database.Type == "" {
		return fmt.Errorf("database.type不能为空")
	}
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[a.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if a.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if a.Storage.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns必须大于0")
	}
	if a.Storage.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns不能为负数")
	}

	// 校验Locks
	switch a.Locks.Backend {
	case "", LockBackendSQL, LockBackendMemory:
	case LockBackendRedis:
		if a.Locks.Redis.Addr == "" {
			return fmt.Errorf("locks.redis.addr不能为空")
		}
	default:
		return fmt.Errorf("locks.backend必须是sql/redis/memory之一")
	}

	// 校验Execution
	if a.Execution.WorkerConcurrency <= 0 {
		return fmt.Errorf("execution.worker_concurrency必须大于0")
	}
	r := a.Execution.LockRetry
	if r.MaxRetries < 0 {
		return fmt.Errorf("execution.lock_retry.max_retries不能为负数")
	}
	if r.Delay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("execution.lock_retry.delay不能为负数")
	}
	if r.MaxDelay > 0 && r.Delay > r.MaxDelay {
		return fmt.Errorf("execution.lock_retry.delay不能大于max_delay")
	}
	if r.Backoff != 0 && r.Backoff < 1 {
		return fmt.Errorf("execution.lock_retry.backoff不能小于1")
	}

	// 校验Messages
	if a.Messages.Cache.Enabled {
		switch a.Messages.Cache.Backend {
		case "", CacheBackendMemory, CacheBackendRistretto:
		default:
			return fmt.Errorf("messages.cache.backend必须是memory/ristretto之一")
		}
	}

	return nil
}
