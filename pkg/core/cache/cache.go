package cache

import (
	"sync"
	"time"
)

// Cache 渲染结果缓存接口（对外导出）
// ttl 为 0 表示不过期
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
	Delete(key string)
	Clear()
	Close()
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      string
	expireTime time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expireTime.IsZero() && now.After(e.expireTime)
}

// MemoryCache 内存缓存实现（对外导出）
type MemoryCache struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryCache 创建内存缓存实例（对外导出）
// cleanupInterval > 0 时启动清理协程，定期清理过期缓存
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		cache: make(map[string]*cacheEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupExpired(cleanupInterval)
	}
	return c
}

// Set 设置缓存值
func (c *MemoryCache) Set(key, value string, ttl time.Duration) {
	if key == "" {
		return // 空key，忽略
	}
	entry := &cacheEntry{value: value}
	if ttl > 0 {
		entry.expireTime = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = entry
}

// Get 获取缓存值
func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists {
		return "", false
	}

	// 已过期，删除并返回不存在
	if entry.expired(c.now()) {
		c.Delete(key)
		return "", false
	}
	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
}

// Clear 清空所有缓存
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry)
}

// Len 当前条目数（含未清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止清理协程
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.cache {
		if entry.expired(now) {
			delete(c.cache, key)
		}
	}
}
