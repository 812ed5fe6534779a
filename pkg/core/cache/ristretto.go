package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache 基于 ristretto 的有界缓存（对外导出）
type RistrettoCache struct {
	c *ristretto.Cache
}

// NewRistrettoCache 创建 ristretto 缓存，maxCost 为缓存内容总字节数上限
func NewRistrettoCache(maxCost int64) (*RistrettoCache, error) {
	if maxCost <= 0 {
		maxCost = 8 << 20
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 ristretto 缓存失败: %w", err)
	}
	return &RistrettoCache{c: rc}, nil
}

// Get 获取缓存值
func (r *RistrettoCache) Get(key string) (string, bool) {
	v, ok := r.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set 设置缓存值，代价按内容长度计算
func (r *RistrettoCache) Set(key, value string, ttl time.Duration) {
	if key == "" {
		return
	}
	r.c.SetWithTTL(key, value, int64(len(value)), ttl)
	r.c.Wait()
}

// Delete 删除缓存值
func (r *RistrettoCache) Delete(key string) {
	r.c.Del(key)
}

// Clear 清空所有缓存
func (r *RistrettoCache) Clear() {
	r.c.Clear()
}

// Close 释放 ristretto 资源
func (r *RistrettoCache) Close() {
	r.c.Close()
}
