package redislock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/LENAX/async-actions/pkg/core/lock"
)

// DefaultPrefix 默认键前缀
const DefaultPrefix = "async_actions:lock:"

// 检查全部键均不存在后一次性写入，返回第一个冲突键的序号（从1开始），0 表示成功
var acquireScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
    if redis.call("EXISTS", key) == 1 then
        return i
    end
end
for _, key in ipairs(KEYS) do
    redis.call("SET", key, ARGV[1])
end
return 0
`)

// 检查全部键均存在后一次性删除，返回第一个缺失键的序号（从1开始），0 表示成功
var releaseScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
    if redis.call("EXISTS", key) == 0 then
        return i
    end
end
redis.call("DEL", unpack(KEYS))
return 0
`)

// Store 基于 Redis 的锁存储（对外导出）
// 原子性由 Lua 脚本保证，适合多个进程共享同一个 Redis 的部署
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New 创建 Redis 锁存储，prefix 为空时使用 DefaultPrefix
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) keys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + id
	}
	return keys
}

// AcquireLocks implements lock.Store.
func (s *Store) AcquireLocks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	idx, err := acquireScript.Run(ctx, s.client, s.keys(ids), now).Int()
	if err != nil {
		return fmt.Errorf("执行加锁脚本失败: %w", err)
	}
	if idx > 0 {
		return &lock.OccupiedError{ID: ids[idx-1]}
	}
	return nil
}

// ReleaseLocks implements lock.Store.
func (s *Store) ReleaseLocks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	idx, err := releaseScript.Run(ctx, s.client, s.keys(ids)).Int()
	if err != nil {
		return fmt.Errorf("执行释放锁脚本失败: %w", err)
	}
	if idx > 0 {
		return &lock.NotFoundError{ID: ids[idx-1]}
	}
	return nil
}

// LockExists implements lock.Store.
func (s *Store) LockExists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("查询锁失败: %w", err)
	}
	return n > 0, nil
}

// ListLocks implements lock.Store.
func (s *Store) ListLocks(ctx context.Context) ([]*lock.Lock, error) {
	var out []*lock.Lock
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("读取锁 %s 失败: %w", key, err)
		}
		created, _ := time.Parse(time.RFC3339Nano, value)
		out = append(out, &lock.Lock{Checksum: strings.TrimPrefix(key, s.prefix), CreatedTime: created})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("扫描锁失败: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Checksum < out[j].Checksum })
	return out, nil
}

var _ lock.Store = (*Store)(nil)
