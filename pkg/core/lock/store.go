package lock

import (
	"context"
	"time"
)

// Lock 锁记录，存在即表示被持有，不记录持有者
type Lock struct {
	Checksum    string    `json:"checksum" db:"checksum"`
	CreatedTime time.Time `json:"created_time" db:"created_time"`
}

// Store 锁存储（对外导出）
// 实现必须保证 AcquireLocks/ReleaseLocks 是全有或全无的：
// 任何一个ID冲突（或不存在）时，本次调用不留下任何修改
type Store interface {
	// AcquireLocks 批量插入锁，冲突时返回 *OccupiedError
	AcquireLocks(ctx context.Context, ids []string) error
	// ReleaseLocks 批量删除锁，任一不存在时返回 *NotFoundError
	ReleaseLocks(ctx context.Context, ids []string) error
	// LockExists 锁是否存在
	LockExists(ctx context.Context, id string) (bool, error)
	// ListLocks 列出当前所有锁
	ListLocks(ctx context.Context) ([]*Lock, error)
}
