package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/LENAX/async-actions/pkg/core/lock"
)

// AcquireLocks 在一个事务内按顺序插入锁记录
// 任一主键冲突时回滚并返回 *lock.OccupiedError
func (s *Store) AcquireLocks(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	query := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (checksum, created_time) VALUES (?, ?)", tableLock))
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, id, now); err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return &lock.OccupiedError{ID: id}
			}
			return fmt.Errorf("插入锁 %s 失败: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ReleaseLocks 在一个事务内删除锁记录
// 任一锁不存在时回滚并返回 *lock.NotFoundError
func (s *Store) ReleaseLocks(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	query := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE checksum = ?", tableLock))
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("删除锁 %s 失败: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("获取影响行数失败: %w", err)
		}
		if n == 0 {
			return &lock.NotFoundError{ID: id}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// LockExists 锁是否存在
func (s *Store) LockExists(ctx context.Context, id string) (bool, error) {
	var count int
	query := s.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE checksum = ?", tableLock))
	if err := s.db.GetContext(ctx, &count, query, id); err != nil {
		return false, fmt.Errorf("查询锁失败: %w", err)
	}
	return count > 0, nil
}

// ListLocks 列出所有锁，按创建时间排序
func (s *Store) ListLocks(ctx context.Context) ([]*lock.Lock, error) {
	var locks []*lock.Lock
	query := fmt.Sprintf("SELECT checksum, created_time FROM %s ORDER BY created_time, checksum", tableLock)
	if err := s.db.SelectContext(ctx, &locks, query); err != nil {
		return nil, fmt.Errorf("查询锁列表失败: %w", err)
	}
	return locks, nil
}
