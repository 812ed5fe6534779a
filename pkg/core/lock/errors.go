package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrLockOccupied 锁已被占用
	ErrLockOccupied = errors.New("锁已被占用")
	// ErrLockNotFound 要释放的锁不存在
	ErrLockNotFound = errors.New("锁不存在")
)

// OccupiedError 获取锁时发现某个锁已被持有（对外导出）
type OccupiedError struct {
	ID string
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("锁已被占用: %s", e.ID)
}

func (e *OccupiedError) Unwrap() error { return ErrLockOccupied }

// NotFoundError 释放锁时发现某个锁不存在（对外导出）
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("锁不存在: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrLockNotFound }

// IsOccupied 判断错误链中是否包含锁占用错误
func IsOccupied(err error) bool {
	return errors.Is(err, ErrLockOccupied)
}

// IsNotFound 判断错误链中是否包含锁不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLockNotFound)
}
