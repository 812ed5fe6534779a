package lock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 进程内锁存储，适用于单进程部署和测试
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewMemoryStore 创建进程内锁存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]time.Time)}
}

// AcquireLocks implements Store.
func (m *MemoryStore) AcquireLocks(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, held := m.locks[id]; held {
			return &OccupiedError{ID: id}
		}
	}
	now := time.Now().UTC()
	for _, id := range ids {
		m.locks[id] = now
	}
	return nil
}

// ReleaseLocks implements Store.
func (m *MemoryStore) ReleaseLocks(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, held := m.locks[id]; !held {
			return &NotFoundError{ID: id}
		}
	}
	for _, id := range ids {
		delete(m.locks, id)
	}
	return nil
}

// LockExists implements Store.
func (m *MemoryStore) LockExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.locks[id]
	return held, nil
}

// ListLocks implements Store.
func (m *MemoryStore) ListLocks(ctx context.Context) ([]*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Lock, 0, len(m.locks))
	for id, created := range m.locks {
		out = append(out, &Lock{Checksum: id, CreatedTime: created})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Checksum < out[j].Checksum })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
