package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/metrics"
)

var tracer = otel.Tracer("github.com/LENAX/async-actions/pkg/core/lock")

// Manager 锁管理器（对外导出）
// 只负责互斥语义，排他性完全依赖底层 Store 的唯一约束
type Manager struct {
	store  Store
	logger watermill.LoggerAdapter
}

// NewManager 创建锁管理器（对外导出）
func NewManager(store Store, logger watermill.LoggerAdapter) *Manager {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Manager{store: store, logger: logger}
}

// Acquire 原子获取一组锁（对外导出）
// 重复ID只保留第一次出现；空输入直接成功。
// 任一锁被占用时返回 *OccupiedError，且本次调用不持有任何锁
func (m *Manager) Acquire(ctx context.Context, ids ...string) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "lock.Acquire", trace.WithAttributes(attribute.Int("async_actions.lock.count", len(ids))))
	defer span.End()

	if err := m.store.AcquireLocks(ctx, ids); err != nil {
		var occupied *OccupiedError
		if errors.As(err, &occupied) {
			metrics.LockOccupiedCounter.Inc()
			span.SetAttributes(attribute.String("async_actions.lock.occupied", occupied.ID))
			m.logger.Debug("锁已被占用", watermill.LogFields{"lock_id": occupied.ID})
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("获取锁失败: %w", err)
	}
	metrics.LockAcquireCounter.Add(float64(len(ids)))
	m.logger.Trace("获取锁成功", watermill.LogFields{"lock_ids": ids})
	return ids, nil
}

// Release 原子释放一组锁（对外导出）
// 任一锁不存在时返回 *NotFoundError，且不释放任何锁
func (m *Manager) Release(ctx context.Context, ids ...string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "lock.Release", trace.WithAttributes(attribute.Int("async_actions.lock.count", len(ids))))
	defer span.End()

	if err := m.store.ReleaseLocks(ctx, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			m.logger.Error("释放锁失败，锁不存在", err, watermill.LogFields{"lock_id": notFound.ID})
			return err
		}
		return fmt.Errorf("释放锁失败: %w", err)
	}
	metrics.LockReleaseCounter.Add(float64(len(ids)))
	m.logger.Trace("释放锁成功", watermill.LogFields{"lock_ids": ids})
	return nil
}

// AcquireFor 为一组对象获取锁
func (m *Manager) AcquireFor(ctx context.Context, objs ...target.Object) ([]string, error) {
	var ids []string
	for _, obj := range objs {
		ids = append(ids, ObjectLockIDs(obj)...)
	}
	return m.Acquire(ctx, ids...)
}

// Held 锁是否被持有
func (m *Manager) Held(ctx context.Context, id string) (bool, error) {
	return m.store.LockExists(ctx, id)
}

// List 列出当前所有锁
func (m *Manager) List(ctx context.Context) ([]*Lock, error) {
	return m.store.ListLocks(ctx)
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
