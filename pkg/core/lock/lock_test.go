package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/core/target"
)

func TestChecksum_StableAndSensitive(t *testing.T) {
	a := target.NewRef("shop", "Order", "1")
	assert.Equal(t, Checksum(a), Checksum(a))
	assert.Len(t, Checksum(a), 24)

	// 同ID不同类型
	assert.NotEqual(t, Checksum(a), Checksum(target.NewRef("shop", "Customer", "1")))
	// 同类型不同命名空间
	assert.NotEqual(t, Checksum(a), Checksum(target.NewRef("crm", "Order", "1")))
	// 字段边界不能被拼接混淆
	assert.NotEqual(t,
		Checksum(target.NewRef("", "ab", "c")),
		Checksum(target.NewRef("", "b", "ac")))
}

func TestManager_AcquireAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)

	held, err := m.Acquire(ctx, "a", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, held)

	_, err = m.Acquire(ctx, "c", "b")
	require.Error(t, err)
	var occupied *OccupiedError
	require.True(t, errors.As(err, &occupied))
	assert.Equal(t, "b", occupied.ID)
	assert.True(t, IsOccupied(err))

	// c 不能残留
	exists, err := m.Held(ctx, "c")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_ReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)

	_, err := m.Acquire(ctx, "x", "y")
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, "x", "y"))

	_, err = m.Acquire(ctx, "x", "y")
	require.NoError(t, err)

	// 释放时其中一个不存在，全部保留
	err = m.Release(ctx, "x", "missing")
	assert.True(t, IsNotFound(err))
	exists, _ := m.Held(ctx, "x")
	assert.True(t, exists)
}

func TestManager_EmptyInput(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	held, err := m.Acquire(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, held)
	assert.NoError(t, m.Release(context.Background()))
}

func TestManager_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, "shared", "other"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	locks, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, locks, 2)
}

func TestManager_AcquireFor(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)
	ref := target.NewRef("shop", "Order", "9")

	ids, err := m.AcquireFor(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ObjectLockIDs(ref), ids)
}
