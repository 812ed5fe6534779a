package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/storage"
	"github.com/LENAX/async-actions/pkg/storage/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "async_actions.db")
	store, err := NewStoreFromDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_InitSchemaIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "twice.db")
	s1, err := NewStoreFromDSN(dsn)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewStoreFromDSN(dsn)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestStore_LockAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AcquireLocks(ctx, []string{"a", "b"}))

	err := store.AcquireLocks(ctx, []string{"c", "b"})
	var occupied *lock.OccupiedError
	require.True(t, errors.As(err, &occupied))
	assert.Equal(t, "b", occupied.ID)

	exists, err := store.LockExists(ctx, "c")
	require.NoError(t, err)
	assert.False(t, exists, "失败的获取不能留下部分锁")

	err = store.ReleaseLocks(ctx, []string{"a", "missing"})
	var notFound *lock.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ID)

	exists, _ = store.LockExists(ctx, "a")
	assert.True(t, exists, "失败的释放不能删除任何锁")

	require.NoError(t, store.ReleaseLocks(ctx, []string{"a", "b"}))
	locks, err := store.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestStore_ConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	manager := lock.NewManager(store, nil)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Acquire(ctx, "x", "y"); err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				assert.True(t, lock.IsOccupied(err))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestStore_TaskStateLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ref := target.NewRef("shop", "Order", "1")

	states := []*state.TaskState{
		{TaskID: "t1", TaskName: "shop.ship", VerboseName: "Ship", TargetType: ref.TypeTag(), TargetID: ref.ID},
		{TaskID: "t2", TaskName: "shop.bill", VerboseName: "Bill", TargetType: ref.TypeTag(), TargetID: ref.ID},
	}
	require.NoError(t, store.CreateTaskStates(ctx, states))
	assert.NotZero(t, states[0].ID)
	assert.NotEqual(t, states[0].ID, states[1].ID)

	got, err := store.GetTaskState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, got.Status)
	assert.Equal(t, ref, got.Target())

	require.NoError(t, store.UpdateTaskStatus(ctx, "t1", state.StatusRetry, "Traceback\nboom"))
	got, _ = store.GetTaskState(ctx, "t1")
	assert.Equal(t, state.StatusRetry, got.Status)
	assert.Equal(t, "boom", got.LastTracebackLine())

	err = store.UpdateTaskStatus(ctx, "nope", state.StatusStarted, "")
	assert.True(t, errors.Is(err, state.ErrTaskStateNotFound))
	_, err = store.GetTaskState(ctx, "nope")
	assert.True(t, errors.Is(err, state.ErrTaskStateNotFound))

	list, err := store.ListTaskStates(ctx, []string{"t2", "missing", "t1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].TaskID)
	assert.Equal(t, "t1", list[1].TaskID)

	byTarget, err := store.ListTaskStatesByTarget(ctx, ref, 1)
	require.NoError(t, err)
	assert.Len(t, byTarget, 1)
}

func TestStore_CreateTaskStatesIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	states := []*state.TaskState{
		{TaskID: "dup", TaskName: "a", TargetType: "shop.Order", TargetID: "1"},
		{TaskID: "dup", TaskName: "b", TargetType: "shop.Order", TargetID: "1"},
	}
	assert.Error(t, store.CreateTaskStates(ctx, states))
	_, err := store.GetTaskState(ctx, "dup")
	assert.True(t, errors.Is(err, state.ErrTaskStateNotFound))
}

func TestStore_NotesOrderedAndCascade(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	st := &state.TaskState{TaskID: "n1", TaskName: "x", TargetType: "shop.Order", TargetID: "1"}
	require.NoError(t, store.CreateTaskStates(ctx, []*state.TaskState{st}))

	_, err := store.AddNote(ctx, st.ID, state.LevelInfo, "first")
	require.NoError(t, err)
	_, err = store.AddNote(ctx, st.ID, state.LevelError, "second")
	require.NoError(t, err)

	notes, err := store.ListNotes(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "first", notes[0].Text)
	assert.Equal(t, state.LevelError, notes[1].Level)

	count, err := store.CountNotes(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.DeleteTaskState(ctx, "n1"))
	count, err = store.CountNotes(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_GroupResult(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveGroupResult(ctx, &storage.GroupResult{ID: "g1", TaskIDs: []string{"a", "b"}}))
	got, err := store.GetGroupResult(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.TaskIDs)
	assert.False(t, got.CreatedTime.IsZero())

	_, err = store.GetGroupResult(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
