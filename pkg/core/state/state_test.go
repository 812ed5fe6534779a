package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSets(t *testing.T) {
	assert.True(t, StatusSuccess.IsReady())
	assert.True(t, StatusRevoked.IsReady())
	assert.False(t, StatusRetry.IsReady())
	assert.True(t, StatusPending.IsUnready())
	assert.True(t, StatusFailure.IsPropagating())
	assert.False(t, StatusSuccess.IsPropagating())
	assert.True(t, StatusRetry.IsException())
	assert.False(t, StatusRevoked.KeepsTraceback())
	assert.False(t, Status("BOGUS").IsValid())
}

func TestTaskState_TargetAndTraceback(t *testing.T) {
	st := &TaskState{TargetType: "shop.Order", TargetID: "3", Traceback: "line1\nValueError: boom\n\n"}
	assert.Equal(t, "Order", st.Target().Type)
	assert.Equal(t, "shop", st.Target().Namespace)
	assert.Equal(t, "ValueError: boom", st.LastTracebackLine())
}

func TestLevel(t *testing.T) {
	assert.Equal(t, "success", LevelSuccess.String())
	assert.Equal(t, LevelWarning, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("unknown"))
}

type fakeStore struct {
	mu      sync.Mutex
	updates map[string][]string
}

func (f *fakeStore) UpdateTaskStatus(ctx context.Context, taskID string, status Status, traceback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if taskID == "unknown" {
		return fmt.Errorf("%w: %s", ErrTaskStateNotFound, taskID)
	}
	f.updates[taskID] = append(f.updates[taskID], string(status)+"|"+traceback)
	return nil
}

func TestTracker_Apply(t *testing.T) {
	store := &fakeStore{updates: map[string][]string{}}
	tr := NewTracker(store, nil)
	ctx := context.Background()

	require.NoError(t, tr.Apply(ctx, &StatusEvent{TaskID: "t1", Status: StatusRetry, Traceback: "tb"}))
	require.NoError(t, tr.Apply(ctx, &StatusEvent{TaskID: "t1", Status: StatusSuccess, Traceback: "ignored"}))
	// 未知任务被忽略
	require.NoError(t, tr.Apply(ctx, &StatusEvent{TaskID: "unknown", Status: StatusStarted}))

	assert.Equal(t, []string{"RETRY|tb", "SUCCESS|"}, store.updates["t1"])
}

func TestTracker_HandleIgnoresBadPayload(t *testing.T) {
	tr := NewTracker(&fakeStore{updates: map[string][]string{}}, nil)
	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	assert.NoError(t, tr.Handle(msg))

	e := &StatusEvent{TaskID: "t", Status: StatusStarted, Timestamp: time.Now()}
	payload, err := e.Marshal()
	require.NoError(t, err)
	assert.NoError(t, tr.Handle(message.NewMessage(watermill.NewUUID(), payload)))
}
