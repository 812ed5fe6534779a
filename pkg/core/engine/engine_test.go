package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/config"
	"github.com/LENAX/async-actions/pkg/core/action"
	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/core/task"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &config.EngineConfig{}
	cfg.AsyncActions.Storage.Database.Type = "sqlite"
	cfg.AsyncActions.Storage.Database.DSN = filepath.Join(t.TempDir(), "engine.db")
	cfg.AsyncActions.Execution.WorkerConcurrency = 4
	cfg.AsyncActions.Execution.LockRetry.Delay = 5 * time.Millisecond
	cfg.AsyncActions.Execution.LockRetry.MaxDelay = 20 * time.Millisecond
	cfg.AsyncActions.Execution.LockRetry.MaxRetries = 3
	cfg.AsyncActions.Messages.Cache.Enabled = true
	cfg.ApplyDefaults()

	eng, err := New(context.Background(), cfg, WithLogger(watermill.NopLogger{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng
}

func waitDone(t *testing.T, report *action.Report) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return report.Result.Wait(ctx)
}

func TestEngine_RunActionEndToEnd(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.RegisterTarget("shop.Order", func(ctx context.Context, id string) (any, error) {
		return "order-" + id, nil
	}))
	require.NoError(t, eng.RegisterTask(task.Define("shop.ship_order", func(tc *task.TaskContext) (any, error) {
		obj, err := tc.Target()
		if err != nil {
			return nil, err
		}
		return obj, tc.AddNote("shipped " + obj.(string))
	})))
	require.NoError(t, eng.RegisterAction(action.MustAsAction(canvas.NewStep("shop.ship_order"))))
	require.NoError(t, eng.Start(context.Background()))
	assert.True(t, eng.IsRunning())

	refs := []target.Ref{target.NewRef("shop", "Order", "1"), target.NewRef("shop", "Order", "2")}
	report, err := eng.RunAction(context.Background(), "ship_order", refs, nil)
	require.NoError(t, err)
	require.Len(t, report.Messages, 2)
	require.NoError(t, waitDone(t, report))

	// 发布等待跟踪器确认，结果结束时状态已落库
	for _, id := range report.Result.TaskIDs {
		st, err := eng.Repository().GetTaskState(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, state.StatusSuccess, st.Status)
	}

	seen := map[string]string{}
	for _, m := range report.Messages {
		seen[m.TaskID] = "stale"
	}
	changed, err := eng.Messages().Reconcile(context.Background(), seen)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	for id, m := range changed {
		assert.Contains(t, m.HTML, "shipped order-")
		seen[id] = m.Checksum
	}
	changed, err = eng.Messages().Reconcile(context.Background(), seen)
	require.NoError(t, err)
	assert.Empty(t, changed)

	locks, err := eng.Locks().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestEngine_OuterLockFailureReleasesLocks(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.RegisterTask(
		task.Define("shop.pack", func(tc *task.TaskContext) (any, error) { return nil, nil }),
		task.Define("shop.ship", func(tc *task.TaskContext) (any, error) { return nil, errors.New("承运商不可用") }),
	))
	require.NoError(t, eng.RegisterAction(action.MustAsAction(
		canvas.Chain(canvas.NewStep("shop.pack"), canvas.NewStep("shop.ship")), action.WithName("fulfil"))))
	require.NoError(t, eng.Start(context.Background()))

	report, err := eng.RunAction(context.Background(), "fulfil", []target.Ref{target.NewRef("shop", "Order", "1")}, nil)
	require.NoError(t, err)
	require.Error(t, waitDone(t, report))

	locks, err := eng.Locks().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestEngine_SubscribeReceivesStatusEvents(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.RegisterTask(task.Define("shop.ping", func(tc *task.TaskContext) (any, error) { return nil, nil })))
	require.NoError(t, eng.RegisterAction(action.MustAsAction(canvas.NewStep("shop.ping"))))
	require.NoError(t, eng.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := eng.Subscribe(ctx)
	require.NoError(t, err)

	report, err := eng.RunAction(context.Background(), "ping", []target.Ref{target.NewRef("shop", "Order", "1")}, nil)
	require.NoError(t, err)
	require.NoError(t, waitDone(t, report))

	seen := map[state.Status]bool{}
	timeout := time.After(5 * time.Second)
	for !seen[state.StatusSuccess] {
		select {
		case ev := <-events:
			seen[ev.Status] = true
		case <-timeout:
			t.Fatal("未收到状态事件")
		}
	}
	assert.True(t, seen[state.StatusStarted])
}

func TestEngine_RejectsBeforeStartAndUnknownAction(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.RegisterTask(task.Define("shop.ping", func(tc *task.TaskContext) (any, error) { return nil, nil })))
	require.NoError(t, eng.RegisterAction(action.MustAsAction(canvas.NewStep("shop.ping"))))

	_, err := eng.RunAction(context.Background(), "ping", []target.Ref{target.NewRef("shop", "Order", "1")}, nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	// 提交失败时锁已释放
	locks, err := eng.Locks().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, locks)

	_, err = eng.RunAction(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.ErrorIs(t, eng.ScheduleAction("job", "@daily", "missing", nil, nil), ErrActionNotFound)
}

func TestEngine_ScheduleAction(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.RegisterTask(task.Define("shop.sync", func(tc *task.TaskContext) (any, error) { return nil, nil })))
	require.NoError(t, eng.RegisterAction(action.MustAsAction(canvas.NewStep("shop.sync"))))
	require.NoError(t, eng.Start(context.Background()))

	src := func(ctx context.Context) ([]target.Object, error) {
		return []target.Object{target.NewRef("shop", "Order", "1")}, nil
	}
	require.NoError(t, eng.ScheduleAction("nightly", "0 0 3 * * *", "sync", src, nil))
	report, err := eng.Scheduler().Trigger(context.Background(), "nightly")
	require.NoError(t, err)
	require.NoError(t, waitDone(t, report))
}
