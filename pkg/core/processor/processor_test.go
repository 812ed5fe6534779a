package processor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/core/canvas"
	"github.com/LENAX/async-actions/pkg/core/executor"
	"github.com/LENAX/async-actions/pkg/core/lock"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/target"
	"github.com/LENAX/async-actions/pkg/core/task"
	"github.com/LENAX/async-actions/pkg/storage/sqlite"
	"github.com/LENAX/async-actions/pkg/storage/sqlstore"
)

type fixture struct {
	store    *sqlstore.Store
	locks    *lock.Manager
	runtime  *task.Runtime
	registry *executor.Registry
	exec     *executor.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithWorkers(t, 4)
}

func newFixtureWithWorkers(t *testing.T, workers int) *fixture {
	t.Helper()
	store, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "processor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locks := lock.NewManager(store, nil)
	targets := target.NewRegistry()
	rt := task.NewRuntime(store, locks, targets, task.RetryPolicy{Delay: time.Millisecond, MaxRetries: 3}, nil)
	reg := executor.NewRegistry()
	require.NoError(t, rt.RegisterControlTasks(reg))

	tracker := state.NewTracker(store, nil)
	exec, err := executor.NewExecutor(reg, executor.ReporterFunc(tracker.Apply), workers, nil)
	require.NoError(t, err)
	exec.OnAbort(rt.Abort)
	t.Cleanup(func() { _ = exec.Shutdown(context.Background()) })

	return &fixture{store: store, locks: locks, runtime: rt, registry: reg, exec: exec}
}

func (f *fixture) define(t *testing.T, name string, fn task.Func) {
	t.Helper()
	require.NoError(t, f.runtime.Register(f.registry, task.Define(name, fn)))
}

func (f *fixture) processor(tmpl canvas.Node, objs []target.Object, data map[string]any, mode LockMode) *Processor {
	return New(Deps{
		Locks:    f.locks,
		States:   f.store,
		Results:  f.store,
		Executor: f.exec,
		Namer:    f.runtime,
	}, tmpl, objs, data, mode)
}

func orders(ids ...string) []target.Object {
	out := make([]target.Object, len(ids))
	for i, id := range ids {
		out[i] = target.NewRef("shop", "Order", id)
	}
	return out
}

func ok(tc *task.TaskContext) (any, error) { return tc.TaskID, nil }

func waitResult(t *testing.T, r *executor.AsyncResult) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-r.Done():
	case <-ctx.Done():
		t.Fatal("等待工作流结束超时")
	}
	return r.Err()
}

func (f *fixture) statuses(t *testing.T, states []*state.TaskState) []state.Status {
	t.Helper()
	out := make([]state.Status, len(states))
	for i, s := range states {
		got, err := f.store.GetTaskState(context.Background(), s.TaskID)
		require.NoError(t, err)
		out[i] = got.Status
	}
	return out
}

func (f *fixture) lockCount(t *testing.T) int {
	t.Helper()
	locks, err := f.locks.List(context.Background())
	require.NoError(t, err)
	return len(locks)
}

func TestParseLockMode(t *testing.T) {
	for in, want := range map[string]LockMode{"": LockAuto, "auto": LockAuto, "Inner": LockInner, " outer ": LockOuter} {
		got, err := ParseLockMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLockMode("both")
	assert.Error(t, err)
}

func TestProcessor_SingleTaskInnerLocksSkipsLockedObjects(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.ship", func(tc *task.TaskContext) (any, error) {
		if tc.GetParam("carrier") != "ups" {
			return nil, errors.New("缺少 carrier 参数")
		}
		return nil, nil
	})

	objs := orders("1", "2", "3")
	_, err := f.locks.AcquireFor(context.Background(), objs[1])
	require.NoError(t, err)

	p := f.processor(canvas.NewStep("shop.ship"), objs, map[string]any{"carrier": "ups"}, LockAuto)

	locked, err := p.LockedObjects(context.Background())
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, objs[1], locked[0])

	sigs, err := p.Signatures(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	step := sigs[0].(*canvas.Step)
	assert.True(t, task.LocksHeld(step.Headers))
	assert.Equal(t, lock.ObjectLockIDs(objs[0]), task.LockIDs(step.Headers))
	assert.Equal(t, "ups", step.Kwargs["carrier"])

	// 提交前已经持有锁
	held, err := f.locks.Held(context.Background(), lock.Checksum(objs[0].TargetRef()))
	require.NoError(t, err)
	assert.True(t, held)

	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "Ship", states[0].VerboseName)
	assert.Equal(t, "shop.Order", states[0].TargetType)
	assert.Equal(t, "1", states[0].TargetID)
	assert.NotZero(t, states[0].ID)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	assert.Equal(t, []state.Status{state.StatusSuccess, state.StatusSuccess}, f.statuses(t, states))
	// 只剩预先占用的锁
	assert.Equal(t, 1, f.lockCount(t))

	gr, err := f.store.GetGroupResult(context.Background(), res.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, res.TaskIDs, gr.TaskIDs)
}

func TestProcessor_OuterLockChain(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.pack", ok)
	f.define(t, "shop.ship", ok)

	tmpl := canvas.Chain(canvas.NewStep("shop.pack"), canvas.NewStep("shop.ship"))
	p := f.processor(tmpl, orders("1", "2"), nil, LockAuto)

	sigs, err := p.Signatures(context.Background())
	require.NoError(t, err)
	seq := sigs[0].(*canvas.Sequence)
	require.Len(t, seq.Tasks, 4)
	assert.Equal(t, task.AcquireLocksTaskName, seq.Tasks[0].(*canvas.Step).Name)
	assert.Equal(t, task.ReleaseLocksTaskName, seq.Tasks[3].(*canvas.Step).Name)
	require.Len(t, seq.OnError, 1)
	assert.Equal(t, task.ReleaseLocksOnErrorTaskName, seq.OnError[0].Name)

	// 控制任务不创建状态
	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 4)

	locked, err := p.LockedObjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, locked)
	assert.Equal(t, 0, f.lockCount(t))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))
	for _, s := range f.statuses(t, states) {
		assert.Equal(t, state.StatusSuccess, s)
	}
	assert.Equal(t, 0, f.lockCount(t))
}

func TestProcessor_OuterLockFailureReleasesViaErrback(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.pack", func(tc *task.TaskContext) (any, error) {
		return nil, errors.New("缺货")
	})
	f.define(t, "shop.ship", ok)

	tmpl := canvas.Chain(canvas.NewStep("shop.pack"), canvas.NewStep("shop.ship"))
	p := f.processor(tmpl, orders("1"), nil, LockOuter)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Error(t, waitResult(t, res))

	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []state.Status{state.StatusFailure, state.StatusRevoked}, f.statuses(t, states))

	failed, err := f.store.GetTaskState(context.Background(), states[0].TaskID)
	require.NoError(t, err)
	assert.Equal(t, "缺货", failed.LastTracebackLine())
	assert.Equal(t, 0, f.lockCount(t))
}

func TestProcessor_OuterLockGroupReleasesAfterAllBranches(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.notify", ok)
	f.define(t, "shop.audit", func(tc *task.TaskContext) (any, error) {
		return nil, errors.New("审计失败")
	})

	tmpl := canvas.Group(canvas.NewStep("shop.notify"), canvas.NewStep("shop.audit"))
	p := f.processor(tmpl, orders("1"), nil, LockAuto)

	sigs, err := p.Signatures(context.Background())
	require.NoError(t, err)
	seq := sigs[0].(*canvas.Sequence)
	require.Len(t, seq.Tasks, 2)
	fj := seq.Tasks[1].(*canvas.ForkJoin)
	assert.Equal(t, task.ReleaseLocksTaskName, fj.Join.(*canvas.Step).Name)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	// 整体结果取 join（释放锁）的结果，分支失败只体现在分支状态上
	assert.NoError(t, waitResult(t, res))

	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []state.Status{state.StatusSuccess, state.StatusFailure}, f.statuses(t, states))
	failed := 0
	for _, r := range res.Results() {
		if r.Status == state.StatusFailure {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, f.lockCount(t))
}

func TestProcessor_OuterLockChordAppendsReleaseToJoin(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.a", ok)
	f.define(t, "shop.b", ok)
	f.define(t, "shop.merge", func(tc *task.TaskContext) (any, error) {
		return len(tc.Request.ParentResults), nil
	})

	tmpl := canvas.Chord([]canvas.Node{canvas.NewStep("shop.a"), canvas.NewStep("shop.b")}, canvas.NewStep("shop.merge"))
	p := f.processor(tmpl, orders("9"), nil, LockAuto)

	sigs, err := p.Signatures(context.Background())
	require.NoError(t, err)
	fj := sigs[0].(*canvas.Sequence).Tasks[1].(*canvas.ForkJoin)
	join := fj.Join.(*canvas.Sequence)
	assert.Equal(t, "shop.merge", join.Tasks[0].(*canvas.Step).Name)
	assert.Equal(t, task.ReleaseLocksTaskName, join.Tasks[1].(*canvas.Step).Name)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))
	assert.Equal(t, 0, f.lockCount(t))
}

func TestProcessor_InnerLockCompositeSetsPerTaskHeaders(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.pack", ok)
	f.define(t, "shop.ship", ok)

	tmpl := canvas.Chain(canvas.NewStep("shop.pack"), canvas.NewStep("shop.ship"))
	objs := orders("5")
	p := f.processor(tmpl, objs, nil, LockInner)

	sigs, err := p.Signatures(context.Background())
	require.NoError(t, err)
	for _, leaf := range canvas.Leaves(sigs[0]) {
		assert.False(t, leaf.Control)
		assert.False(t, task.LocksHeld(leaf.Headers))
		assert.Equal(t, lock.ObjectLockIDs(objs[0]), task.LockIDs(leaf.Headers))
	}
	assert.Equal(t, 0, f.lockCount(t))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))
	assert.Equal(t, 0, f.lockCount(t))
}

func TestProcessor_SubmitFailureReleasesLocksAndFailsStates(t *testing.T) {
	f := newFixture(t)
	objs := orders("1")
	p := f.processor(canvas.NewStep("shop.unregistered"), objs, nil, LockAuto)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, f.lockCount(t))

	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []state.Status{state.StatusFailure}, f.statuses(t, states))
}

func TestProcessor_MemoizedAndSingleSubmit(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.ship", ok)
	p := f.processor(canvas.NewStep("shop.ship"), orders("1"), nil, LockAuto)

	a, err := p.Signatures(context.Background())
	require.NoError(t, err)
	b, err := p.Signatures(context.Background())
	require.NoError(t, err)
	assert.Same(t, a[0], b[0])

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	_, err = p.Run(context.Background())
	assert.Error(t, err)
}

func TestProcessor_AllObjectsLocked(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.ship", ok)
	objs := orders("1")
	_, err := f.locks.AcquireFor(context.Background(), objs...)
	require.NoError(t, err)

	p := f.processor(canvas.NewStep("shop.ship"), objs, nil, LockAuto)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)

	wf, err := p.Workflow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, wf.Tasks)
}

func TestProcessor_ShutdownReleasesInnerLocks(t *testing.T) {
	f := newFixtureWithWorkers(t, 1)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f.define(t, "shop.wait", func(tc *task.TaskContext) (any, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	})

	p := f.processor(canvas.NewStep("shop.wait"), orders("1", "2"), nil, LockInner)
	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, 2, f.lockCount(t))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("任务未开始执行")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdown := make(chan error, 1)
	go func() { shutdown <- f.exec.Shutdown(ctx) }()

	// 排队的对象被取消并释放提交前获取的锁
	require.Eventually(t, func() bool { return f.lockCount(t) == 1 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-shutdown)
	assert.Error(t, waitResult(t, res))

	got := f.statuses(t, states)
	assert.ElementsMatch(t, []state.Status{state.StatusSuccess, state.StatusFailure}, got)
	assert.Equal(t, 0, f.lockCount(t))
}

func TestProcessor_ErrbackUsesFailedTaskState(t *testing.T) {
	f := newFixture(t)
	f.define(t, "shop.ship", func(tc *task.TaskContext) (any, error) {
		return nil, errors.New("仓库缺货")
	})
	f.define(t, "shop.on_ship_error", func(tc *task.TaskContext) (any, error) {
		return nil, tc.AddNoteWithLevel(state.LevelError, "发货失败: "+tc.Request.Failure.Err.Error())
	})

	tmpl := canvas.NewStep("shop.ship")
	tmpl.OnError = []*canvas.Step{canvas.NewStep("shop.on_ship_error")}
	p := f.processor(tmpl, orders("1"), nil, LockInner)
	states, err := p.AllTaskStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Error(t, waitResult(t, res))

	sigs, err := p.Signatures(context.Background())
	require.NoError(t, err)
	eb, ok := res.Get(sigs[0].(*canvas.Step).OnError[0].ID)
	require.True(t, ok)
	assert.Equal(t, state.StatusSuccess, eb.Status)
	notes, err := f.store.ListNotes(context.Background(), states[0].ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "发货失败: 仓库缺货", notes[0].Text)
	assert.Equal(t, state.LevelError, notes[0].Level)
	assert.Equal(t, 0, f.lockCount(t))
}
