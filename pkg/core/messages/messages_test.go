package messages

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/core/cache"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/storage/sqlite"
	"github.com/LENAX/async-actions/pkg/storage/sqlstore"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestChecksum_StableAndSensitive(t *testing.T) {
	st := &state.TaskState{TaskID: "t1", Status: state.StatusStarted}
	base := Checksum(st, 1)
	assert.Equal(t, base, Checksum(st, 1))
	assert.Len(t, base, 16)

	// 备注数量变化
	assert.NotEqual(t, base, Checksum(st, 2))

	// 状态变化
	st2 := *st
	st2.Status = state.StatusSuccess
	assert.NotEqual(t, base, Checksum(&st2, 1))

	// RETRY 只看最后一行 traceback，不看备注数量
	retry := &state.TaskState{TaskID: "t1", Status: state.StatusRetry, Traceback: "Traceback\nLockOccupied: a"}
	rc := Checksum(retry, 0)
	assert.Equal(t, rc, Checksum(retry, 5))
	retry.Traceback = "Traceback\nLockOccupied: b"
	assert.NotEqual(t, rc, Checksum(retry, 0))
	retry.Traceback = "other header\nLockOccupied: b"
	assert.Equal(t, Checksum(retry, 0), Checksum(&state.TaskState{Status: state.StatusRetry, Traceback: "LockOccupied: b"}, 0))
}

func TestLevelAndStatusTag(t *testing.T) {
	assert.Equal(t, state.LevelError, LevelFor(state.StatusFailure))
	assert.Equal(t, state.LevelError, LevelFor(state.StatusRevoked))
	assert.Equal(t, state.LevelInfo, LevelFor(state.StatusRetry))
	assert.Equal(t, state.LevelInfo, LevelFor(state.StatusSuccess))

	assert.Equal(t, StatusTagWaiting, StatusTagFor(state.StatusPending))
	assert.Equal(t, StatusTagRunning, StatusTagFor(state.StatusStarted))
	assert.Equal(t, StatusTagRunning, StatusTagFor(state.StatusRetry))
	assert.Equal(t, StatusTagReady, StatusTagFor(state.StatusSuccess))
	assert.Equal(t, StatusTagReady, StatusTagFor(state.StatusFailure))
}

func TestRenderer_FormatsByDebugFlag(t *testing.T) {
	st := &state.TaskState{
		TaskID:     "t1",
		TaskName:   "shop.tasks.ship_order",
		Status:     state.StatusFailure,
		Traceback:  "Traceback (most recent call last):\n  task x\nboom <script>",
		TargetType: "shop.Order",
		TargetID:   "7",
	}
	notes := []*state.Note{{Level: state.LevelWarning, Text: "carrier slow"}}

	r, err := NewRenderer(false, nil, 0)
	require.NoError(t, err)
	html, err := r.Render(st, notes, "abc")
	require.NoError(t, err)

	doc := parse(t, html)
	root := doc.Find("div.task-message")
	require.Equal(t, 1, root.Length())
	assert.True(t, root.HasClass(StatusTagReady))
	assert.Equal(t, "t1", root.AttrOr("data-task-id", ""))
	assert.Equal(t, "abc", root.AttrOr("data-checksum", ""))
	assert.Equal(t, "ship_order", doc.Find(".task-name").AttrOr("title", ""))
	assert.Equal(t, "Ship order", doc.Find(".task-name").Text())
	assert.Equal(t, "boom <script>", doc.Find(".task-traceback").Text())
	assert.Equal(t, "shop.Order(7)", doc.Find(".task-target").Text())
	assert.Equal(t, "carrier slow", doc.Find("li.note-warning").Text())
	assert.NotContains(t, html, "<script>")

	dbg, err := NewRenderer(true, nil, 0)
	require.NoError(t, err)
	html, err = dbg.Render(st, nil, "abc")
	require.NoError(t, err)
	doc = parse(t, html)
	assert.Equal(t, "shop.tasks.ship_order", doc.Find(".task-name").AttrOr("title", ""))
	assert.Contains(t, doc.Find(".task-traceback").Text(), "Traceback (most recent call last):")
	assert.Equal(t, 0, doc.Find(".task-notes").Length())
}

func TestRenderer_CachesByTaskAndChecksum(t *testing.T) {
	c := cache.NewMemoryCache(0)
	defer c.Close()
	r, err := NewRenderer(false, c, 0)
	require.NoError(t, err)

	st := &state.TaskState{TaskID: "t1", TaskName: "shop.ship", Status: state.StatusStarted}
	first, err := r.Render(st, nil, "c1")
	require.NoError(t, err)

	// 相同指纹命中缓存，即便状态对象已变化
	st.Status = state.StatusSuccess
	again, err := r.Render(st, nil, "c1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	fresh, err := r.Render(st, nil, "c2")
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
	assert.Equal(t, 2, c.Len())
}

type fixture struct {
	store   *sqlstore.Store
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rc, err := cache.NewRistrettoCache(1 << 20)
	require.NoError(t, err)
	t.Cleanup(rc.Close)
	r, err := NewRenderer(false, rc, 0)
	require.NoError(t, err)
	return &fixture{store: store, service: NewService(store, r, nil)}
}

func (f *fixture) create(t *testing.T, ids ...string) []*state.TaskState {
	t.Helper()
	states := make([]*state.TaskState, len(ids))
	for i, id := range ids {
		states[i] = &state.TaskState{TaskID: id, TaskName: "shop.ship", TargetType: "shop.Order", TargetID: id}
	}
	require.NoError(t, f.store.CreateTaskStates(context.Background(), states))
	return states
}

func TestService_ReconcileReturnsOnlyChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	states := f.create(t, "a", "b")

	msgs, err := f.service.BuildAll(ctx, states)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, StatusTagWaiting, msgs[0].StatusTag)

	seen := map[string]string{"a": msgs[0].Checksum, "b": msgs[1].Checksum, "missing": "x"}
	changed, err := f.service.Reconcile(ctx, seen)
	require.NoError(t, err)
	assert.Empty(t, changed)

	// a 增加备注，b 状态变化
	_, err = f.store.AddNote(ctx, states[0].ID, state.LevelInfo, "packing")
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateTaskStatus(ctx, "b", state.StatusFailure, "Traceback\nboom"))

	changed, err = f.service.Reconcile(ctx, seen)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Contains(t, changed["a"].HTML, "packing")
	assert.Equal(t, state.LevelError, changed["b"].Level)
	assert.Equal(t, StatusTagReady, changed["b"].StatusTag)
	assert.Equal(t, "boom", parse(t, changed["b"].HTML).Find(".task-traceback").Text())

	// 使用新指纹再次对比
	seen["a"], seen["b"] = changed["a"].Checksum, changed["b"].Checksum
	changed, err = f.service.Reconcile(ctx, seen)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestService_Get(t *testing.T) {
	f := newFixture(t)
	f.create(t, "a")

	msg, err := f.service.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", msg.TaskID)
	assert.Equal(t, state.LevelInfo, msg.Level)

	_, err = f.service.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, state.ErrTaskStateNotFound)
}
