package canvas

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func names(steps []*Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func TestLeaves_FlatteningCompleteness(t *testing.T) {
	wf := Chain(
		NewStep("a"),
		Group(NewStep("b"), Chain(NewStep("c"), NewStep("d"))),
		Chord([]Node{NewStep("e"), NewStep("f")}, Chain(NewStep("g"), NewStep("h"))),
	)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, names(Leaves(wf)))
}

func TestChain_FlattensNestedSequences(t *testing.T) {
	wf := Chain(Chain(NewStep("a"), NewStep("b")), NewStep("c"))
	assert.Len(t, wf.Tasks, 3)
	assert.Equal(t, `a() | b() | c()`, wf.String())
}

func TestString(t *testing.T) {
	s := NewStep("orders.ship", 1, "x").WithKwargs(map[string]any{"force": true, "a": 2})
	assert.Equal(t, `orders.ship(1, "x", a=2, force=true)`, s.String())

	wf := Chord([]Node{NewStep("a"), NewStep("b")}, NewStep("c"))
	assert.Equal(t, "chord([a(), b()], c())", wf.String())
	assert.Equal(t, "group([a(), b()])", Group(NewStep("a"), NewStep("b")).String())
}

func TestClone_IsDeep(t *testing.T) {
	orig := Chain(NewStep("a").WithKwargs(map[string]any{"k": 1}), NewStep("b"))
	orig.OnError = []*Step{NewStep("cleanup")}

	cp := Clone(orig).(*Sequence)
	cp.Tasks[0].(*Step).Kwargs["k"] = 2
	cp.Tasks[1].(*Step).SetHeader("h", "v")
	cp.OnError[0].Name = "other"

	assert.Equal(t, 1, orig.Tasks[0].(*Step).Kwargs["k"])
	assert.Nil(t, orig.Tasks[1].(*Step).Headers)
	assert.Equal(t, "cleanup", orig.OnError[0].Name)
}

func TestMergeKwargs_SkipsControlSteps(t *testing.T) {
	ctrl := NewStep("ctrl")
	ctrl.Control = true
	wf := Chain(ctrl, Group(NewStep("a"), NewStep("b")))

	MergeKwargs(wf, map[string]any{"reason": "bulk"})
	for _, s := range TaskLeaves(wf) {
		assert.Equal(t, "bulk", s.Kwargs["reason"])
	}
	assert.Nil(t, ctrl.Kwargs)
	assert.Len(t, TaskLeaves(wf), 2)
}

func TestFreeze_AssignsIDsOnce(t *testing.T) {
	a := NewStep("a")
	a.OnError = []*Step{NewStep("errback")}
	wf := Chain(a, NewStep("b"))
	wf.Tasks[1].(*Step).ID = "fixed"

	Freeze(wf, counter())
	assert.NotEmpty(t, wf.ID)
	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, a.OnError[0].ID)
	assert.Equal(t, "fixed", wf.Tasks[1].NodeID())

	before := a.ID
	Freeze(wf, counter())
	assert.Equal(t, before, a.ID)
}

func TestBuildDAG_Edges(t *testing.T) {
	join := NewStep("join")
	wf := Chain(
		NewStep("first"),
		Chord([]Node{NewStep("b1"), NewStep("b2")}, join),
		NewStep("last"),
	)
	Freeze(wf, counter())

	g, err := BuildDAG(wf)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Size())

	roots := g.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, wf.Tasks[0].NodeID(), roots[0])

	parents, err := g.Parents(join.ID)
	require.NoError(t, err)
	sort.Strings(parents)
	chord := wf.Tasks[1].(*ForkJoin)
	expected := []string{chord.Tasks[0].NodeID(), chord.Tasks[1].NodeID()}
	sort.Strings(expected)
	assert.Equal(t, expected, parents)
}

func TestBuildDAG_DistinctLeavesInGroup(t *testing.T) {
	wf := Group(NewStep("a"), NewStep("b"), NewStep("c"))
	Freeze(wf, counter())

	g, err := BuildDAG(wf)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Size())
	assert.Len(t, g.Roots(), 3)

	h1, err := (&vertex{step: wf.Tasks[0].(*Step)}).Hash()
	require.NoError(t, err)
	h2, err := (&vertex{step: wf.Tasks[1].(*Step)}).Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestBuildDAG_RejectsDuplicatesAndMissingIDs(t *testing.T) {
	a := NewStep("a")
	a.ID = "same"
	b := NewStep("b")
	b.ID = "same"
	_, err := BuildDAG(Group(a, b))
	assert.Error(t, err)

	_, err = BuildDAG(Group(NewStep("c")))
	assert.Error(t, err)
}
