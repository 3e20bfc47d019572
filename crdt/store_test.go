package crdt_test

import (
	"testing"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sync[K comparable, V any](a, b *crdt.Store[K, V]) {
	ca := a.GetChangesSince(0)
	cb := b.GetChangesSince(0)
	a.MergeChanges(cb, false)
	b.MergeChanges(ca, false)
}

func TestBasicConcurrentInsert(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n2 := crdt.NewStore[string, string](2)

	n1.InsertOrUpdate("r", map[string]string{"tag": "T1"})
	n2.InsertOrUpdate("r", map[string]string{"tag": "T2"})

	sync(n1, n2)

	assert.Equal(t, n1.GetData(), n2.GetData())
	assert.Equal(t, "T2", n1.GetData()["r"]["tag"])
}

func TestConcurrentUpdatesSameColumn(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n2 := crdt.NewStore[string, string](2)

	n1.InsertOrUpdate("r", map[string]string{"tag": "init"})
	sync(n1, n2)

	n1.InsertOrUpdate("r", map[string]string{"tag": "A"})
	n2.InsertOrUpdate("r", map[string]string{"tag": "B"})
	sync(n1, n2)

	assert.Equal(t, "B", n1.GetData()["r"]["tag"])
	assert.Equal(t, "B", n2.GetData()["r"]["tag"])
}

func TestDeleteThenReinsertElsewhere(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n2 := crdt.NewStore[string, string](2)

	n1.InsertOrUpdate("r", map[string]string{"tag": "v"})
	n1.DeleteRecord("r")
	sync(n1, n2)

	n2.InsertOrUpdate("r", map[string]string{"tag": "late"})

	_, present := n1.GetData()["r"]
	assert.False(t, present)
	_, present = n2.GetData()["r"]
	assert.False(t, present)
}

func TestOfflineDivergenceThenSync(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n2 := crdt.NewStore[string, string](2)

	n1.InsertOrUpdate("r1", map[string]string{"a": "1"})
	n2.InsertOrUpdate("r2", map[string]string{"b": "2"})

	c1 := n1.GetChangesSince(0)
	c2 := n2.GetChangesSince(0)
	n1.MergeChanges(c2, false)
	n2.MergeChanges(c1, false)

	assert.Equal(t, n1.GetData(), n2.GetData())
	assert.Contains(t, n1.GetData(), "r1")
	assert.Contains(t, n1.GetData(), "r2")
}

func TestConflictingUpdateCounts(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n2 := crdt.NewStore[string, string](2)

	n1.InsertOrUpdate("r", map[string]string{"tag": "v0"})
	sync(n1, n2)

	n1.InsertOrUpdate("r", map[string]string{"tag": "v1"})
	n1.InsertOrUpdate("r", map[string]string{"tag": "v2"})
	n2.InsertOrUpdate("r", map[string]string{"tag": "only-once"})

	sync(n1, n2)

	assert.Equal(t, "v2", n1.GetData()["r"]["tag"])
	assert.Equal(t, "v2", n2.GetData()["r"]["tag"])
}

func TestCompressionWithDeletion(t *testing.T) {
	changes := []crdt.Change[string, string]{
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "col1", Value: "v1", ColVersion: 1, DbVersion: 1, NodeID: 1},
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "col2", Value: "v2", ColVersion: 1, DbVersion: 2, NodeID: 1},
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "col1", Value: "v3", ColVersion: 2, DbVersion: 3, NodeID: 1},
		{RecordID: "r1", Kind: crdt.ColumnClear, ColName: "col2", ColVersion: 2, DbVersion: 4, NodeID: 1},
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "col3", Value: "v4", ColVersion: 1, DbVersion: 5, NodeID: 1},
	}

	out := crdt.Compress(changes)
	require.Len(t, out, 3)

	byCol := make(map[string]crdt.Change[string, string])
	for _, ch := range out {
		byCol[ch.ColName] = ch
	}

	assert.Equal(t, "v3", byCol["col1"].Value)
	assert.Equal(t, crdt.ColumnClear, byCol["col2"].Kind)
	assert.Equal(t, "v4", byCol["col3"].Value)
}

func TestParentOverlayChildOverride(t *testing.T) {
	parent := crdt.NewStore[string, string](1)
	parent.InsertOrUpdate("r", map[string]string{"parent_field": "pv"})

	child := crdt.NewStore[string, string](2, crdt.WithParent(parent))
	child.InsertOrUpdate("r", map[string]string{"child_field": "cv"})

	assert.Equal(t, map[string]string{"parent_field": "pv", "child_field": "cv"}, child.GetData()["r"])
	assert.Equal(t, map[string]string{"parent_field": "pv"}, parent.GetData()["r"])
}

func TestParentDeletionPropagatesWithIgnoreParent(t *testing.T) {
	parent := crdt.NewStore[string, string](1)
	parent.InsertOrUpdate("r", map[string]string{"f": "v"})

	child := crdt.NewStore[string, string](2, crdt.WithParent(parent))
	require.Equal(t, map[string]string{"f": "v"}, child.GetData()["r"])

	del := parent.DeleteRecord("r")
	child.MergeChanges(del, true)

	_, present := child.GetData()["r"]
	assert.False(t, present)
}

func TestParentTransparency(t *testing.T) {
	parent := crdt.NewStore[string, string](1)
	parent.InsertOrUpdate("r", map[string]string{"f": "v"})

	child := crdt.NewStore[string, string](2, crdt.WithParent(parent))

	assert.Equal(t, parent.GetData(), child.GetData())
}

func TestTombstonePermanence(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n1.InsertOrUpdate("r", map[string]string{"f": "v"})
	n1.DeleteRecord("r")

	n1.InsertOrUpdate("r", map[string]string{"f": "again"})

	_, present := n1.GetData()["r"]
	assert.False(t, present)
}

func TestClockMonotonicity(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	prev := n1.Clock()
	for i := 0; i < 5; i++ {
		n1.InsertOrUpdate("r", map[string]string{"f": "v"})
		next := n1.Clock()
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
}

func TestIdempotentMerge(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n1.InsertOrUpdate("r", map[string]string{"f": "v"})
	changes := n1.GetChangesSince(0)

	n2 := crdt.NewStore[string, string](2)
	n2.MergeChanges(changes, false)
	n2.MergeChanges(changes, false)

	assert.Equal(t, n1.GetData(), n2.GetData())
}

func TestCommutativeMerge(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n1.InsertOrUpdate("r1", map[string]string{"a": "1"})
	n1.InsertOrUpdate("r2", map[string]string{"b": "2"})
	n1.DeleteRecord("r1")
	changes := n1.GetChangesSince(0)

	forward := append([]crdt.Change[string, string]{}, changes...)
	backward := make([]crdt.Change[string, string], len(changes))
	for i, ch := range changes {
		backward[len(changes)-1-i] = ch
	}

	a := crdt.NewStore[string, string](2)
	a.MergeChanges(forward, false)

	b := crdt.NewStore[string, string](3)
	b.MergeChanges(backward, false)

	assert.Equal(t, a.GetData(), b.GetData())
}

func TestDeltaCompleteness(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	v0 := n1.Clock()
	n1.InsertOrUpdate("r1", map[string]string{"a": "1"})
	n1.InsertOrUpdate("r2", map[string]string{"b": "2"})

	sp := crdt.NewStore[string, string](1)
	sp.MergeChanges(n1.GetChangesSince(v0), false)

	assert.Equal(t, n1.GetData(), sp.GetData())
}

func TestPreloadedChangesSuppressReemission(t *testing.T) {
	n1 := crdt.NewStore[string, string](1)
	n1.InsertOrUpdate("r", map[string]string{"f": "v"})
	history := n1.GetChangesSince(0)

	reopened := crdt.NewStore[string, string](1, crdt.WithPreloaded(history))

	assert.Empty(t, reopened.GetChangesSince(0))
	assert.Equal(t, n1.GetData(), reopened.GetData())
}

func TestOnAppliedHookFiresForLocalAndMergedChanges(t *testing.T) {
	var seen []crdt.Change[string, string]
	n1 := crdt.NewStore[string, string](1, crdt.WithOnApplied(func(ch crdt.Change[string, string]) {
		seen = append(seen, ch)
	}))

	n1.InsertOrUpdate("r", map[string]string{"f": "v"})
	require.Len(t, seen, 1)

	n2 := crdt.NewStore[string, string](2)
	n2.InsertOrUpdate("r2", map[string]string{"g": "w"})
	n1.MergeChanges(n2.GetChangesSince(0), false)
	assert.Len(t, seen, 2)
}

func TestRevertRestoresParentView(t *testing.T) {
	parent := crdt.NewStore[string, string](1)
	parent.InsertOrUpdate("r", map[string]string{"f": "pv"})

	child := crdt.NewStore[string, string](2, crdt.WithParent(parent))
	child.InsertOrUpdate("r", map[string]string{"f": "cv", "extra": "x"})
	child.InsertOrUpdate("only-child", map[string]string{"g": "y"})

	revertChanges := child.Revert()
	require.NotEmpty(t, revertChanges)

	self := crdt.NewStore[string, string](2)
	self.MergeChanges(child.GetChangesSince(0), false)
	self.MergeChanges(revertChanges, true)

	assert.Equal(t, parent.GetData()["r"], self.GetData()["r"])
	_, present := self.GetData()["only-child"]
	assert.False(t, present)
}
