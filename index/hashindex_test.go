package index

import (
	"sort"
	"testing"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIndexTracksInsertsAndLookup(t *testing.T) {
	hi := New(wire.ScalarCodec{}, 16, "email")
	store := crdt.NewStore[string, any](1, crdt.WithOnApplied[string, any](hi.OnApplied))

	store.InsertOrUpdate("r1", map[string]any{"email": "a@x.com"})
	store.InsertOrUpdate("r2", map[string]any{"email": "a@x.com"})
	store.InsertOrUpdate("r3", map[string]any{"email": "b@x.com"})

	got := hi.Lookup("email", "a@x.com")
	sort.Strings(got)
	require.Equal(t, []string{"r1", "r2"}, got)

	got = hi.Lookup("email", "b@x.com")
	require.Equal(t, []string{"r3"}, got)

	require.Nil(t, hi.Lookup("email", "nobody@x.com"))
}

func TestHashIndexDropsOnColumnClearAndDelete(t *testing.T) {
	hi := New(wire.ScalarCodec{}, 16, "email")
	store := crdt.NewStore[string, any](1, crdt.WithOnApplied[string, any](hi.OnApplied))

	store.InsertOrUpdate("r1", map[string]any{"email": "a@x.com", "name": "alice"})
	require.Equal(t, []string{"r1"}, hi.Lookup("email", "a@x.com"))

	store.MergeChanges([]crdt.Change[string, any]{
		{RecordID: "r1", Kind: crdt.ColumnClear, ColName: "email", ColVersion: 2, DbVersion: 99, NodeID: 1},
	}, false)
	require.Nil(t, hi.Lookup("email", "a@x.com"))

	store.InsertOrUpdate("r2", map[string]any{"email": "c@x.com"})
	store.DeleteRecord("r2")
	require.Nil(t, hi.Lookup("email", "c@x.com"))
}

func TestHashIndexIgnoresUnindexedColumns(t *testing.T) {
	hi := New(wire.ScalarCodec{}, 16, "email")
	store := crdt.NewStore[string, any](1, crdt.WithOnApplied[string, any](hi.OnApplied))

	store.InsertOrUpdate("r1", map[string]any{"name": "alice"})
	require.Nil(t, hi.Lookup("name", "alice"))
}

func TestHashIndexRebuildFromData(t *testing.T) {
	hi := New(wire.ScalarCodec{}, 16, "email")

	data := map[string]map[string]any{
		"r1": {"email": "a@x.com"},
		"r2": {"email": "a@x.com"},
	}
	hi.Rebuild(data)

	got := hi.Lookup("email", "a@x.com")
	sort.Strings(got)
	assert.Equal(t, []string{"r1", "r2"}, got)
}
