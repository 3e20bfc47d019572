package storage

import (
	"testing"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/rlog"
	"github.com/drpcorg/recordcrdt/wire"
	"github.com/stretchr/testify/require"
)

func TestEngineAppendLoadSinceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, rlog.NopLogger{}, wire.ScalarCodec{})
	require.NoError(t, err)
	defer e.Close()

	changes := []crdt.Change[string, any]{
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "name", Value: "alice", ColVersion: 1, DbVersion: 1, NodeID: 1},
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "age", Value: int64(30), ColVersion: 1, DbVersion: 2, NodeID: 1},
		{RecordID: "r2", Kind: crdt.RecordDelete, ColVersion: 1, DbVersion: 3, NodeID: 1},
	}
	require.NoError(t, e.Append(changes))

	replayed, err := e.LoadSince(0)
	require.NoError(t, err)
	require.Len(t, replayed, 3)

	byRecord := map[string][]crdt.Change[string, any]{}
	for _, ch := range replayed {
		byRecord[ch.RecordID] = append(byRecord[ch.RecordID], ch)
	}
	require.Len(t, byRecord["r1"], 2)
	require.Len(t, byRecord["r2"], 1)
	require.Equal(t, crdt.RecordDelete, byRecord["r2"][0].Kind)
}

func TestEngineLoadSinceRespectsFloor(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, rlog.NopLogger{}, wire.ScalarCodec{})
	require.NoError(t, err)
	defer e.Close()

	changes := []crdt.Change[string, any]{
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "name", Value: "alice", ColVersion: 1, DbVersion: 1, NodeID: 1},
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "age", Value: int64(30), ColVersion: 1, DbVersion: 2, NodeID: 1},
	}
	require.NoError(t, e.Append(changes))

	replayed, err := e.LoadSince(1)
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	require.Equal(t, "age", replayed[0].ColName)
}

func TestEngineAppendRejectsAfterClose(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, rlog.NopLogger{}, wire.ScalarCodec{})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	err = e.Append([]crdt.Change[string, any]{
		{RecordID: "r1", Kind: crdt.ColumnSet, ColName: "name", Value: "alice", ColVersion: 1, DbVersion: 1, NodeID: 1},
	})
	require.Error(t, err)
}
