package crdt_test

import (
	"testing"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/stretchr/testify/assert"
)

func TestAcceptNoLocalAlwaysWins(t *testing.T) {
	remote := crdt.ColumnVersion{ColVersion: 1, DbVersion: 1, NodeID: 1}
	assert.True(t, crdt.Accept(false, crdt.ColumnVersion{}, remote))
}

func TestAcceptColVersionDominates(t *testing.T) {
	local := crdt.ColumnVersion{ColVersion: 2, DbVersion: 100, NodeID: 99}
	remote := crdt.ColumnVersion{ColVersion: 3, DbVersion: 1, NodeID: 1}
	assert.True(t, crdt.Accept(true, local, remote))
}

func TestAcceptDbVersionTiebreak(t *testing.T) {
	local := crdt.ColumnVersion{ColVersion: 1, DbVersion: 5, NodeID: 9}
	remote := crdt.ColumnVersion{ColVersion: 1, DbVersion: 6, NodeID: 1}
	assert.True(t, crdt.Accept(true, local, remote))
}

func TestAcceptNodeIDTiebreak(t *testing.T) {
	local := crdt.ColumnVersion{ColVersion: 1, DbVersion: 5, NodeID: 1}
	remote := crdt.ColumnVersion{ColVersion: 1, DbVersion: 5, NodeID: 2}
	assert.True(t, crdt.Accept(true, local, remote))
	assert.False(t, crdt.Accept(true, remote, local))
}

func TestClockTickAndUpdate(t *testing.T) {
	c := crdt.NewLogicalClock()
	assert.Equal(t, uint64(1), c.Tick())
	assert.Equal(t, uint64(2), c.Tick())
	assert.Equal(t, uint64(10), c.Update(9))
	assert.Equal(t, uint64(11), c.Tick())
}
