package storage

import (
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/recordcrdt/crdt"
)

// Merger wires pebble's native merge operator to the crdt conflict
// resolver, the same way the teacher's merge adaptor wires pebble merges
// to its own per-key CRDT logic: concurrent writers to one
// (record_id, col_name) key merge via crdt.Accept, so Engine never needs
// a read-modify-write lock on that path — pebble serializes the merge
// itself.
var Merger = &pebble.Merger{
	Name: "recordcrdt.column",
	Merge: func(_, value []byte) (pebble.ValueMerger, error) {
		return &columnMerger{current: append([]byte(nil), value...)}, nil
	},
}

type columnMerger struct {
	current []byte
}

func (m *columnMerger) MergeNewer(value []byte) error {
	if winningBlob(value, m.current) {
		m.current = append([]byte(nil), value...)
	}
	return nil
}

func (m *columnMerger) MergeOlder(value []byte) error {
	if !winningBlob(m.current, value) {
		m.current = append([]byte(nil), value...)
	}
	return nil
}

func (m *columnMerger) Finish(_ bool) ([]byte, io.Closer, error) {
	return m.current, nil, nil
}

// winningBlob reports whether blob a would be accepted over blob b by the
// crdt resolver, comparing their encoded ColumnVersion headers only —
// values merge atomically with their metadata, never independently.
func winningBlob(a, b []byte) bool {
	av := decodeColumnVersion(a)
	bv := decodeColumnVersion(b)
	return crdt.Accept(true, bv, av)
}
