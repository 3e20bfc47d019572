// Package storage is the persistence layer around a crdt.Store: a pebble
// WAL for historical replay plus a keyed snapshot of the live state,
// wired through pebble's native merge operator so concurrent writers to
// one column merge without an application-level lock.
package storage

import (
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/crdterr"
	"github.com/drpcorg/recordcrdt/rlog"
	"github.com/drpcorg/recordcrdt/wire"
)

// Engine wraps a *pebble.DB. Every accepted crdt.Change, local or merged,
// is appended to a pebble batch under a WAL key for historical replay and
// folded into a keyed snapshot entry holding the latest ColumnVersion plus
// value.
type Engine struct {
	db    *pebble.DB
	log   rlog.Logger
	codec wire.ValueCodec

	mu      sync.Mutex
	closed  bool
	ordinal uint32
}

// Open opens (creating if absent) a pebble store at dir, wired with the
// crdt column merger.
func Open(dir string, log rlog.Logger, codec wire.ValueCodec) (*Engine, error) {
	opts := &pebble.Options{
		Merger: Merger,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = rlog.NopLogger{}
	}
	if codec == nil {
		codec = wire.ScalarCodec{}
	}
	return &Engine{db: db, log: log, codec: codec}, nil
}

// Append persists a batch of changes: one WAL entry per change for replay,
// and a pebble Merge into each change's snapshot key so pebble's merge
// operator resolves concurrent writers the same way crdt.Accept would.
func (e *Engine) Append(changes []crdt.Change[string, any]) error {
	if len(changes) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return crdterr.ErrEngineClosed
	}

	batch := e.db.NewBatch()
	defer batch.Close()

	for _, ch := range changes {
		wireRec, err := wire.Encode([]crdt.Change[string, any]{ch}, e.codec)
		if err != nil {
			return err
		}
		e.ordinal++
		if err := batch.Set(walKey(ch.DbVersion, e.ordinal), wireRec[0], nil); err != nil {
			return err
		}

		colName := ch.ColName
		if ch.Kind == crdt.RecordDelete {
			colName = crdt.DeletedColumn
		}

		var valueBytes []byte
		hasValue := ch.Kind == crdt.ColumnSet
		if hasValue {
			valueBytes, err = e.codec.EncodeValue(ch.Value)
			if err != nil {
				return err
			}
		}

		blob := encodeColumnBlob(crdt.ColumnVersion{
			ColVersion: ch.ColVersion,
			DbVersion:  ch.DbVersion,
			NodeID:     ch.NodeID,
		}, valueBytes, hasValue)

		if err := batch.Merge(snapshotKey(ch.RecordID, colName), blob, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// LoadSince replays the WAL for changes with db_version > v, in ascending
// db_version order, compressing overlapping entries the same way the core
// would. It is meant to seed a freshly-opened crdt.Store via
// crdt.WithPreloaded, so a process restart doesn't re-emit history it
// already shipped before going down.
func (e *Engine) LoadSince(v uint64) ([]crdt.Change[string, any], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, crdterr.ErrEngineClosed
	}

	lower := walKey(v+1, 0)
	upper := walPrefixBound()
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var all []crdt.Change[string, any]
	for valid := iter.First(); valid; valid = iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		ch, err := wire.Decode([][]byte{append([]byte(nil), value...)}, e.codec)
		if err != nil {
			return nil, err
		}
		all = append(all, ch...)
	}

	return crdt.Compress(all), nil
}

// Close flushes and closes the underlying pebble database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// Metrics returns the pebble-internal metrics snapshot, used by Collector.
func (e *Engine) Metrics() *pebble.Metrics {
	return e.db.Metrics()
}
