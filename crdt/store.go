// Package crdt implements a generic, delta-state CRDT for a keyed record
// store: each record is a map of named columns to values, replicas mutate
// independently, and exchanging their emitted Changes converges every
// replica to the same state regardless of delivery order or duplication.
//
// The package has no opinion on transport, persistence, record-id
// generation, or logging — it consumes an opaque K (record id) and V
// (value) and emits/accepts plain Change values. Every Store operation is
// synchronous, total, and performs no I/O or locking; a Store driven from
// more than one goroutine needs an external lock, same as any other plain
// Go map.
package crdt

import "reflect"

// Store owns one replica's view of the record set: a node identity, a
// logical clock, the live data, and an optional parent for overlay
// composition. It is not safe for concurrent use without external
// synchronization — see the package doc.
type Store[K comparable, V any] struct {
	nodeID        uint64
	clock         *LogicalClock
	data          map[K]*Record[V]
	parent        *Store[K, V]
	baseDbVersion uint64
	onApplied     func(Change[K, V])
}

// Option configures a Store at construction time.
type Option[K comparable, V any] func(*Store[K, V])

// WithParent attaches a read-only parent store for overlay composition.
// Parent chains may nest arbitrarily; constructing a cycle is a contract
// violation the core does not detect at runtime (spec's own carve-out for
// caller bugs).
func WithParent[K comparable, V any](parent *Store[K, V]) Option[K, V] {
	return func(s *Store[K, V]) { s.parent = parent }
}

// WithOnApplied registers a hook called once per Change actually applied to
// this store's own map, whether from a local mutation or an accepted
// merge. It exists for read-side projections (a secondary index, a
// persistence log) to stay current without the core depending on them; the
// hook runs synchronously, inline with the mutating call.
func WithOnApplied[K comparable, V any](fn func(Change[K, V])) Option[K, V] {
	return func(s *Store[K, V]) { s.onApplied = fn }
}

// WithPreloaded installs changes without advancing the clock past
// max(change.DbVersion) for each of them, and records that maximum as
// base_db_version: GetChangesSince never returns anything whose
// LocalDbVersion is at or below it, so reopening a store from history
// doesn't re-ship what it already shipped before restart.
func WithPreloaded[K comparable, V any](changes []Change[K, V]) Option[K, V] {
	return func(s *Store[K, V]) {
		var maxDb uint64
		for _, ch := range changes {
			s.apply(ch, true, ch.DbVersion)
			if ch.DbVersion > maxDb {
				maxDb = ch.DbVersion
			}
		}
		s.clock.advanceTo(maxDb)
		if maxDb > s.baseDbVersion {
			s.baseDbVersion = maxDb
		}
	}
}

// NewStore constructs a Store owned by nodeID. nodeID is fixed for the
// life of the store and used as the deterministic conflict tie-breaker.
func NewStore[K comparable, V any](nodeID uint64, opts ...Option[K, V]) *Store[K, V] {
	s := &Store[K, V]{
		nodeID: nodeID,
		clock:  NewLogicalClock(),
		data:   make(map[K]*Record[V]),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store[K, V]) NodeID() uint64        { return s.nodeID }
func (s *Store[K, V]) Clock() uint64         { return s.clock.Current() }
func (s *Store[K, V]) Parent() *Store[K, V]  { return s.parent }
func (s *Store[K, V]) BaseDbVersion() uint64 { return s.baseDbVersion }

func (s *Store[K, V]) notify(ch Change[K, V]) {
	if s.onApplied != nil {
		s.onApplied(ch)
	}
}

// isTombstoned answers "is record_id dead" per the overlay rule: if this
// store has its own entry for the id at all, that entry alone decides
// (live or dead); only when it has none at all does the parent's answer
// apply.
func (s *Store[K, V]) isTombstoned(id K) bool {
	if r, ok := s.data[id]; ok {
		return r.Deleted()
	}
	if s.parent != nil {
		return s.parent.isTombstoned(id)
	}
	return false
}

// InsertOrUpdate writes each (col, val) pair into record_id's local record
// and emits one Change per column actually written. A call against a
// tombstoned record id is a defensive no-op: it returns nil without
// writing any record (the clock still advances once). DeletedColumn is
// skipped silently — it is not a column an application can write through
// this path.
func (s *Store[K, V]) InsertOrUpdate(recordID K, fields map[string]V) []Change[K, V] {
	if len(fields) == 0 {
		return nil
	}

	var changes []Change[K, V]
	for col, val := range fields {
		if col == DeletedColumn {
			continue
		}

		db := s.clock.Tick()
		if s.isTombstoned(recordID) {
			return changes
		}

		rec, ok := s.data[recordID]
		if !ok {
			rec = newRecord[V]()
			s.data[recordID] = rec
		}

		prev := rec.ColumnVersions[col]
		cv := ColumnVersion{
			ColVersion:     prev.ColVersion + 1,
			DbVersion:      db,
			NodeID:         s.nodeID,
			LocalDbVersion: db,
		}
		rec.Fields[col] = val
		rec.ColumnVersions[col] = cv

		ch := Change[K, V]{
			RecordID:   recordID,
			Kind:       ColumnSet,
			ColName:    col,
			Value:      val,
			ColVersion: cv.ColVersion,
			DbVersion:  cv.DbVersion,
			NodeID:     s.nodeID,
		}
		s.notify(ch)
		changes = append(changes, ch)
	}
	return changes
}

// DeleteRecord installs the record-level tombstone for record_id and
// clears its fields. Deleting an already-deleted record is a defensive
// no-op (besides advancing the clock, which always happens).
func (s *Store[K, V]) DeleteRecord(recordID K) []Change[K, V] {
	db := s.clock.Tick()
	if s.isTombstoned(recordID) {
		return nil
	}

	rec, ok := s.data[recordID]
	if !ok {
		rec = newRecord[V]()
		s.data[recordID] = rec
	}
	rec.Fields = make(map[string]V)
	cv := ColumnVersion{ColVersion: 1, DbVersion: db, NodeID: s.nodeID, LocalDbVersion: db}
	rec.ColumnVersions[DeletedColumn] = cv

	ch := Change[K, V]{
		RecordID:   recordID,
		Kind:       RecordDelete,
		ColVersion: 1,
		DbVersion:  db,
		NodeID:     s.nodeID,
	}
	s.notify(ch)
	return []Change[K, V]{ch}
}

// MergeChanges applies a batch of incoming changes, in order, through the
// conflict resolver. It is idempotent and order-insensitive with respect
// to final state: replaying the same change, or any permutation of a
// change set, converges to the same result.
//
// ignoreParent bypasses the "already overridden locally" tombstone guard,
// for replaying a parent's deletion onto a diverged child so the deletion
// actually propagates; ordinary peer-to-peer merges should leave it false.
func (s *Store[K, V]) MergeChanges(changes []Change[K, V], ignoreParent bool) {
	for _, ch := range changes {
		local := s.clock.Update(ch.DbVersion)
		s.apply(ch, ignoreParent, local)
	}
}

// apply is the single acceptance path shared by MergeChanges and
// WithPreloaded; localDbVersion is the clock value to stamp the accepted
// entry with — the current clock after Update for a live merge, or the
// change's own db_version when installing history at construction.
func (s *Store[K, V]) apply(ch Change[K, V], ignoreParent bool, localDbVersion uint64) {
	rec, ok := s.data[ch.RecordID]
	if !ok {
		rec = newRecord[V]()
		s.data[ch.RecordID] = rec
	}

	incoming := ColumnVersion{
		ColVersion:     ch.ColVersion,
		DbVersion:      ch.DbVersion,
		NodeID:         ch.NodeID,
		LocalDbVersion: localDbVersion,
	}

	if ch.Kind == RecordDelete {
		if local, has := rec.ColumnVersions[DeletedColumn]; has && !dominatesTombstone(incoming, local) {
			return
		}
		rec.Fields = make(map[string]V)
		rec.ColumnVersions[DeletedColumn] = incoming
		s.notify(ch)
		return
	}

	if rec.Deleted() && !ignoreParent {
		return
	}

	local, hasLocal := rec.ColumnVersions[ch.ColName]
	if !Accept(hasLocal, local, incoming) {
		return
	}

	if ch.Kind == ColumnSet {
		rec.Fields[ch.ColName] = ch.Value
	} else {
		delete(rec.Fields, ch.ColName)
	}
	rec.ColumnVersions[ch.ColName] = incoming
	s.notify(ch)
}

// GetChangesSince returns every change, in this store and recursively in
// the parent chain, whose LocalDbVersion is strictly greater than v (and
// strictly greater than this store's own base_db_version, so replayed
// history is never re-emitted). The result is compressed, so a
// (record_id, col_name) pair present at more than one level appears once,
// keeping whichever entry the resolver would keep.
func (s *Store[K, V]) GetChangesSince(v uint64) []Change[K, V] {
	var all []Change[K, V]
	s.collectChangesSince(v, &all)
	return Compress(all)
}

func (s *Store[K, V]) collectChangesSince(v uint64, out *[]Change[K, V]) {
	threshold := v
	if s.baseDbVersion > threshold {
		threshold = s.baseDbVersion
	}

	for id, rec := range s.data {
		for col, meta := range rec.ColumnVersions {
			if meta.LocalDbVersion <= threshold {
				continue
			}
			if col == DeletedColumn {
				*out = append(*out, Change[K, V]{
					RecordID:   id,
					Kind:       RecordDelete,
					ColVersion: meta.ColVersion,
					DbVersion:  meta.DbVersion,
					NodeID:     meta.NodeID,
				})
				continue
			}
			val, hasVal := rec.Fields[col]
			kind := ColumnClear
			if hasVal {
				kind = ColumnSet
			}
			*out = append(*out, Change[K, V]{
				RecordID:   id,
				Kind:       kind,
				ColName:    col,
				Value:      val,
				ColVersion: meta.ColVersion,
				DbVersion:  meta.DbVersion,
				NodeID:     meta.NodeID,
			})
		}
	}

	if s.parent != nil {
		s.parent.collectChangesSince(v, out)
	}
}

// GetData returns the composed view: the parent's records (recursively),
// with this store's own live fields layered over them column by column,
// and any record tombstoned in this store removed from the result
// entirely. If
// this store has made no writes of its own, GetData is identical to its
// parent's.
func (s *Store[K, V]) GetData() map[K]map[string]V {
	out := make(map[K]map[string]V)
	s.collectData(out)
	return out
}

func (s *Store[K, V]) collectData(out map[K]map[string]V) {
	if s.parent != nil {
		s.parent.collectData(out)
	}
	for id, rec := range s.data {
		if rec.Deleted() {
			delete(out, id)
			continue
		}
		fields, ok := out[id]
		if !ok {
			fields = make(map[string]V, len(rec.Fields))
			out[id] = fields
		}
		for col, val := range rec.Fields {
			fields[col] = val
		}
	}
}

// Stats is a read-only snapshot of live/tombstoned record counts, composed
// across the parent chain the same way GetData is. It exists so ambient
// layers (storage's prometheus collector) can observe store size without
// the core taking on a metrics dependency itself.
type Stats struct {
	Records    int
	Tombstones int
}

func (s *Store[K, V]) Stats() Stats {
	var st Stats
	seen := make(map[K]bool)
	for cur := s; cur != nil; cur = cur.parent {
		for id, rec := range cur.data {
			if seen[id] {
				continue
			}
			seen[id] = true
			if rec.Deleted() {
				st.Tombstones++
			} else {
				st.Records++
			}
		}
	}
	return st
}

// Revert produces the inverse of this store's divergence from its parent:
// one change per (record_id, col) where the child differs from the parent
// (including child-only records), restoring the parent's value, a column
// clear, or a full record deletion when the parent has no such record at
// all. With no parent, the parent view is treated as empty, so Revert
// undoes everything this store has ever written.
//
// Revert only computes the changes; it does not apply them. The result is
// not guaranteed to round-trip through an ordinary MergeChanges call on an
// arbitrary peer.
func (s *Store[K, V]) Revert() []Change[K, V] {
	db := s.clock.Tick()

	var parentData map[K]map[string]V
	if s.parent != nil {
		parentData = s.parent.GetData()
	}

	var changes []Change[K, V]
	for id, rec := range s.data {
		pf, hasParent := parentData[id]

		if rec.Deleted() {
			if hasParent {
				for col, val := range pf {
					changes = append(changes, Change[K, V]{
						RecordID:   id,
						Kind:       ColumnSet,
						ColName:    col,
						Value:      val,
						ColVersion: rec.ColumnVersions[col].ColVersion + 1,
						DbVersion:  db,
						NodeID:     s.nodeID,
					})
				}
			}
			continue
		}

		for col, val := range rec.Fields {
			pv, colInParent := pf[col]
			if colInParent && reflect.DeepEqual(pv, val) {
				continue
			}
			if colInParent {
				changes = append(changes, Change[K, V]{
					RecordID:   id,
					Kind:       ColumnSet,
					ColName:    col,
					Value:      pv,
					ColVersion: rec.ColumnVersions[col].ColVersion + 1,
					DbVersion:  db,
					NodeID:     s.nodeID,
				})
			} else {
				changes = append(changes, Change[K, V]{
					RecordID:   id,
					Kind:       ColumnClear,
					ColName:    col,
					ColVersion: rec.ColumnVersions[col].ColVersion + 1,
					DbVersion:  db,
					NodeID:     s.nodeID,
				})
			}
		}

		if !hasParent {
			changes = append(changes, Change[K, V]{
				RecordID:   id,
				Kind:       RecordDelete,
				ColVersion: 1,
				DbVersion:  db,
				NodeID:     s.nodeID,
			})
		}
	}

	return changes
}
