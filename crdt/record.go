package crdt

// DeletedColumn is the reserved column name that marks a record-level
// tombstone. Applications must never use it as a real column name; wire
// (and storage, which encodes through wire) rejects it with
// crdterr.ErrReservedColumn. The index package does not check for it.
const DeletedColumn = "__deleted__"

// ColumnVersion is the per-column metadata the conflict resolver compares.
// LocalDbVersion is never read by the resolver — it exists only for the
// delta extractor, which needs a monotonic local ordering independent of
// the db_version a change originally carried on its home replica.
type ColumnVersion struct {
	ColVersion     uint64
	DbVersion      uint64
	NodeID         uint64
	LocalDbVersion uint64
}

// Record is one key's state: live field values plus version metadata for
// every column ever touched, live or not. Keys of Fields are always a
// subset of keys of ColumnVersions; a column with metadata but no entry in
// Fields is a cleared column.
type Record[V any] struct {
	Fields         map[string]V
	ColumnVersions map[string]ColumnVersion
}

func newRecord[V any]() *Record[V] {
	return &Record[V]{
		Fields:         make(map[string]V),
		ColumnVersions: make(map[string]ColumnVersion),
	}
}

// Deleted reports whether this record carries the record-level tombstone.
func (r *Record[V]) Deleted() bool {
	_, ok := r.ColumnVersions[DeletedColumn]
	return ok
}
