// Package index is a read-side projection over a crdt.Store: a secondary
// hash index mapping a column's value to the set of record ids currently
// holding it, kept current by subscribing to the store's applied-change
// hook. It never participates in conflict resolution or convergence.
package index

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/wire"
	lru "github.com/hashicorp/golang-lru/v2"
)

type bucketKey struct {
	col  string
	hash uint64
}

// HashIndex indexes one or more columns of a string-keyed crdt.Store,
// bucketing by xxhash64 of the column's wire-encoded value, adapted from
// the teacher's index_manager.go hash-index bucketing: there, a hash
// bucket holds the set of object ids sharing a field value; here, a
// bucket holds the set of record ids sharing a column value.
//
// buckets is the authoritative, unbounded index: every (col, hash) ever
// observed stays until its last holder is removed, so Lookup stays sound
// and complete against a full scan. cache is a bounded LRU purely
// accelerating repeat Lookup calls; entries are dropped on the bucket's
// next mutation rather than trusted to stay fresh, so its eviction policy
// never affects correctness.
type HashIndex struct {
	codec   wire.ValueCodec
	columns map[string]bool

	mu      sync.Mutex
	buckets map[bucketKey]map[string]struct{}
	cache   *lru.Cache[bucketKey, []string]
}

// New builds a HashIndex over the given columns (an empty set indexes
// none; call IndexColumn to add more before subscribing). codec defaults
// to wire.ScalarCodec{} when nil. cacheSize bounds the Lookup
// acceleration cache; 0 disables it.
func New(codec wire.ValueCodec, cacheSize int, columns ...string) *HashIndex {
	if codec == nil {
		codec = wire.ScalarCodec{}
	}
	cols := make(map[string]bool, len(columns))
	for _, c := range columns {
		cols[c] = true
	}
	var cache *lru.Cache[bucketKey, []string]
	if cacheSize > 0 {
		cache, _ = lru.New[bucketKey, []string](cacheSize)
	}
	return &HashIndex{
		codec:   codec,
		columns: cols,
		buckets: make(map[bucketKey]map[string]struct{}),
		cache:   cache,
	}
}

// IndexColumn adds col to the set of indexed columns. It does not
// retroactively index existing data; call Rebuild afterward if the store
// already holds records for col.
func (h *HashIndex) IndexColumn(col string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.columns[col] = true
}

func (h *HashIndex) hashOf(col string, val any) (uint64, bool) {
	if !h.columns[col] {
		return 0, false
	}
	enc, err := h.codec.EncodeValue(val)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(enc), true
}

// OnApplied is meant to be wired as the store's crdt.WithOnApplied hook:
// crdt.WithOnApplied[string, any](hashIndex.OnApplied). It keeps the
// index current without the core store knowing this package exists.
func (h *HashIndex) OnApplied(ch crdt.Change[string, any]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ch.Kind {
	case crdt.ColumnSet:
		if !h.columns[ch.ColName] {
			return
		}
		h.removeFromAllBuckets(ch.ColName, ch.RecordID)
		key, ok := h.hashOf(ch.ColName, ch.Value)
		if !ok {
			return
		}
		h.addLocked(bucketKey{ch.ColName, key}, ch.RecordID)

	case crdt.ColumnClear:
		if !h.columns[ch.ColName] {
			return
		}
		h.removeFromAllBuckets(ch.ColName, ch.RecordID)

	case crdt.RecordDelete:
		for col := range h.columns {
			h.removeFromAllBuckets(col, ch.RecordID)
		}
	}
}

func (h *HashIndex) addLocked(key bucketKey, recordID string) {
	bucket, ok := h.buckets[key]
	if !ok {
		bucket = make(map[string]struct{})
		h.buckets[key] = bucket
	}
	bucket[recordID] = struct{}{}
	if h.cache != nil {
		h.cache.Remove(key)
	}
}

// removeFromAllBuckets drops recordID from every bucket under col. A
// column clear/record delete doesn't carry the old value, so the stale
// membership is found by scanning this column's buckets rather than
// recomputing a hash we no longer have the input for.
func (h *HashIndex) removeFromAllBuckets(col string, recordID string) {
	for key, bucket := range h.buckets {
		if key.col != col {
			continue
		}
		if _, ok := bucket[recordID]; !ok {
			continue
		}
		delete(bucket, recordID)
		if len(bucket) == 0 {
			delete(h.buckets, key)
		}
		if h.cache != nil {
			h.cache.Remove(key)
		}
	}
}

// Lookup returns the record ids currently holding val in col, or nil if
// col isn't indexed or no record holds that value.
func (h *HashIndex) Lookup(col string, val any) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	key, ok := h.hashOf(col, val)
	if !ok {
		return nil
	}
	bk := bucketKey{col, key}
	if h.cache != nil {
		if ids, ok := h.cache.Get(bk); ok {
			return ids
		}
	}

	bucket := h.buckets[bk]
	if len(bucket) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	if h.cache != nil {
		h.cache.Add(bk, ids)
	}
	return ids
}

// Rebuild discards all current buckets and reindexes from data, as
// returned by crdt.Store.GetData(). Use it to recover from a restart or
// after IndexColumn widens the indexed set.
func (h *HashIndex) Rebuild(data map[string]map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buckets = make(map[bucketKey]map[string]struct{})
	if h.cache != nil {
		h.cache.Purge()
	}
	for recordID, fields := range data {
		for col, val := range fields {
			if !h.columns[col] {
				continue
			}
			enc, err := h.codec.EncodeValue(val)
			if err != nil {
				continue
			}
			key := bucketKey{col, xxhash.Sum64(enc)}
			h.addLocked(key, recordID)
		}
	}
}

func (key bucketKey) String() string {
	return fmt.Sprintf("%s:%d", key.col, key.hash)
}
