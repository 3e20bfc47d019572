package crdt

// Compress collapses an arbitrary, possibly redundant vector of changes to
// one entry per (record_id, col_name) — with a record deletion treated as
// its own key distinct from any column — keeping whichever entry the
// resolver ordering (Accept) would keep. Applying the compressed sequence
// to any replica yields the same post-state as applying the original one.
//
// Output order is the first-seen order of each surviving key; it carries
// no other guarantee, since the resolver only breaks ties, it does not
// impose a total order on unrelated keys.
func Compress[K comparable, V any](changes []Change[K, V]) []Change[K, V] {
	best := make(map[changeKey[K]]Change[K, V], len(changes))
	order := make([]changeKey[K], 0, len(changes))

	for _, ch := range changes {
		k := ch.key()
		cur, ok := best[k]
		if !ok {
			best[k] = ch
			order = append(order, k)
			continue
		}
		if winsOver(ch, cur) {
			best[k] = ch
		}
	}

	out := make([]Change[K, V], 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// winsOver reports whether a dominates b under the resolver ordering,
// treating two competing record deletions with the narrower tombstone
// tie-break and everything else with the full three-key resolver.
func winsOver[K comparable, V any](a, b Change[K, V]) bool {
	av := ColumnVersion{ColVersion: a.ColVersion, DbVersion: a.DbVersion, NodeID: a.NodeID}
	bv := ColumnVersion{ColVersion: b.ColVersion, DbVersion: b.DbVersion, NodeID: b.NodeID}
	if a.Kind == RecordDelete && b.Kind == RecordDelete {
		return dominatesTombstone(av, bv)
	}
	return Accept(true, bv, av)
}
