package crdt

// Accept is the conflict resolver: a pure function of two ColumnVersion
// triples, kept deliberately first-class so alternate orderings (e.g. LWW
// by wall-clock) could be swapped in without touching Store.
//
// hasLocal reports whether any local metadata exists at all for this
// column; when it is false, remote always wins (the tombstone guard that
// can still block it lives in Store.apply, not here).
//
// When hasLocal is true, remote is accepted iff, in strict lexicographic
// order of the triple (col_version, db_version, node_id), remote is
// greater than local.
func Accept(hasLocal bool, local, remote ColumnVersion) bool {
	if !hasLocal {
		return true
	}
	if remote.ColVersion != local.ColVersion {
		return remote.ColVersion > local.ColVersion
	}
	if remote.DbVersion != local.DbVersion {
		return remote.DbVersion > local.DbVersion
	}
	return remote.NodeID > local.NodeID
}

// dominatesTombstone is the narrower two-key tie-break used only between
// two competing record-level deletions: (col_version, node_id), no
// db_version. A record can only ever be deleted once per replica, so
// db_version carries no extra information there.
func dominatesTombstone(incoming, local ColumnVersion) bool {
	if incoming.ColVersion != local.ColVersion {
		return incoming.ColVersion > local.ColVersion
	}
	return incoming.NodeID > local.NodeID
}
