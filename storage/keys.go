package storage

import "encoding/binary"

// Pebble key layout. An implementation detail, not part of any public
// contract — it may change across versions.
//
//   - WAL entry:  'L' + db_version (8 bytes BE) + intra-version ordinal (4 bytes BE)
//   - Snapshot:   'O' + record_id length (4 bytes BE) + record_id + col_name
//
// The snapshot key is length-prefixed rather than delimiter-joined (the
// teacher's OKey uses a fixed-width id) because record ids here are
// variable-length strings that could themselves contain any byte.
const (
	walPrefix      byte = 'L'
	snapshotPrefix byte = 'O'
)

func walKey(dbVersion uint64, ordinal uint32) []byte {
	buf := make([]byte, 1+8+4)
	buf[0] = walPrefix
	binary.BigEndian.PutUint64(buf[1:9], dbVersion)
	binary.BigEndian.PutUint32(buf[9:13], ordinal)
	return buf
}

// walPrefixBound returns the exclusive upper bound of the WAL keyspace,
// for full-range iteration.
func walPrefixBound() []byte {
	return []byte{walPrefix + 1}
}

func snapshotKey(recordID, colName string) []byte {
	buf := make([]byte, 0, 1+4+len(recordID)+len(colName))
	buf = append(buf, snapshotPrefix)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(recordID)))
	buf = append(buf, recordID...)
	buf = append(buf, colName...)
	return buf
}

func snapshotRecordPrefix(recordID string) []byte {
	buf := make([]byte, 0, 1+4+len(recordID))
	buf = append(buf, snapshotPrefix)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(recordID)))
	buf = append(buf, recordID...)
	return buf
}

func parseSnapshotKey(key []byte) (recordID, colName string, ok bool) {
	if len(key) < 5 || key[0] != snapshotPrefix {
		return "", "", false
	}
	idLen := binary.BigEndian.Uint32(key[1:5])
	if uint32(len(key)-5) < idLen {
		return "", "", false
	}
	recordID = string(key[5 : 5+idLen])
	colName = string(key[5+idLen:])
	return recordID, colName, true
}
