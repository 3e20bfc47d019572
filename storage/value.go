package storage

import (
	"encoding/binary"

	"github.com/drpcorg/recordcrdt/crdt"
)

// A snapshot value blob: the column's version metadata, plus its value
// bytes when it has one (a column clear or record deletion carries
// metadata only).
//
//	[0:8]   col_version
//	[8:16]  db_version
//	[16:24] node_id
//	[24:32] local_db_version
//	[32]    1 if a value follows, 0 otherwise
//	[33:]   value bytes, if present
const blobHeaderLen = 33

func encodeColumnBlob(cv crdt.ColumnVersion, value []byte, hasValue bool) []byte {
	buf := make([]byte, blobHeaderLen, blobHeaderLen+len(value))
	binary.BigEndian.PutUint64(buf[0:8], cv.ColVersion)
	binary.BigEndian.PutUint64(buf[8:16], cv.DbVersion)
	binary.BigEndian.PutUint64(buf[16:24], cv.NodeID)
	binary.BigEndian.PutUint64(buf[24:32], cv.LocalDbVersion)
	if hasValue {
		buf[32] = 1
		buf = append(buf, value...)
	}
	return buf
}

func decodeColumnBlob(b []byte) (cv crdt.ColumnVersion, value []byte, hasValue bool, ok bool) {
	if len(b) < blobHeaderLen {
		return crdt.ColumnVersion{}, nil, false, false
	}
	cv.ColVersion = binary.BigEndian.Uint64(b[0:8])
	cv.DbVersion = binary.BigEndian.Uint64(b[8:16])
	cv.NodeID = binary.BigEndian.Uint64(b[16:24])
	cv.LocalDbVersion = binary.BigEndian.Uint64(b[24:32])
	hasValue = b[32] == 1
	if hasValue {
		value = b[blobHeaderLen:]
	}
	return cv, value, hasValue, true
}

func decodeColumnVersion(b []byte) crdt.ColumnVersion {
	cv, _, _, _ := decodeColumnBlob(b)
	return cv
}
