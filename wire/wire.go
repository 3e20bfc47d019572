// Package wire is the TLV codec for crdt.Change batches, framed on the
// same ToyTLV format protocol.tlv.go implements: one outer record per
// Change, carrying one inner sub-record per present field.
//
// Record ids are always string (the only K the rest of this module wires
// up, via rowid); values are `any`, serialized through a pluggable
// ValueCodec so callers with richer V than the built-in scalar kinds can
// supply their own.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/crdterr"
	"github.com/drpcorg/recordcrdt/protocol"
)

// changeLit frames one Change. Uppercase: a change can carry an
// arbitrarily large value, so it must be able to grow past the short
// format's 255-byte body cap.
const changeLit = 'C'

// Sub-record tags within a change body. Lowercase throughout: most of
// these fields (kind, the three version integers) are a handful of bytes
// and benefit from the tiny format; the variable-length fields
// (record id, column name, value) fall back to short/long automatically when they
// don't fit, the same way the rest of this format always does.
const (
	tagKind       = 'k'
	tagRecordID   = 'i'
	tagColName    = 'n'
	tagValue      = 'v'
	tagColVersion = 'o'
	tagDbVersion  = 'd'
	tagNodeID     = 'g'
	tagFlags      = 'f'
)

// ValueCodec converts an application value to and from its wire bytes.
type ValueCodec interface {
	EncodeValue(v any) ([]byte, error)
	DecodeValue(b []byte) (any, error)
}

// Encode renders a batch of changes as one TLV record per change, in the
// same order they were given.
func Encode(changes []crdt.Change[string, any], codec ValueCodec) (protocol.Records, error) {
	recs := make(protocol.Records, 0, len(changes))
	for _, ch := range changes {
		rec, err := encodeOne(ch, codec)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Decode parses a batch of TLV records back into changes, in order.
func Decode(recs protocol.Records, codec ValueCodec) ([]crdt.Change[string, any], error) {
	out := make([]crdt.Change[string, any], 0, len(recs))
	for _, rec := range recs {
		ch, err := decodeOne(rec, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

func encodeOne(ch crdt.Change[string, any], codec ValueCodec) ([]byte, error) {
	if ch.ColName == crdt.DeletedColumn {
		return nil, crdterr.ErrReservedColumn
	}

	var body []byte
	body = protocol.Append(body, tagKind, []byte{byte(ch.Kind)})
	body = protocol.Append(body, tagRecordID, []byte(ch.RecordID))

	if ch.Kind != crdt.RecordDelete {
		body = protocol.Append(body, tagColName, []byte(ch.ColName))
	}
	if ch.Kind == crdt.ColumnSet {
		vb, err := codec.EncodeValue(ch.Value)
		if err != nil {
			return nil, err
		}
		body = protocol.Append(body, tagValue, vb)
	}

	body = protocol.Append(body, tagColVersion, encodeUint64(ch.ColVersion))
	body = protocol.Append(body, tagDbVersion, encodeUint64(ch.DbVersion))
	body = protocol.Append(body, tagNodeID, encodeUint64(ch.NodeID))
	body = protocol.Append(body, tagFlags, encodeUint64(ch.Flags))

	return protocol.Record(changeLit, body), nil
}

func decodeOne(rec []byte, codec ValueCodec) (crdt.Change[string, any], error) {
	var zero crdt.Change[string, any]

	body, _, err := protocol.TakeWary(changeLit, rec)
	if err != nil {
		return zero, fmt.Errorf("%w: %s", crdterr.ErrBadChangeWire, err)
	}

	kindBody, rest, err := protocol.TakeWary(tagKind&^protocol.CaseBit, body)
	if err != nil || len(kindBody) != 1 {
		return zero, crdterr.ErrBadChangeWire
	}
	ch := crdt.Change[string, any]{Kind: crdt.ChangeKind(kindBody[0])}

	idBody, rest, err := protocol.TakeWary(tagRecordID&^protocol.CaseBit, rest)
	if err != nil {
		return zero, crdterr.ErrBadChangeWire
	}
	ch.RecordID = string(idBody)

	if ch.Kind != crdt.RecordDelete {
		var colBody []byte
		colBody, rest, err = protocol.TakeWary(tagColName&^protocol.CaseBit, rest)
		if err != nil {
			return zero, crdterr.ErrBadChangeWire
		}
		ch.ColName = string(colBody)
	}

	if ch.Kind == crdt.ColumnSet {
		var valBody []byte
		valBody, rest, err = protocol.TakeWary(tagValue&^protocol.CaseBit, rest)
		if err != nil {
			return zero, crdterr.ErrBadChangeWire
		}
		v, err := codec.DecodeValue(valBody)
		if err != nil {
			return zero, err
		}
		ch.Value = v
	}

	var cvBody, dvBody, nBody, fBody []byte
	if cvBody, rest, err = protocol.TakeWary(tagColVersion&^protocol.CaseBit, rest); err != nil {
		return zero, crdterr.ErrBadChangeWire
	}
	if dvBody, rest, err = protocol.TakeWary(tagDbVersion&^protocol.CaseBit, rest); err != nil {
		return zero, crdterr.ErrBadChangeWire
	}
	if nBody, rest, err = protocol.TakeWary(tagNodeID&^protocol.CaseBit, rest); err != nil {
		return zero, crdterr.ErrBadChangeWire
	}
	if fBody, _, err = protocol.TakeWary(tagFlags&^protocol.CaseBit, rest); err != nil {
		return zero, crdterr.ErrBadChangeWire
	}

	ch.ColVersion, err = decodeUint64(cvBody)
	if err != nil {
		return zero, err
	}
	ch.DbVersion, err = decodeUint64(dvBody)
	if err != nil {
		return zero, err
	}
	ch.NodeID, err = decodeUint64(nBody)
	if err != nil {
		return zero, err
	}
	ch.Flags, err = decodeUint64(fBody)
	if err != nil {
		return zero, err
	}

	return ch, nil
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, crdterr.ErrBadChangeWire
	}
	return binary.BigEndian.Uint64(b), nil
}

// ScalarCodec handles the comparable scalar kinds most applications need:
// string, int64, float64, bool. Each value is tagged with a one-byte kind
// prefix so DecodeValue can recover the Go type without external schema,
// the same way the teacher's scalar LWW registers tag their TLV payloads.
type ScalarCodec struct{}

const (
	scalarString  byte = 's'
	scalarInt64   byte = 'i'
	scalarFloat64 byte = 'f'
	scalarBool    byte = 'b'
)

func (ScalarCodec) EncodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return append([]byte{scalarString}, []byte(val)...), nil
	case int64:
		buf := make([]byte, 9)
		buf[0] = scalarInt64
		binary.BigEndian.PutUint64(buf[1:], uint64(val))
		return buf, nil
	case float64:
		buf := make([]byte, 9)
		buf[0] = scalarFloat64
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(val))
		return buf, nil
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		return []byte{scalarBool, b}, nil
	default:
		return nil, fmt.Errorf("wire: unsupported scalar value type %T", v)
	}
}

func (ScalarCodec) DecodeValue(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, crdterr.ErrBadChangeWire
	}
	switch b[0] {
	case scalarString:
		return string(b[1:]), nil
	case scalarInt64:
		if len(b) != 9 {
			return nil, crdterr.ErrBadChangeWire
		}
		return int64(binary.BigEndian.Uint64(b[1:])), nil
	case scalarFloat64:
		if len(b) != 9 {
			return nil, crdterr.ErrBadChangeWire
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b[1:])), nil
	case scalarBool:
		if len(b) != 2 {
			return nil, crdterr.ErrBadChangeWire
		}
		return b[1] != 0, nil
	default:
		return nil, crdterr.ErrBadChangeWire
	}
}
