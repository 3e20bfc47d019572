// Package crdterr collects the sentinel errors for the ambient layers
// around the crdt core. The core itself declares none of these: every
// crdt.Store operation is total per its own contract, so nothing there
// ever returns an error — a contract violation there is a caller bug, not
// a detected failure.
package crdterr

import "github.com/pkg/errors"

var (
	// ErrReservedColumn is returned by wire.Encode (and so by
	// storage.Engine.Append) for a column literally named
	// crdt.DeletedColumn. The index package does not return it.
	ErrReservedColumn = errors.New("recordcrdt: column name is reserved")

	// ErrParentCycle names a parent chain referring back to itself. No
	// code in this module detects cycles or returns it; the core does not
	// check for cycles either.
	ErrParentCycle = errors.New("recordcrdt: parent chain contains a cycle")

	// ErrUnknownPeer names a peer that isn't in the connection table. No
	// code in this module returns it; netsync reports unknown addresses
	// with its own ErrAddressUnknown.
	ErrUnknownPeer = errors.New("recordcrdt: unknown peer")

	// ErrEngineClosed is returned by storage.Engine methods called after
	// Close.
	ErrEngineClosed = errors.New("recordcrdt: engine is closed")

	// ErrBadChangeWire is returned by wire.Decode when a record is
	// truncated, has an unrecognized tag, or omits a required field for
	// its change kind.
	ErrBadChangeWire = errors.New("recordcrdt: malformed change record")
)
