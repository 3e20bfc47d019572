// Package rowid generates record ids for callers of crdt.Store that pick
// string as the K type parameter. The core is explicit that id generation
// is an external collaborator, not part of its contract; rowid is that
// collaborator, not a dependency of the crdt package itself.
package rowid

import "github.com/google/uuid"

// New returns a fresh, globally unique record id.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s parses as a rowid.New()-shaped identifier. The
// storage and wire packages do not call it; callers that want to reject
// garbage ids before they reach the core can.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
