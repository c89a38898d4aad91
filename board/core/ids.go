// ABOUTME: Identifier helpers: UUIDs for cards, ULIDs for transport endpoints and connections.
// ABOUTME: ULIDs sort by creation time which keeps relay logs readable.
package core

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewCardID returns a fresh random card identifier.
func NewCardID() string {
	return uuid.NewString()
}

// NewULID creates a new ULID using the current time and crypto/rand entropy.
func NewULID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), rand.Reader)
}
