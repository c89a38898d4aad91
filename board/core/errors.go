// ABOUTME: Sentinel errors for username validation, envelope decoding and board lookups.
// ABOUTME: Callers match them with errors.Is; validation messages are shown to the user verbatim.
package core

import "errors"

var (
	// ErrUsernameRequired is returned when the trimmed username is empty.
	ErrUsernameRequired = errors.New("Username is required")

	// ErrUsernameTooShort is returned when the trimmed username has fewer than two characters.
	ErrUsernameTooShort = errors.New("Username must be at least 2 characters")

	// ErrUsernameTaken is returned when the username is already in the active set.
	ErrUsernameTaken = errors.New("Username is already taken")

	// ErrMalformedEnvelope is returned when a frame cannot be decoded into a valid envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnknownKind is returned when an envelope carries a kind this build does not know.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrUnknownColumn is returned when a column name is not discuss, done or action.
	ErrUnknownColumn = errors.New("unknown column")
)
