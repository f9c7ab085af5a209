package ots

import (
	"errors"
	"fmt"
)

// Sentinel errors for the user-visible failure taxonomy. Callers match these
// with errors.Is; WrongPasswordError additionally carries the remaining
// attempt budget and is matched with errors.As.
var (
	// ErrNotFound covers token absent, expired, or already consumed. The
	// three cases are deliberately indistinguishable.
	ErrNotFound = errors.New("secret not found")

	// ErrLockedOut means the record's attempt budget is exhausted. The
	// record and blob remain in place; exhaustion never destroys a secret.
	ErrLockedOut = errors.New("secret locked out")

	// ErrPasswordRequired is returned when the unprotected fast path is used
	// on a password-gated record.
	ErrPasswordRequired = errors.New("secret requires a password")

	// ErrStoreUnavailable means the metadata store could not be reached.
	// Every dependent operation fails closed with this error.
	ErrStoreUnavailable = errors.New("metadata store unavailable")

	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("file exceeds maximum size")
)

// WrongPasswordError reports a failed password submission along with how many
// attempts remain before lockout.
type WrongPasswordError struct {
	Remaining int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong password (%d attempts remaining)", e.Remaining)
}
