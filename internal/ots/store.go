package ots

import "context"

// MetadataStore is the token-keyed record store with TTL expiry and an atomic
// consume primitive. It is the single synchronization point for the
// download-exactly-once guarantee; no in-process locking supplements it.
//
// Lookup methods return (nil, nil) when no live record exists: absent,
// expired, and already-consumed are indistinguishable to callers. When the
// store itself cannot be reached, every method fails closed with
// ErrStoreUnavailable (wrapped); an unreachable store never reports success.
type MetadataStore interface {
	// Put inserts or overwrites a record and sets its expiry to
	// now + record.TTLSeconds.
	Put(ctx context.Context, record *FileRecord) error

	// Get returns the live record for token, or (nil, nil) if none exists.
	Get(ctx context.Context, token string) (*FileRecord, error)

	// IncrementAttempt atomically adds one to the record's attempt counter
	// in a single store round trip and returns the new count. Returns
	// (0, nil) if no live record exists.
	IncrementAttempt(ctx context.Context, token string) (int, error)

	// ResetAttempts sets the record's attempt counter back to zero. A no-op
	// if no live record exists.
	ResetAttempts(ctx context.Context, token string) error

	// AtomicConsume removes the record and returns it. Under N concurrent
	// callers racing on one token, exactly one receives the record; the
	// others receive (nil, nil), indistinguishable from "never existed".
	// A detected conflict is resolved as already-consumed, never retried.
	AtomicConsume(ctx context.Context, token string) (*FileRecord, error)

	// Delete removes the record unconditionally. A no-op if absent.
	Delete(ctx context.Context, token string) error

	// Exists reports whether a live record exists for token.
	Exists(ctx context.Context, token string) (bool, error)

	// List returns the tokens of all live records. Reconciliation and
	// diagnostics only.
	List(ctx context.Context) ([]string, error)

	// IncrementCounter adds delta to a named usage counter. Counters live
	// outside the record lifecycle and are never expired by TTL.
	IncrementCounter(ctx context.Context, name string, delta int64) (int64, error)

	// GetCounter returns the value of a named usage counter (0 if unset).
	GetCounter(ctx context.Context, name string) (int64, error)

	// ResetCounters sets the given counters to zero.
	ResetCounters(ctx context.Context, names []string) error

	// Close releases the underlying connection.
	Close() error
}

// Usage counter names recorded by the service layer.
const (
	CounterUploads              = "uploads"
	CounterDownloads            = "downloads"
	CounterDeletions            = "deletions"
	CounterProtectedDownloads   = "protected_downloads"
	CounterUnprotectedDownloads = "unprotected_downloads"
)

// CounterNames lists every counter the service maintains, in the order they
// are reported.
var CounterNames = []string{
	CounterUploads,
	CounterDownloads,
	CounterDeletions,
	CounterProtectedDownloads,
	CounterUnprotectedDownloads,
}
