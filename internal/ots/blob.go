package ots

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored blob for reconciliation.
type BlobInfo struct {
	Token   string
	Size    int64
	ModTime time.Time
}

// BlobStore holds encrypted blobs keyed by token, with a lifecycle
// independent of the metadata store. All operations stream; no implementation
// may require a whole blob in memory.
type BlobStore interface {
	// Put stores the bytes read from r as the blob for token, atomically:
	// a partially written blob is never observable under its token.
	// Returns the number of ciphertext bytes stored.
	Put(ctx context.Context, token string, r io.Reader) (int64, error)

	// Open returns a reader over the blob from offset 0. The caller must
	// close it.
	Open(ctx context.Context, token string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, token string) error

	// Exists reports whether a blob is stored for token.
	Exists(ctx context.Context, token string) (bool, error)

	// List enumerates all stored blobs with their sizes and write times.
	List(ctx context.Context) ([]BlobInfo, error)

	// ValidateSetup verifies that the backing storage is accessible.
	ValidateSetup() error
}
