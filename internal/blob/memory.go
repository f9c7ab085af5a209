package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"ots-go/internal/ots"
)

// MemoryBlobStore is an in-memory implementation of the BlobStore interface,
// useful for testing. Safe for concurrent use.
type MemoryBlobStore struct {
	clock ots.Clock

	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data    []byte
	modTime time.Time
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore(clock ots.Clock) *MemoryBlobStore {
	if clock == nil {
		clock = ots.RealClock{}
	}
	return &MemoryBlobStore{
		clock: clock,
		blobs: make(map[string]memoryBlob),
	}
}

func (m *MemoryBlobStore) Put(_ context.Context, token string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[token] = memoryBlob{data: data, modTime: m.clock.Now()}
	return int64(len(data)), nil
}

func (m *MemoryBlobStore) Open(_ context.Context, token string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[token]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", token)
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

func (m *MemoryBlobStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, token)
	return nil
}

func (m *MemoryBlobStore) Exists(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[token]
	return ok, nil
}

func (m *MemoryBlobStore) List(_ context.Context) ([]ots.BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ots.BlobInfo, 0, len(m.blobs))
	for token, blob := range m.blobs {
		infos = append(infos, ots.BlobInfo{
			Token:   token,
			Size:    int64(len(blob.data)),
			ModTime: blob.modTime,
		})
	}
	return infos, nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryBlobStore) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryBlobStore implements ots.BlobStore
var _ ots.BlobStore = (*MemoryBlobStore)(nil)
