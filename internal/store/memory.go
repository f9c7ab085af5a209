package store

import (
	"context"
	"sync"
	"time"

	"ots-go/internal/ots"
)

// MemoryStore is an in-memory implementation of ots.MetadataStore with the
// same TTL and consume semantics as the SQLite backend. Useful for tests.
// Safe for concurrent use.
type MemoryStore struct {
	clock ots.Clock

	mu       sync.Mutex
	records  map[string]memoryRecord
	counters map[string]int64
}

type memoryRecord struct {
	rec       ots.FileRecord
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clock ots.Clock) *MemoryStore {
	if clock == nil {
		clock = ots.RealClock{}
	}
	return &MemoryStore{
		clock:    clock,
		records:  make(map[string]memoryRecord),
		counters: make(map[string]int64),
	}
}

// live returns the stored entry for token if it has not expired.
// Caller must hold mu.
func (m *MemoryStore) live(token string) (memoryRecord, bool) {
	entry, ok := m.records[token]
	if !ok {
		return memoryRecord{}, false
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		delete(m.records, token)
		return memoryRecord{}, false
	}
	return entry, true
}

func (m *MemoryStore) Put(_ context.Context, record *ots.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.Token] = memoryRecord{
		rec:       *record,
		expiresAt: m.clock.Now().Add(time.Duration(record.TTLSeconds) * time.Second),
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*ots.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(token)
	if !ok {
		return nil, nil
	}
	rec := entry.rec
	return &rec, nil
}

func (m *MemoryStore) IncrementAttempt(_ context.Context, token string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(token)
	if !ok {
		return 0, nil
	}
	entry.rec.AttemptCount++
	m.records[token] = entry
	return entry.rec.AttemptCount, nil
}

func (m *MemoryStore) ResetAttempts(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(token)
	if !ok {
		return nil
	}
	entry.rec.AttemptCount = 0
	m.records[token] = entry
	return nil
}

func (m *MemoryStore) AtomicConsume(_ context.Context, token string) (*ots.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(token)
	if !ok {
		return nil, nil
	}
	delete(m.records, token)
	rec := entry.rec
	return &rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, token)
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(token)
	return ok, nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tokens []string
	for token := range m.records {
		if _, ok := m.live(token); ok {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (m *MemoryStore) IncrementCounter(_ context.Context, name string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name] += delta
	return m.counters[name], nil
}

func (m *MemoryStore) GetCounter(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counters[name], nil
}

func (m *MemoryStore) ResetCounters(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range names {
		m.counters[name] = 0
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Compile-time check that MemoryStore implements ots.MetadataStore
var _ ots.MetadataStore = (*MemoryStore)(nil)
