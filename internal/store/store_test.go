package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ots-go/internal/ots"
)

// fakeClock is a manually advanced clock shared by the store tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testRecord(token string) *ots.FileRecord {
	return &ots.FileRecord{
		Token:            token,
		BlobRef:          token,
		OriginalFilename: "notes.txt",
		ContentType:      "text/plain",
		RawKey:           make([]byte, 32),
		BaseNonce:        make([]byte, 12),
		TTLSeconds:       3600,
	}
}

// storeUnderTest builds each backend against the same fake clock so the
// whole suite runs against both implementations.
func storesUnderTest(t *testing.T) map[string]struct {
	store ots.MetadataStore
	clock *fakeClock
} {
	t.Helper()

	sqliteClock := newFakeClock()
	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), &Options{Clock: sqliteClock})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	memClock := newFakeClock()
	return map[string]struct {
		store ots.MetadataStore
		clock *fakeClock
	}{
		"sqlite": {store: sqliteStore, clock: sqliteClock},
		"memory": {store: NewMemoryStore(memClock), clock: memClock},
	}
}

func TestStore_PutGet(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord("tok-putget")
			rec.Protected = true
			rec.PasswordHash = "$2a$10$fakehash"
			rec.RawKey = nil
			rec.KDFSalt = make([]byte, 16)
			rec.AttemptCount = 2

			if err := tc.store.Put(ctx, rec); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, err := tc.store.Get(ctx, rec.Token)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got == nil {
				t.Fatal("Get() returned nil for stored record")
			}
			if got.Token != rec.Token || got.BlobRef != rec.BlobRef ||
				got.OriginalFilename != rec.OriginalFilename || got.ContentType != rec.ContentType {
				t.Errorf("Get() = %+v, want %+v", got, rec)
			}
			if !got.Protected || got.PasswordHash != rec.PasswordHash {
				t.Errorf("protection fields not round-tripped: %+v", got)
			}
			if len(got.KDFSalt) != 16 || len(got.RawKey) != 0 {
				t.Errorf("key material not round-tripped: raw=%d salt=%d", len(got.RawKey), len(got.KDFSalt))
			}
			if got.AttemptCount != 2 {
				t.Errorf("AttemptCount = %d, want 2", got.AttemptCount)
			}
		})
	}
}

func TestStore_GetAbsent(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			got, err := tc.store.Get(context.Background(), "no-such-token")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != nil {
				t.Errorf("Get() = %+v, want nil", got)
			}
		})
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord("tok-expiry")
			rec.TTLSeconds = 60

			if err := tc.store.Put(ctx, rec); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			tc.clock.Advance(59 * time.Second)
			if ok, _ := tc.store.Exists(ctx, rec.Token); !ok {
				t.Fatal("record expired before its TTL")
			}

			tc.clock.Advance(2 * time.Second)
			if ok, _ := tc.store.Exists(ctx, rec.Token); ok {
				t.Error("record still live past its TTL")
			}
			got, err := tc.store.Get(ctx, rec.Token)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != nil {
				t.Error("Get() returned an expired record")
			}
			if got, _ := tc.store.AtomicConsume(ctx, rec.Token); got != nil {
				t.Error("AtomicConsume() returned an expired record")
			}
		})
	}
}

func TestStore_IncrementAttempt(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord("tok-attempts")
			if err := tc.store.Put(ctx, rec); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			for want := 1; want <= 3; want++ {
				got, err := tc.store.IncrementAttempt(ctx, rec.Token)
				if err != nil {
					t.Fatalf("IncrementAttempt() error = %v", err)
				}
				if got != want {
					t.Errorf("IncrementAttempt() = %d, want %d", got, want)
				}
			}

			if err := tc.store.ResetAttempts(ctx, rec.Token); err != nil {
				t.Fatalf("ResetAttempts() error = %v", err)
			}
			got, err := tc.store.Get(ctx, rec.Token)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.AttemptCount != 0 {
				t.Errorf("AttemptCount after reset = %d, want 0", got.AttemptCount)
			}

			// Absent token increments nothing and reports zero.
			n, err := tc.store.IncrementAttempt(ctx, "no-such-token")
			if err != nil {
				t.Fatalf("IncrementAttempt(absent) error = %v", err)
			}
			if n != 0 {
				t.Errorf("IncrementAttempt(absent) = %d, want 0", n)
			}
		})
	}
}

func TestStore_AtomicConsume(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord("tok-consume")
			if err := tc.store.Put(ctx, rec); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, err := tc.store.AtomicConsume(ctx, rec.Token)
			if err != nil {
				t.Fatalf("AtomicConsume() error = %v", err)
			}
			if got == nil || got.Token != rec.Token {
				t.Fatalf("AtomicConsume() = %+v, want record", got)
			}

			// Second consume must observe absence, not an error.
			got, err = tc.store.AtomicConsume(ctx, rec.Token)
			if err != nil {
				t.Fatalf("second AtomicConsume() error = %v", err)
			}
			if got != nil {
				t.Error("second AtomicConsume() returned the record again")
			}
		})
	}
}

func TestStore_AtomicConsume_ExactlyOneWinner(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord("tok-race")
			if err := tc.store.Put(ctx, rec); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			const callers = 10
			var wg sync.WaitGroup
			results := make([]*ots.FileRecord, callers)
			errs := make([]error, callers)

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = tc.store.AtomicConsume(ctx, rec.Token)
				}(i)
			}
			wg.Wait()

			winners := 0
			for i := 0; i < callers; i++ {
				if errs[i] != nil {
					t.Errorf("caller %d error = %v", i, errs[i])
				}
				if results[i] != nil {
					winners++
				}
			}
			if winners != 1 {
				t.Errorf("winners = %d, want exactly 1", winners)
			}
		})
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, token := range []string{"tok-a", "tok-b", "tok-c"} {
				if err := tc.store.Put(ctx, testRecord(token)); err != nil {
					t.Fatalf("Put(%s) error = %v", token, err)
				}
			}

			if err := tc.store.Delete(ctx, "tok-b"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			// Deleting an absent token is not an error.
			if err := tc.store.Delete(ctx, "tok-b"); err != nil {
				t.Fatalf("repeat Delete() error = %v", err)
			}

			tokens, err := tc.store.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(tokens) != 2 {
				t.Fatalf("List() = %v, want 2 tokens", tokens)
			}
			for _, token := range tokens {
				if token == "tok-b" {
					t.Error("deleted token still listed")
				}
			}
		})
	}
}

func TestStore_Counters(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if v, err := tc.store.GetCounter(ctx, "downloads"); err != nil || v != 0 {
				t.Fatalf("GetCounter(unset) = %d, %v; want 0, nil", v, err)
			}

			if v, err := tc.store.IncrementCounter(ctx, "downloads", 1); err != nil || v != 1 {
				t.Fatalf("IncrementCounter() = %d, %v; want 1, nil", v, err)
			}
			if v, err := tc.store.IncrementCounter(ctx, "downloads", 2); err != nil || v != 3 {
				t.Fatalf("IncrementCounter() = %d, %v; want 3, nil", v, err)
			}

			if err := tc.store.ResetCounters(ctx, []string{"downloads", "uploads"}); err != nil {
				t.Fatalf("ResetCounters() error = %v", err)
			}
			if v, _ := tc.store.GetCounter(ctx, "downloads"); v != 0 {
				t.Errorf("counter after reset = %d, want 0", v)
			}
		})
	}
}

func TestStore_CountersSurviveRecordExpiry(t *testing.T) {
	for name, tc := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := tc.store.IncrementCounter(ctx, "uploads", 5); err != nil {
				t.Fatalf("IncrementCounter() error = %v", err)
			}

			tc.clock.Advance(1000 * time.Hour)
			if _, err := tc.store.List(ctx); err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if v, _ := tc.store.GetCounter(ctx, "uploads"); v != 5 {
				t.Errorf("counter = %d, want 5", v)
			}
		})
	}
}

func TestSQLiteStore_FailsClosedWhenUnreachable(t *testing.T) {
	clock := newFakeClock()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), &Options{Clock: clock})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	ctx := context.Background()
	if err := s.Put(ctx, testRecord("tok")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Pull the database out from under the store. Every operation must now
	// report unavailability, never absence.
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	clock.Advance(time.Hour) // past the cached health probe

	if _, err := s.Get(ctx, "tok"); !errors.Is(err, ots.ErrStoreUnavailable) {
		t.Errorf("Get() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := s.AtomicConsume(ctx, "tok"); !errors.Is(err, ots.ErrStoreUnavailable) {
		t.Errorf("AtomicConsume() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := s.IncrementAttempt(ctx, "tok"); !errors.Is(err, ots.ErrStoreUnavailable) {
		t.Errorf("IncrementAttempt() error = %v, want ErrStoreUnavailable", err)
	}
}
