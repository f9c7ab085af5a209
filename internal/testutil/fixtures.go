package testutil

import (
	"testing"

	"ots-go/internal/blob"
	"ots-go/internal/crypto"
	"ots-go/internal/ots"
	"ots-go/internal/store"
)

// FastKDF keeps password-derived-key tests quick. Never use outside tests.
var FastKDF = crypto.Params{Time: 1, Memory: 1024, Parallelism: 1}

// NewTestStore creates an in-memory metadata store on the given clock,
// closed automatically when the test completes.
func NewTestStore(t *testing.T, clock ots.Clock) ots.MetadataStore {
	t.Helper()
	s := store.NewMemoryStore(clock)
	t.Cleanup(func() { s.Close() })
	return s
}

// NewTestBlobStore creates an in-memory blob store on the given clock.
func NewTestBlobStore(t *testing.T, clock ots.Clock) ots.BlobStore {
	t.Helper()
	return blob.NewMemoryBlobStore(clock)
}

// TestService bundles a Service with the stores behind it so tests can
// observe and manipulate state directly.
type TestService struct {
	Service *ots.Service
	Store   ots.MetadataStore
	Blobs   ots.BlobStore
	Clock   *StubClock
	Tokens  *StubTokenSource
}

// NewTestService wires a Service onto in-memory stores, a stub clock and a
// deterministic token source. Overrides default to FastKDF, a 1 hour TTL,
// 5 retries and no size limit; callers adjust params before use.
func NewTestService(t *testing.T, params ots.ServiceParams) *TestService {
	t.Helper()

	clock := FixedClock()
	tokens := NewStubTokenSource()
	st := NewTestStore(t, clock)
	bl := NewTestBlobStore(t, clock)

	if params.KDF == (crypto.Params{}) {
		params.KDF = FastKDF
	}
	if params.TTLSeconds == 0 {
		params.TTLSeconds = 3600
	}

	svc := ots.NewService(st, bl, ots.NewNopLogger(), clock, tokens, params)
	return &TestService{Service: svc, Store: st, Blobs: bl, Clock: clock, Tokens: tokens}
}
