package ots

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenSource produces capability tokens. A token must carry at least 128
// bits of cryptographic randomness; it names both the metadata record and
// the blob.
type TokenSource interface {
	NewToken() (string, error)
}

// RandomTokenSource produces 32-character hex tokens from 16 bytes of
// crypto/rand output.
type RandomTokenSource struct{}

func (RandomTokenSource) NewToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// IDGenerator abstracts unique ID generation so tests are deterministic.
// Used for operation IDs in logs and reconciliation run IDs, not for tokens.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
