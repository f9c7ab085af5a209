package ots

import "fmt"

// FileRecord is the metadata for one active secret. The token doubles as the
// primary key and the blob reference; possession of the token is possession
// of the secret.
//
// Key material is exactly one of RawKey (unprotected secrets, random key
// stored directly) or KDFSalt (protected secrets, key re-derived from the
// password on download). Never both, never neither.
type FileRecord struct {
	Token            string
	BlobRef          string
	OriginalFilename string
	ContentType      string
	Protected        bool
	PasswordHash     string // bcrypt hash of the gate password, set iff Protected
	RawKey           []byte // 32 bytes, random-key mode
	KDFSalt          []byte // 16 bytes, password-derived-key mode
	BaseNonce        []byte // 12 bytes, per-file random AEAD base nonce
	AttemptCount     int
	TTLSeconds       int64
}

// Validate checks the structural invariants a record must satisfy before it
// is persisted or acted on. Records failing these checks are treated as
// malformed by the reconciliation sweeps.
func (r *FileRecord) Validate() error {
	if r.Token == "" {
		return fmt.Errorf("record has no token")
	}
	if r.BlobRef == "" {
		return fmt.Errorf("record %s has no blob reference", r.Token)
	}
	if len(r.BaseNonce) != 12 {
		return fmt.Errorf("record %s has invalid base nonce length %d", r.Token, len(r.BaseNonce))
	}
	hasRaw := len(r.RawKey) > 0
	hasSalt := len(r.KDFSalt) > 0
	if hasRaw == hasSalt {
		return fmt.Errorf("record %s must have exactly one of raw key or KDF salt", r.Token)
	}
	if r.Protected && r.PasswordHash == "" {
		return fmt.Errorf("protected record %s has no password hash", r.Token)
	}
	if r.Protected && !hasSalt {
		return fmt.Errorf("protected record %s must use a derived key", r.Token)
	}
	if !r.Protected && !hasRaw {
		return fmt.Errorf("unprotected record %s must use a raw key", r.Token)
	}
	if r.AttemptCount < 0 {
		return fmt.Errorf("record %s has negative attempt count", r.Token)
	}
	if r.TTLSeconds <= 0 {
		return fmt.Errorf("record %s has non-positive TTL", r.Token)
	}
	return nil
}
