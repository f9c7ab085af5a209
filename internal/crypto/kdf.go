package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AEAD key length in bytes (ChaCha20-Poly1305, 256-bit).
	KeySize = 32
	// SaltSize is the Argon2id salt length in bytes. Salts are unique per
	// secret so derived keys resist precomputation.
	SaltSize = 16
	// NonceSize is the AEAD nonce length in bytes (96-bit).
	NonceSize = 12
)

// Params holds the Argon2id cost parameters for password key derivation.
type Params struct {
	Time        uint32
	Memory      uint32 // KiB
	Parallelism uint8
}

// DefaultParams are the production Argon2id costs. Tests use cheaper values.
var DefaultParams = Params{
	Time:        3,
	Memory:      64 * 1024,
	Parallelism: 4,
}

// GenerateKey returns a fresh random 256-bit AEAD key.
func GenerateKey() ([]byte, error) {
	return randomBytes(KeySize, "key")
}

// GenerateSalt returns a fresh random KDF salt.
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltSize, "salt")
}

// GenerateBaseNonce returns a fresh random 96-bit base nonce.
func GenerateBaseNonce() ([]byte, error) {
	return randomBytes(NonceSize, "base nonce")
}

// DeriveKey derives a 256-bit AEAD key from a password and salt with
// Argon2id. Deterministic for a fixed (password, salt) pair.
func DeriveKey(password string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, KeySize)
}

func randomBytes(n int, what string) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating %s: %w", what, err)
	}
	return b, nil
}
