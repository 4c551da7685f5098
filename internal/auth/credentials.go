// Package auth implements the credential service: salt generation, PBKDF2
// password hashing, and constant-time verification.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// SaltSize is the length in bytes of a freshly generated salt.
const SaltSize = 32

// KeyLength is the length in bytes of the derived hash, before hex encoding.
const KeyLength = 32

// DefaultIterations is the PBKDF2 iteration count used unless overridden by
// configuration.
const DefaultIterations = 100_000

// Hasher derives and verifies password hashes with a configurable iteration
// count, so a deployment can raise it over time without touching callers.
type Hasher struct {
	Iterations int
}

// NewHasher returns a Hasher using DefaultIterations.
func NewHasher() *Hasher {
	return &Hasher{Iterations: DefaultIterations}
}

// NewSalt returns SaltSize bytes of cryptographically random data.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Hash derives a hex-encoded PBKDF2-HMAC-SHA256 digest from password and
// salt, suitable for storage.
func (h *Hasher) Hash(password string, salt []byte) string {
	iterations := h.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, KeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// Verify reports whether password, salted and hashed with the same
// iteration count, equals expectedHash. The comparison is constant-time.
func (h *Hasher) Verify(password string, salt []byte, expectedHash string) bool {
	got := h.Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expectedHash)) == 1
}
