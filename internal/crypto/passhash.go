// Package crypto implements server-side login credential hashing. It is
// unrelated to the end-to-end keys in package e2e: the server verifies
// passwords, it never derives message keys from them.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// Credential is a salted Argon2id password hash.
type Credential struct {
	Hash []byte
	Salt []byte
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, b)
	return b, err
}

// NewCredential hashes password under a fresh random salt.
func NewCredential(password string) (Credential, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Hash: hash([]byte(password), salt), Salt: salt}, nil
}

// Verify reports whether password matches the credential in constant time.
func (c Credential) Verify(password string) bool {
	if len(c.Hash) == 0 || len(c.Salt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(hash([]byte(password), c.Salt), c.Hash) == 1
}

func hash(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
