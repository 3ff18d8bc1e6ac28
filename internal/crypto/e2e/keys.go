// Package e2e implements the client-side end-to-end encryption primitives:
// identity key pairs, password wrapping of the private key, pairwise and
// group message ciphers, and group key envelopes.
//
// All binary values cross package boundaries as standard base64 strings so
// they can be stored and relayed as opaque text.
package e2e

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/and161185/cipherchat/internal/errs"
)

// KeySize is the length of every key handled by this package.
const KeySize = 32

const nonceSize = 24

// PublicKey is a box public key.
type PublicKey [KeySize]byte

// PrivateKey is a box private key. It must never be persisted unwrapped.
type PrivateKey [KeySize]byte

// GroupKey is a secretbox key shared by the enrolled members of a group.
type GroupKey [KeySize]byte

// Identity is a user's long-term key pair.
type Identity struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateIdentity creates a fresh box key pair.
func GenerateIdentity() (Identity, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity: %w", err)
	}
	return Identity{Public: *pub, Private: *priv}, nil
}

// String returns the base64 form of the key.
func (k PublicKey) String() string { return encode(k[:]) }

// IdentityFromPrivate rebuilds the key pair of an unwrapped private key.
func IdentityFromPrivate(priv PrivateKey) (Identity, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return Identity{}, fmt.Errorf("derive public key: %w", err)
	}
	var id Identity
	copy(id.Public[:], pub)
	id.Private = priv
	return id, nil
}

// Encode returns the base64 form of the key.
func (k PrivateKey) Encode() string { return encode(k[:]) }

// Encode returns the base64 form of the key.
func (k GroupKey) Encode() string { return encode(k[:]) }

// ParsePublicKey decodes a base64 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	k, err := decodeKey(s)
	return PublicKey(k), err
}

// ParsePrivateKey decodes a base64 private key.
func ParsePrivateKey(s string) (PrivateKey, error) {
	k, err := decodeKey(s)
	return PrivateKey(k), err
}

// ParseGroupKey decodes a base64 group key.
func ParseGroupKey(s string) (GroupKey, error) {
	k, err := decodeKey(s)
	return GroupKey(k), err
}

func encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

func decodeKey(s string) ([KeySize]byte, error) {
	var k [KeySize]byte
	b, err := decode(s)
	if err != nil {
		return k, fmt.Errorf("%w: key is not base64", errs.ErrInvalidArgument)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: key must be %d bytes, got %d", errs.ErrInvalidArgument, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func newNonce() (*[nonceSize]byte, error) {
	var n [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return nil, err
	}
	return &n, nil
}

func decodeNonce(s string) (*[nonceSize]byte, bool) {
	b, err := decode(s)
	if err != nil || len(b) != nonceSize {
		return nil, false
	}
	var n [nonceSize]byte
	copy(n[:], b)
	return &n, true
}
