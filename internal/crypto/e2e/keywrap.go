package e2e

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/and161185/cipherchat/internal/errs"
)

// scrypt parameters; changing them breaks every stored wrapped key.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	wrapKeyLen   = 32
	wrapSaltSize = 16
)

// WrappedPrivateKey is a private key sealed under a password-derived key.
// Salt is the base64 text of random bytes; the text itself is the KDF salt.
type WrappedPrivateKey struct {
	Salt      string `json:"salt"`
	Nonce     string `json:"nonce"`
	Encrypted string `json:"encrypted"`
}

// WrapPrivateKey seals priv under a key derived from password with scrypt.
func WrapPrivateKey(priv PrivateKey, password string) (WrappedPrivateKey, error) {
	raw := make([]byte, wrapSaltSize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return WrappedPrivateKey{}, fmt.Errorf("wrap: salt: %w", err)
	}
	salt := encode(raw)

	key, err := deriveWrapKey(password, salt)
	if err != nil {
		return WrappedPrivateKey{}, fmt.Errorf("wrap: %w", err)
	}
	nonce, err := newNonce()
	if err != nil {
		return WrappedPrivateKey{}, fmt.Errorf("wrap: nonce: %w", err)
	}
	sealed := secretbox.Seal(nil, priv[:], nonce, key)
	return WrappedPrivateKey{
		Salt:      salt,
		Nonce:     encode(nonce[:]),
		Encrypted: encode(sealed),
	}, nil
}

// UnwrapPrivateKey recovers the private key. Any failure, including a
// malformed structure, is reported as errs.ErrInvalidPasswordOrCorruptData.
func UnwrapPrivateKey(w WrappedPrivateKey, password string) (PrivateKey, error) {
	var priv PrivateKey
	nonce, ok := decodeNonce(w.Nonce)
	if !ok || w.Salt == "" {
		return priv, errs.ErrInvalidPasswordOrCorruptData
	}
	sealed, err := decode(w.Encrypted)
	if err != nil {
		return priv, errs.ErrInvalidPasswordOrCorruptData
	}
	key, err := deriveWrapKey(password, w.Salt)
	if err != nil {
		return priv, errs.ErrInvalidPasswordOrCorruptData
	}
	opened, ok := secretbox.Open(nil, sealed, nonce, key)
	if !ok || len(opened) != KeySize {
		return priv, errs.ErrInvalidPasswordOrCorruptData
	}
	copy(priv[:], opened)
	return priv, nil
}

// Encode renders the wrapped key in its stored JSON form.
func (w WrappedPrivateKey) Encode() (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseWrappedPrivateKey decodes the stored JSON form.
func ParseWrappedPrivateKey(s string) (WrappedPrivateKey, error) {
	var w WrappedPrivateKey
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return WrappedPrivateKey{}, errs.ErrInvalidPasswordOrCorruptData
	}
	return w, nil
}

// UnwrapPrivateKeyString parses and unwraps a stored wrapped key.
func UnwrapPrivateKeyString(stored, password string) (PrivateKey, error) {
	w, err := ParseWrappedPrivateKey(stored)
	if err != nil {
		return PrivateKey{}, err
	}
	return UnwrapPrivateKey(w, password)
}

func deriveWrapKey(password, salt string) (*[KeySize]byte, error) {
	dk, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, wrapKeyLen)
	if err != nil {
		return nil, err
	}
	var k [KeySize]byte
	copy(k[:], dk)
	return &k, nil
}
