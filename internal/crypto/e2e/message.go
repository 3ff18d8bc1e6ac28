package e2e

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/and161185/cipherchat/internal/errs"
)

// Placeholders rendered instead of message text.
const (
	FailedPlaceholder = "[Failed to decrypt]"
	NoKeyPlaceholder  = "[No key]"
)

// Sealed is a ciphertext with the nonce it was sealed under, both base64.
type Sealed struct {
	Nonce     string `json:"nonce"`
	Encrypted string `json:"encrypted"`
}

// Plaintext is the result of decrypting message content. Decryption never
// returns an error; a failed open carries Err and renders as FailedPlaceholder.
type Plaintext struct {
	Text string
	Err  error
}

// OK reports whether the content was decrypted.
func (p Plaintext) OK() bool { return p.Err == nil }

// String returns the text or the failure placeholder.
func (p Plaintext) String() string {
	if p.Err != nil {
		return FailedPlaceholder
	}
	return p.Text
}

func failed() Plaintext { return Plaintext{Err: errs.ErrMessageDecryptionFailed} }

// EncryptMessage seals plaintext from sender to recipient with a fresh nonce.
func EncryptMessage(plaintext string, senderPriv PrivateKey, recipientPub PublicKey) (Sealed, error) {
	return sealBox([]byte(plaintext), senderPriv, recipientPub)
}

// DecryptMessage opens a pairwise message. Box keys are symmetric, so the
// sender of an outgoing message decrypts it with the peer's public key.
func DecryptMessage(s Sealed, senderPub PublicKey, recipientPriv PrivateKey) Plaintext {
	b, ok := openBox(s, senderPub, recipientPriv)
	if !ok || !utf8.Valid(b) {
		return failed()
	}
	return Plaintext{Text: string(b)}
}

// GenerateGroupKey returns a fresh random group key.
func GenerateGroupKey() (GroupKey, error) {
	var k GroupKey
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return GroupKey{}, fmt.Errorf("generate group key: %w", err)
	}
	return k, nil
}

// EncryptGroupMessage seals plaintext under the group key.
func EncryptGroupMessage(plaintext string, key GroupKey) (Sealed, error) {
	nonce, err := newNonce()
	if err != nil {
		return Sealed{}, fmt.Errorf("encrypt group message: %w", err)
	}
	k := [KeySize]byte(key)
	ct := secretbox.Seal(nil, []byte(plaintext), nonce, &k)
	return Sealed{Nonce: encode(nonce[:]), Encrypted: encode(ct)}, nil
}

// DecryptGroupMessage opens a group message.
func DecryptGroupMessage(s Sealed, key GroupKey) Plaintext {
	nonce, ok := decodeNonce(s.Nonce)
	if !ok {
		return failed()
	}
	ct, err := decode(s.Encrypted)
	if err != nil {
		return failed()
	}
	k := [KeySize]byte(key)
	b, ok := secretbox.Open(nil, ct, nonce, &k)
	if !ok || !utf8.Valid(b) {
		return failed()
	}
	return Plaintext{Text: string(b)}
}

// Encode renders the sealed value as JSON, the inner group key envelope format.
func (s Sealed) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sealBox(msg []byte, senderPriv PrivateKey, recipientPub PublicKey) (Sealed, error) {
	nonce, err := newNonce()
	if err != nil {
		return Sealed{}, fmt.Errorf("seal: nonce: %w", err)
	}
	pub := [KeySize]byte(recipientPub)
	priv := [KeySize]byte(senderPriv)
	ct := box.Seal(nil, msg, nonce, &pub, &priv)
	return Sealed{Nonce: encode(nonce[:]), Encrypted: encode(ct)}, nil
}

func openBox(s Sealed, senderPub PublicKey, recipientPriv PrivateKey) ([]byte, bool) {
	nonce, ok := decodeNonce(s.Nonce)
	if !ok {
		return nil, false
	}
	ct, err := decode(s.Encrypted)
	if err != nil {
		return nil, false
	}
	pub := [KeySize]byte(senderPub)
	priv := [KeySize]byte(recipientPriv)
	return box.Open(nil, ct, nonce, &pub, &priv)
}
