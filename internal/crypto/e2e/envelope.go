package e2e

import (
	"encoding/json"
	"fmt"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
)

// EnvelopeFormat tags how a stored group key envelope was read.
type EnvelopeFormat int

const (
	// FormatCurrent is {key, sharedBy}: the key sealed by the sharedBy identity.
	FormatCurrent EnvelopeFormat = iota + 1
	// FormatLegacy is a bare {nonce, encrypted} the group creator sealed to itself.
	FormatLegacy
)

func (f EnvelopeFormat) String() string {
	switch f {
	case FormatCurrent:
		return "current"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// StoredEnvelope is a parsed group key envelope. A raw value may satisfy both
// readings; Current is tried first.
type StoredEnvelope struct {
	Current *SharedKey
	Legacy  *Sealed
}

// SharedKey is a group key sealed for one recipient by SharedBy.
type SharedKey struct {
	Sealed   Sealed
	SharedBy PublicKey
}

// Format reports the preferred reading of the envelope.
func (e StoredEnvelope) Format() EnvelopeFormat {
	if e.Current != nil {
		return FormatCurrent
	}
	return FormatLegacy
}

// ParseEnvelope reads a stored envelope in either format. A value that fits
// neither is reported as errs.ErrGroupKeyUnwrapFailed.
func ParseEnvelope(raw string) (StoredEnvelope, error) {
	var env StoredEnvelope

	var cur model.KeyEnvelope
	if json.Unmarshal([]byte(raw), &cur) == nil && cur.Key != "" && cur.SharedBy != "" {
		var inner Sealed
		pub, perr := ParsePublicKey(cur.SharedBy)
		if perr == nil && json.Unmarshal([]byte(cur.Key), &inner) == nil && inner.complete() {
			env.Current = &SharedKey{Sealed: inner, SharedBy: pub}
		}
	}

	var legacy Sealed
	if json.Unmarshal([]byte(raw), &legacy) == nil && legacy.complete() {
		env.Legacy = &legacy
	}

	if env.Current == nil && env.Legacy == nil {
		return StoredEnvelope{}, fmt.Errorf("%w: unrecognized envelope", errs.ErrGroupKeyUnwrapFailed)
	}
	return env, nil
}

// EncryptGroupKey seals key for recipient. The result is always in the current format.
func EncryptGroupKey(key GroupKey, recipientPub PublicKey, wrapper Identity) (model.KeyEnvelope, error) {
	sealed, err := SealGroupKey(key, recipientPub, wrapper.Private)
	if err != nil {
		return model.KeyEnvelope{}, err
	}
	inner, err := sealed.Encode()
	if err != nil {
		return model.KeyEnvelope{}, err
	}
	return model.KeyEnvelope{Key: inner, SharedBy: wrapper.Public.String()}, nil
}

// SealGroupKey seals the raw group key for recipient, without the sharedBy wrapper.
func SealGroupKey(key GroupKey, recipientPub PublicKey, wrapperPriv PrivateKey) (Sealed, error) {
	return sealBox(key[:], wrapperPriv, recipientPub)
}

// OpenGroupKey opens a sealed group key produced by the wrapper identity.
func OpenGroupKey(s Sealed, wrapperPub PublicKey, recipientPriv PrivateKey) (GroupKey, error) {
	b, ok := openBox(s, wrapperPub, recipientPriv)
	if !ok || len(b) != KeySize {
		return GroupKey{}, errs.ErrGroupKeyUnwrapFailed
	}
	var k GroupKey
	copy(k[:], b)
	return k, nil
}

// DecryptGroupKey recovers the group key from a stored envelope. The current
// format is opened with its sharedBy key. The legacy format is opened with the
// recipient's own public key as the sender key, which only holds for a key the
// group creator sealed to itself.
func DecryptGroupKey(env StoredEnvelope, self Identity) (GroupKey, EnvelopeFormat, error) {
	if env.Current != nil {
		if k, err := OpenGroupKey(env.Current.Sealed, env.Current.SharedBy, self.Private); err == nil {
			return k, FormatCurrent, nil
		}
	}
	if env.Legacy != nil {
		if k, err := OpenGroupKey(*env.Legacy, self.Public, self.Private); err == nil {
			return k, FormatLegacy, nil
		}
	}
	return GroupKey{}, 0, errs.ErrGroupKeyUnwrapFailed
}

// DecryptStoredGroupKey parses and decrypts a stored envelope.
func DecryptStoredGroupKey(raw string, self Identity) (GroupKey, error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return GroupKey{}, err
	}
	k, _, err := DecryptGroupKey(env, self)
	return k, err
}

func (s Sealed) complete() bool { return s.Nonce != "" && s.Encrypted != "" }
