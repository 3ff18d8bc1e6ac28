package e2e

import (
	"errors"
	"testing"

	"github.com/and161185/cipherchat/internal/errs"
)

func mustIdentity(t *testing.T) Identity {
	t.Helper()
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return id
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)

	for _, pw := range []string{"correct horse", "", "пароль-юникод"} {
		w, err := WrapPrivateKey(id.Private, pw)
		if err != nil {
			t.Fatalf("WrapPrivateKey(%q): %v", pw, err)
		}
		got, err := UnwrapPrivateKey(w, pw)
		if err != nil {
			t.Fatalf("UnwrapPrivateKey(%q): %v", pw, err)
		}
		if got != id.Private {
			t.Fatalf("round trip mismatch for %q", pw)
		}
	}
}

func TestWrap_FreshSaltAndNonce(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)
	a, _ := WrapPrivateKey(id.Private, "pw")
	b, _ := WrapPrivateKey(id.Private, "pw")
	if a.Salt == b.Salt || a.Nonce == b.Nonce || a.Encrypted == b.Encrypted {
		t.Fatalf("two wraps share salt/nonce/ciphertext")
	}
}

func TestUnwrap_WrongPassword(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)
	w, err := WrapPrivateKey(id.Private, "p1")
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if _, err := UnwrapPrivateKey(w, "p2"); !errors.Is(err, errs.ErrInvalidPasswordOrCorruptData) {
		t.Fatalf("want ErrInvalidPasswordOrCorruptData, got %v", err)
	}
}

func TestUnwrap_CorruptDataSameError(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)
	w, _ := WrapPrivateKey(id.Private, "pw")

	cases := map[string]WrappedPrivateKey{
		"bad nonce":      {Salt: w.Salt, Nonce: "!!", Encrypted: w.Encrypted},
		"short nonce":    {Salt: w.Salt, Nonce: encode([]byte{1, 2, 3}), Encrypted: w.Encrypted},
		"bad ciphertext": {Salt: w.Salt, Nonce: w.Nonce, Encrypted: "%%%"},
		"other salt":     {Salt: "c2FsdA==", Nonce: w.Nonce, Encrypted: w.Encrypted},
		"empty salt":     {Nonce: w.Nonce, Encrypted: w.Encrypted},
		"empty":          {},
	}
	for name, c := range cases {
		if _, err := UnwrapPrivateKey(c, "pw"); !errors.Is(err, errs.ErrInvalidPasswordOrCorruptData) {
			t.Fatalf("%s: want ErrInvalidPasswordOrCorruptData, got %v", name, err)
		}
	}

	if _, err := UnwrapPrivateKeyString("{not json", "pw"); !errors.Is(err, errs.ErrInvalidPasswordOrCorruptData) {
		t.Fatalf("malformed json: want ErrInvalidPasswordOrCorruptData, got %v", err)
	}
}

func TestWrapped_EncodeParse(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)
	w, _ := WrapPrivateKey(id.Private, "pw")

	s, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := UnwrapPrivateKeyString(s, "pw")
	if err != nil || got != id.Private {
		t.Fatalf("UnwrapPrivateKeyString: %v", err)
	}
}

func TestParseKeys(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)

	pub, err := ParsePublicKey(id.Public.String())
	if err != nil || pub != id.Public {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	priv, err := ParsePrivateKey(id.Private.Encode())
	if err != nil || priv != id.Private {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if _, err := ParsePublicKey("AAAA"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("short key: want ErrInvalidArgument, got %v", err)
	}
	if _, err := ParseGroupKey("not base64!"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("bad base64: want ErrInvalidArgument, got %v", err)
	}
}

func TestIdentityFromPrivate(t *testing.T) {
	t.Parallel()
	id := mustIdentity(t)

	got, err := IdentityFromPrivate(id.Private)
	if err != nil {
		t.Fatalf("IdentityFromPrivate: %v", err)
	}
	if got != id {
		t.Fatalf("derived public key differs from the generated one")
	}
}
