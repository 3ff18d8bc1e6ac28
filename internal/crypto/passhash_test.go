package crypto

import (
	"bytes"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := RandBytes(n)
	if bytes.Equal(a, b) {
		t.Fatalf("two RandBytes(%d) are equal", n)
	}
}

func TestNewCredential_FreshSalt(t *testing.T) {
	t.Parallel()

	a, err := NewCredential("p@ssw0rd")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	b, _ := NewCredential("p@ssw0rd")
	if len(a.Salt) != saltLen || len(a.Hash) == 0 {
		t.Fatalf("bad credential: salt=%d hash=%d", len(a.Salt), len(a.Hash))
	}
	if bytes.Equal(a.Salt, b.Salt) || bytes.Equal(a.Hash, b.Hash) {
		t.Fatalf("same password must not produce identical credentials")
	}
}

func TestCredential_Verify(t *testing.T) {
	t.Parallel()

	c, err := NewCredential("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	if !c.Verify("correct horse battery staple") {
		t.Fatalf("expected true for correct password")
	}
	if c.Verify("wrong") || c.Verify("") {
		t.Fatalf("expected false for wrong password")
	}

	salted := Credential{Hash: c.Hash, Salt: []byte("another-salt----")}
	if salted.Verify("correct horse battery staple") {
		t.Fatalf("expected false for wrong salt")
	}
	if (Credential{}).Verify("") {
		t.Fatalf("empty credential must never verify")
	}
}
