package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
)

func seedUser(t *testing.T, st *memory.Store, name string) uuid.UUID {
	t.Helper()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Username: name, PublicKey: "pub-" + name}
	if err := st.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return u.ID
}

func TestNewGroupCode_Alphabet(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		code, err := NewGroupCode()
		if err != nil {
			t.Fatalf("NewGroupCode: %v", err)
		}
		if len(code) != codeLen {
			t.Fatalf("code length %d", len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q has symbol %q outside the alphabet", code, r)
			}
		}
	}
}

func TestComposeEnvelope(t *testing.T) {
	t.Parallel()
	if _, err := ComposeEnvelope("", "pub"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument on empty key, got %v", err)
	}
	legacy, err := ComposeEnvelope(`{"nonce":"n","encrypted":"e"}`, "")
	if err != nil || legacy != `{"nonce":"n","encrypted":"e"}` {
		t.Fatalf("legacy envelope must be stored bare: %q %v", legacy, err)
	}
	cur, err := ComposeEnvelope("inner", "pub")
	if err != nil || cur != `{"key":"inner","sharedBy":"pub"}` {
		t.Fatalf("current envelope: %q %v", cur, err)
	}
}

func TestGroups_Lifecycle(t *testing.T) {
	t.Parallel()
	st := memory.New()
	s := NewGroupService(st.Groups(), zaptest.NewLogger(t))
	ctx := context.Background()
	alice, bob := seedUser(t, st, "alice"), seedUser(t, st, "bob")

	if _, err := s.Create(ctx, alice, "   ", "k", "p"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument on blank name, got %v", err)
	}
	if _, err := s.Create(ctx, alice, strings.Repeat("x", 51), "k", "p"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument on long name, got %v", err)
	}

	g, err := s.Create(ctx, alice, "team", "inner", "pubA")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Role != model.RoleCreator || g.Envelope == "" || len(g.Code) != codeLen {
		t.Fatalf("bad group: %+v", g)
	}

	joined, err := s.Join(ctx, bob, strings.ToLower(g.Code))
	if err != nil {
		t.Fatalf("Join lowercase code: %v", err)
	}
	if joined.ID != g.ID || joined.Role != model.RoleMember || joined.Envelope != "" {
		t.Fatalf("bad join: %+v", joined)
	}
	if _, err := s.Join(ctx, bob, g.Code); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate join, got %v", err)
	}
	if _, err := s.Join(ctx, bob, "ZZZZZZ"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on unknown code, got %v", err)
	}

	detail, err := s.Get(ctx, bob, g.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(detail.Members) != 2 || !detail.Members[0].HasKey || detail.Members[1].HasKey {
		t.Fatalf("bad members: %+v", detail.Members)
	}
	carol := seedUser(t, st, "carol")
	if _, err := s.Get(ctx, carol, g.ID); !errors.Is(err, errs.ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled for outsider, got %v", err)
	}

	if err := s.SaveKey(ctx, bob, g.ID, "rewrapped", ""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument without sharer, got %v", err)
	}
	if err := s.SaveKey(ctx, bob, g.ID, "rewrapped", "pubB"); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if err := s.SaveKey(ctx, carol, g.ID, "rewrapped", "pubC"); !errors.Is(err, errs.ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled for outsider SaveKey, got %v", err)
	}
	list, err := s.List(ctx, bob)
	if err != nil || len(list) != 1 || list[0].Envelope != `{"key":"rewrapped","sharedBy":"pubB"}` {
		t.Fatalf("List: %+v %v", list, err)
	}

	if deleted, err := s.Leave(ctx, alice, g.ID); err != nil || deleted {
		t.Fatalf("first Leave: deleted=%v err=%v", deleted, err)
	}
	if _, err := s.Leave(ctx, alice, g.ID); !errors.Is(err, errs.ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled on second Leave, got %v", err)
	}
	if deleted, err := s.Leave(ctx, bob, g.ID); err != nil || !deleted {
		t.Fatalf("last Leave: deleted=%v err=%v", deleted, err)
	}
}
