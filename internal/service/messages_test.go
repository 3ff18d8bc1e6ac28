package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

func TestMessages_History(t *testing.T) {
	t.Parallel()
	st := memory.New()
	ctx := context.Background()
	alice, bob, carol := seedUser(t, st, "alice"), seedUser(t, st, "bob"), seedUser(t, st, "carol")
	groups := NewGroupService(st.Groups(), zap.NewNop())
	g, err := groups.Create(ctx, alice, "team", "k", "p")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	groupRef := uuid.NullUUID{UUID: g.ID, Valid: true}

	for i := 0; i < 3; i++ {
		if err := st.Messages().Create(ctx, &model.Message{SenderID: alice, GroupID: groupRef, Ciphertext: "c", Nonce: "n"}); err != nil {
			t.Fatalf("seed group message: %v", err)
		}
		if err := st.Messages().Create(ctx, &model.Message{SenderID: alice, ReceiverID: uuid.NullUUID{UUID: bob, Valid: true}, Ciphertext: "c", Nonce: "n"}); err != nil {
			t.Fatalf("seed private message: %v", err)
		}
	}

	s := NewMessageService(st.Messages(), st.Groups(), st.Users())

	page, err := s.History(ctx, model.HistoryQuery{UserID: alice, GroupID: groupRef, Limit: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("group history: %d %v", len(page), err)
	}
	if _, err := s.History(ctx, model.HistoryQuery{UserID: carol, GroupID: groupRef}); !errors.Is(err, errs.ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled for outsider, got %v", err)
	}

	page, err = s.History(ctx, model.HistoryQuery{UserID: bob, PeerID: uuid.NullUUID{UUID: alice, Valid: true}})
	if err != nil || len(page) != 3 {
		t.Fatalf("private history: %d %v", len(page), err)
	}
	if page[0].ID <= page[1].ID {
		t.Fatalf("history must be newest first")
	}
	if _, err := s.History(ctx, model.HistoryQuery{UserID: bob, PeerID: uuid.NullUUID{UUID: uuid.Must(uuid.NewV4()), Valid: true}}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown peer, got %v", err)
	}

	if _, err := s.History(ctx, model.HistoryQuery{UserID: bob}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument without selector, got %v", err)
	}
	if _, err := s.History(ctx, model.HistoryQuery{UserID: bob, PeerID: uuid.NullUUID{UUID: alice, Valid: true}, GroupID: groupRef}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument with both selectors, got %v", err)
	}
}
