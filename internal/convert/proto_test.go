package convert

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	pb "github.com/and161185/cipherchat/api/chat/v1"
	model "github.com/and161185/cipherchat/internal/model"
	u "github.com/gofrs/uuid/v5"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestParseUUID(t *testing.T) {
	t.Parallel()

	id, err := ParseUUID("user id", " 6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11 ")
	if err != nil || id.String() != "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11" {
		t.Fatalf("ParseUUID: %v %v", id, err)
	}
	if _, err := ParseUUID("user id", "nope"); err == nil || !strings.Contains(err.Error(), "invalid user id") {
		t.Fatalf("want invalid user id error, got %v", err)
	}

	n, err := ParseNullUUID("group id", "")
	if err != nil || n.Valid {
		t.Fatalf("empty must give invalid NullUUID, got %v %v", n, err)
	}
	if _, err := ParseNullUUID("group id", "x"); err == nil {
		t.Fatalf("want error for bad optional id")
	}
}

func TestToProtoUser_Secret(t *testing.T) {
	t.Parallel()

	usr := model.User{
		ID:                mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		Username:          "alice",
		PublicKey:         "pk",
		WrappedPrivateKey: `{"salt":"s"}`,
	}
	if got := ToProtoUser(usr, false); got.WrappedPrivateKey != "" || got.PublicKey != "pk" {
		t.Fatalf("public view leaked secret: %+v", got)
	}
	if got := ToProtoUser(usr, true); got.WrappedPrivateKey == "" {
		t.Fatalf("owner view must carry wrapped key")
	}

	exp := time.Now().Add(time.Hour).UTC()
	auth := ToProtoAuth(model.Tokens{AccessToken: "t", ExpiresAt: exp}, usr)
	if auth.AccessToken != "t" || !auth.ExpiresAt.Equal(exp) || auth.GetUser().GetID() != usr.ID.String() {
		t.Fatalf("auth mismatch: %+v", auth)
	}
}

func TestUserAndFriends(t *testing.T) {
	t.Parallel()

	me := mustUUID(t, "11111111-1111-1111-1111-111111111111")
	bob := model.User{
		ID:         mustUUID(t, "33333333-3333-3333-3333-333333333333"),
		Username:   "bob",
		FriendCode: "BOB234",
		PublicKey:  "pkb",
		CreatedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	back, err := FromProtoUser(ToProtoUser(bob, false))
	if err != nil || !reflect.DeepEqual(back, bob) {
		t.Fatalf("user roundtrip: %+v %v", back, err)
	}
	if _, err := FromProtoUser(nil); err == nil {
		t.Fatalf("nil user must fail")
	}

	row := FriendView(model.Friendship{ID: 7, RequesterID: me, AddresseeID: bob.ID, Status: model.FriendPending}, bob)
	if row.UserID != bob.ID || row.Username != "bob" || row.FriendshipID != 7 {
		t.Fatalf("FriendView: %+v", row)
	}
	list := model.FriendList{PendingSent: []model.Friend{row}}
	p := ToProtoFriendList(list)
	if len(p.Friends) != 0 || len(p.PendingSent) != 1 || p.PendingSent[0].RequestID != 7 || p.PendingSent[0].Status != "pending" {
		t.Fatalf("pb list: %+v", p)
	}
	got, err := FromProtoFriendList(p)
	if err != nil {
		t.Fatalf("FromProtoFriendList: %v", err)
	}
	if len(got.PendingSent) != 1 || got.PendingSent[0] != row {
		t.Fatalf("friend roundtrip: %+v", got)
	}
	p.Friends = []*pb.FriendInfo{{UserID: "bad"}}
	if _, err := FromProtoFriendList(p); err == nil || !strings.Contains(err.Error(), "friend[0]") {
		t.Fatalf("want indexed error, got %v", err)
	}
}

func TestGroupRoundTrip(t *testing.T) {
	t.Parallel()

	g := model.UserGroup{
		Group: model.Group{
			ID:        mustUUID(t, "22222222-2222-2222-2222-222222222222"),
			Name:      "team",
			Code:      "ABC234",
			CreatorID: mustUUID(t, "11111111-1111-1111-1111-111111111111"),
			CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Role:     model.RoleCreator,
		Envelope: `{"key":"k","sharedBy":"p"}`,
	}
	p := ToProtoGroup(g)
	if p.GroupCode != "ABC234" || p.Role != "creator" || p.EncryptedGroupKey != g.Envelope {
		t.Fatalf("pb mismatch: %+v", p)
	}
	back, err := FromProtoGroup(p)
	if err != nil {
		t.Fatalf("FromProtoGroup: %v", err)
	}
	if back != g {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", back, g)
	}

	if _, err := FromProtoGroup(nil); err == nil {
		t.Fatalf("nil must fail")
	}
	if _, err := FromProtoGroup(&pb.GroupInfo{ID: "bad"}); err == nil {
		t.Fatalf("bad id must fail")
	}
}

func TestToProtoGroupDetail(t *testing.T) {
	t.Parallel()

	members := []model.Member{
		{UserID: mustUUID(t, "11111111-1111-1111-1111-111111111111"), Username: "alice", Role: model.RoleCreator, HasKey: true},
		{UserID: mustUUID(t, "33333333-3333-3333-3333-333333333333"), Username: "bob", Role: model.RoleMember},
	}
	d := ToProtoGroupDetail(model.UserGroup{}, members)
	if len(d.Members) != 2 || !d.Members[0].HasKey || d.Members[1].HasKey || d.Members[1].Username != "bob" {
		t.Fatalf("members mismatch: %+v", d.Members)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	edited := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	m := model.Message{
		ID:         42,
		SenderID:   mustUUID(t, "11111111-1111-1111-1111-111111111111"),
		SenderName: "alice",
		ReceiverID: u.NullUUID{UUID: mustUUID(t, "33333333-3333-3333-3333-333333333333"), Valid: true},
		Ciphertext: "ct",
		Nonce:      "n",
		Status:     model.StatusDelivered,
		CreatedAt:  time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		EditedAt:   &edited,
	}
	p := ToProtoMessage(m)
	if p.GroupID != "" || p.ReceiverID == "" || p.Status != "delivered" {
		t.Fatalf("pb mismatch: %+v", p)
	}
	back, err := FromProtoMessage(p)
	if err != nil {
		t.Fatalf("FromProtoMessage: %v", err)
	}
	if back.ID != m.ID || back.ReceiverID != m.ReceiverID || back.GroupID.Valid || !back.EditedAt.Equal(edited) {
		t.Fatalf("roundtrip mismatch: %+v", back)
	}

	if got := ToProtoMessages([]model.Message{m, m}); len(got) != 2 {
		t.Fatalf("want 2 messages, got %d", len(got))
	}
}

func TestFromPayload(t *testing.T) {
	t.Parallel()

	gid := mustUUID(t, "22222222-2222-2222-2222-222222222222")
	p := model.MessagePayload{ID: 3, SenderID: mustUUID(t, "11111111-1111-1111-1111-111111111111"), GroupID: &gid, EncryptedContent: "c"}
	m := FromPayload(p)
	if !m.IsGroup() || m.GroupID.UUID != gid || m.ReceiverID.Valid || m.Ciphertext != "c" {
		t.Fatalf("payload mismatch: %+v", m)
	}
}

func TestFrames(t *testing.T) {
	t.Parallel()

	ev := model.Event{Name: model.EventTyping, Payload: json.RawMessage(`{"isTyping":true}`)}
	f := ToFrame(ev)
	back, err := FromFrame(f)
	if err != nil || back.Name != ev.Name || string(back.Payload) != string(ev.Payload) {
		t.Fatalf("frame roundtrip: %+v %v", back, err)
	}
	if _, err := FromFrame(nil); err == nil {
		t.Fatalf("nil frame must fail")
	}
	if _, err := FromFrame(&pb.Frame{}); err == nil {
		t.Fatalf("empty event must fail")
	}
}
