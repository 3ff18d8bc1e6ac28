package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	t     *testing.T
	store *memory.Store
	relay *Relay
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	st := memory.New()
	return &fixture{
		t:     t,
		store: st,
		relay: New(NewRegistry(), st.Users(), st.Groups(), st.Messages(), st.Friends(), zaptest.NewLogger(t), 16),
		ctx:   context.Background(),
	}
}

func (f *fixture) user(name string) uuid.UUID {
	f.t.Helper()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Username: name, PublicKey: "pub-" + name}
	require.NoError(f.t, f.store.Users().Create(f.ctx, u))
	return u.ID
}

// befriend stores an accepted friendship between a and b.
func (f *fixture) befriend(a, b uuid.UUID) {
	f.t.Helper()
	fr := &model.Friendship{RequesterID: a, AddresseeID: b}
	require.NoError(f.t, f.store.Friends().Create(f.ctx, fr))
	_, err := f.store.Friends().Accept(f.ctx, fr.ID, b)
	require.NoError(f.t, err)
}

// group creates a group owned by creator (holding a key) with keyless members.
func (f *fixture) group(creator uuid.UUID, members ...uuid.UUID) uuid.UUID {
	f.t.Helper()
	gid := uuid.Must(uuid.NewV4())
	g := &model.Group{ID: gid, Name: "g", Code: gid.String()[:6], CreatorID: creator}
	require.NoError(f.t, f.store.Groups().Create(f.ctx, g, model.Membership{UserID: creator, Role: model.RoleCreator, Envelope: "creator-env"}))
	for _, m := range members {
		require.NoError(f.t, f.store.Groups().AddMember(f.ctx, model.Membership{GroupID: gid, UserID: m, Role: model.RoleMember}))
	}
	return gid
}

func (f *fixture) send(s *Session, name string, payload any) {
	f.t.Helper()
	ev, err := model.NewEvent(name, payload)
	require.NoError(f.t, err)
	f.relay.Handle(f.ctx, s, ev)
}

// drain returns every queued event without blocking.
func drain(s *Session) []model.Event {
	var out []model.Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func only(t *testing.T, s *Session, name string, v any) {
	t.Helper()
	evs := drain(s)
	require.Len(t, evs, 1, "events: %+v", evs)
	require.Equal(t, name, evs[0].Name, "payload: %s", evs[0].Payload)
	if v != nil {
		require.NoError(t, json.Unmarshal(evs[0].Payload, v))
	}
}

func TestReconcile_OnConnectSendsPendingRequests(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	gid := f.group(alice, bob, carol)
	require.NoError(t, f.store.Groups().SetEnvelopeIfEmpty(f.ctx, gid, carol, "carol-env"))

	s := f.relay.Connect(f.ctx, alice)
	var req model.KeyRequested
	only(t, s, model.EventKeyRequested, &req)
	require.Equal(t, gid, req.GroupID)
	require.Equal(t, bob, req.RequesterID)
	require.Equal(t, "bob", req.RequesterName)
	require.Equal(t, "pub-bob", req.RequesterPublicKey)

	// keyless members are not asked to serve anyone
	sb := f.relay.Connect(f.ctx, bob)
	require.Empty(t, drain(sb))
}

func TestKeyRequest_FansOutToOnlineHolders(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	gid := f.group(alice, bob, carol)

	sb := f.relay.Connect(f.ctx, bob)
	sc := f.relay.Connect(f.ctx, carol)
	f.send(sb, model.EventKeyRequest, model.KeyRequest{GroupID: gid, PublicKey: "pub-bob"})
	require.Empty(t, drain(sb))
	require.Empty(t, drain(sc), "carol has no key and must not be asked")

	sa := f.relay.Connect(f.ctx, alice)
	drain(sa) // reconcile output
	f.send(sb, model.EventKeyRequest, model.KeyRequest{GroupID: gid})
	var req model.KeyRequested
	only(t, sa, model.EventKeyRequested, &req)
	require.Equal(t, bob, req.RequesterID)
	require.Equal(t, "pub-bob", req.RequesterPublicKey)

	require.Len(t, f.relay.Registry().RoomMembers(gid), 1, "requester joins the room")

	f.send(sb, model.EventKeyRequest, model.KeyRequest{GroupID: gid, PublicKey: "pub-mallory"})
	var e model.ErrorPayload
	only(t, sb, model.EventError, &e)
	require.Equal(t, model.CodeInvalid, e.Code)

	outsider := f.relay.Connect(f.ctx, f.user("dave"))
	f.send(outsider, model.EventKeyRequest, model.KeyRequest{GroupID: gid})
	only(t, outsider, model.EventError, &e)
	require.Equal(t, model.CodeNotEnrolled, e.Code)
}

func TestKeyShare_FirstWriteWins(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	gid := f.group(alice, bob, carol)
	require.NoError(t, f.store.Groups().SetEnvelopeIfEmpty(f.ctx, gid, carol, "carol-env"))

	sa := f.relay.Connect(f.ctx, alice)
	sc := f.relay.Connect(f.ctx, carol)
	sb := f.relay.Connect(f.ctx, bob)
	drain(sa)
	drain(sc)

	f.send(sa, model.EventKeyShare, model.KeyShare{GroupID: gid, TargetUserID: bob, EncryptedGroupKey: "from-alice", SharerPublicKey: "pub-alice"})
	f.send(sc, model.EventKeyShare, model.KeyShare{GroupID: gid, TargetUserID: bob, EncryptedGroupKey: "from-carol", SharerPublicKey: "pub-carol"})
	require.Empty(t, drain(sa))
	require.Empty(t, drain(sc))

	m, err := f.store.Groups().GetMembership(f.ctx, gid, bob)
	require.NoError(t, err)
	require.Equal(t, `{"key":"from-alice","sharedBy":"pub-alice"}`, m.Envelope)

	evs := drain(sb)
	require.Len(t, evs, 2, "both shares are still pushed to the online target")
	var got model.KeyReceived
	require.NoError(t, json.Unmarshal(evs[0].Payload, &got))
	require.Equal(t, alice, got.SharerID)
	require.Equal(t, "from-alice", got.EncryptedGroupKey)
}

func TestKeyShare_OfflineTargetIsPersisted(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	gid := f.group(alice, bob)

	sa := f.relay.Connect(f.ctx, alice)
	drain(sa)
	f.send(sa, model.EventKeyShare, model.KeyShare{GroupID: gid, TargetUserID: bob, EncryptedGroupKey: "k", SharerPublicKey: "pub-alice"})
	require.Empty(t, drain(sa))

	m, err := f.store.Groups().GetMembership(f.ctx, gid, bob)
	require.NoError(t, err)
	require.True(t, m.HasKey())
}

func TestKeyShare_Rejections(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	gid := f.group(alice, bob)
	share := model.KeyShare{GroupID: gid, TargetUserID: alice, EncryptedGroupKey: "k", SharerPublicKey: "p"}
	var e model.ErrorPayload

	sb := f.relay.Connect(f.ctx, bob)
	f.send(sb, model.EventKeyShare, share)
	only(t, sb, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code, "keyless member cannot share")

	sa := f.relay.Connect(f.ctx, alice)
	drain(sa)
	share.TargetUserID = carol
	f.send(sa, model.EventKeyShare, share)
	only(t, sa, model.EventError, &e)
	require.Equal(t, model.CodeNotEnrolled, e.Code, "target must be a member")

	share.EncryptedGroupKey = ""
	f.send(sa, model.EventKeyShare, share)
	only(t, sa, model.EventError, &e)
	require.Equal(t, model.CodeInvalid, e.Code)
}

func TestPrivateMessage_DeliveredWhenOnline(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	f.befriend(alice, bob)
	sa := f.relay.Connect(f.ctx, alice)

	f.send(sa, model.EventPrivateMessage, model.SendPrivate{ReceiverID: bob, EncryptedContent: "c1", Nonce: "n1"})
	var sent model.MessagePayload
	only(t, sa, model.EventPrivateSent, &sent)
	require.Equal(t, model.StatusSent, sent.Status, "offline receiver")

	sb := f.relay.Connect(f.ctx, bob)
	drain(sa)
	drain(sb)
	f.send(sa, model.EventPrivateMessage, model.SendPrivate{ReceiverID: bob, EncryptedContent: "c2", Nonce: "n2"})
	only(t, sa, model.EventPrivateSent, &sent)
	require.Equal(t, model.StatusDelivered, sent.Status)
	var got model.MessagePayload
	only(t, sb, model.EventPrivateMessage, &got)
	require.Equal(t, "c2", got.EncryptedContent)
	require.Equal(t, alice, got.SenderID)

	stored, err := f.store.Messages().Get(f.ctx, sent.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusDelivered, stored.Status)

	f.send(sb, model.EventRead, model.ReadReceipt{MessageIDs: []int64{sent.ID}, SenderID: &alice})
	var rr model.ReadReceipt
	only(t, sa, model.EventRead, &rr)
	require.Equal(t, bob, rr.ReadBy)
	stored, _ = f.store.Messages().Get(f.ctx, sent.ID)
	require.Equal(t, model.StatusRead, stored.Status)

	f.send(sa, model.EventPrivateMessage, model.SendPrivate{ReceiverID: uuid.Must(uuid.NewV4()), EncryptedContent: "c", Nonce: "n"})
	var e model.ErrorPayload
	only(t, sa, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code)
}

func TestPrivate_StrangersAreRejected(t *testing.T) {
	f := newFixture(t)
	bob, mallory, carol := f.user("bob"), f.user("mallory"), f.user("carol")
	sb := f.relay.Connect(f.ctx, bob)
	sm := f.relay.Connect(f.ctx, mallory)
	var e model.ErrorPayload

	f.send(sm, model.EventPrivateMessage, model.SendPrivate{ReceiverID: bob, EncryptedContent: "c", Nonce: "n"})
	only(t, sm, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code)
	require.Equal(t, model.EventPrivateMessage, e.Event)
	require.Empty(t, drain(sb))
	history, err := f.store.Messages().History(f.ctx, model.HistoryQuery{UserID: bob, PeerID: uuid.NullUUID{UUID: mallory, Valid: true}})
	require.NoError(t, err)
	require.Empty(t, history, "nothing is stored")

	f.send(sm, model.EventTyping, model.Typing{ReceiverID: &bob, IsTyping: true})
	only(t, sm, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code)
	require.Empty(t, drain(sb))

	f.send(sm, model.EventRead, model.ReadReceipt{MessageIDs: []int64{1}, SenderID: &bob})
	only(t, sm, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code)
	require.Empty(t, drain(sb))

	// a pending request is not enough
	require.NoError(t, f.store.Friends().Create(f.ctx, &model.Friendship{RequesterID: carol, AddresseeID: bob}))
	sc := f.relay.Connect(f.ctx, carol)
	f.send(sc, model.EventPrivateMessage, model.SendPrivate{ReceiverID: bob, EncryptedContent: "c", Nonce: "n"})
	only(t, sc, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code)
}

func TestPresence_FriendsSeeOnlineAndOffline(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	f.befriend(alice, bob)

	sa := f.relay.Connect(f.ctx, alice)
	require.Empty(t, drain(sa), "no friend is online yet")
	sc := f.relay.Connect(f.ctx, carol)

	sb := f.relay.Connect(f.ctx, bob)
	var list model.FriendsOnline
	only(t, sb, model.EventFriendsOnline, &list)
	require.Equal(t, []uuid.UUID{alice}, list.UserIDs)
	var st model.UserStatus
	only(t, sa, model.EventUserStatus, &st)
	require.Equal(t, model.UserStatus{UserID: bob, Online: true}, st)
	require.Empty(t, drain(sc), "strangers hear nothing")

	// a replacing session gets the list but friends are not told twice
	sb2 := f.relay.Connect(f.ctx, bob)
	only(t, sb2, model.EventFriendsOnline, &list)
	require.Empty(t, drain(sa))

	// the replaced session leaving does not make bob offline
	f.relay.Disconnect(f.ctx, sb)
	require.Empty(t, drain(sa))

	f.relay.Disconnect(f.ctx, sb2)
	only(t, sa, model.EventUserStatus, &st)
	require.Equal(t, model.UserStatus{UserID: bob, Online: false}, st)
	require.Empty(t, drain(sc))
}

func TestGroupMessage_BroadcastToRoom(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	gid := f.group(alice, bob)
	sa := f.relay.Connect(f.ctx, alice)
	sb := f.relay.Connect(f.ctx, bob)
	drain(sa)
	f.send(sb, model.EventJoinGroups, struct{}{})

	f.send(sa, model.EventGroupMessage, model.SendGroup{GroupID: gid, EncryptedContent: "gc", Nonce: "gn"})
	var got model.MessagePayload
	only(t, sb, model.EventGroupMessage, &got)
	require.Equal(t, "alice", got.SenderName)
	require.NotNil(t, got.GroupID)
	only(t, sa, model.EventGroupMessage, nil)

	outsider := f.relay.Connect(f.ctx, f.user("eve"))
	f.send(outsider, model.EventGroupMessage, model.SendGroup{GroupID: gid, EncryptedContent: "x", Nonce: "y"})
	var e model.ErrorPayload
	only(t, outsider, model.EventError, &e)
	require.Equal(t, model.CodeNotEnrolled, e.Code)
	require.Empty(t, drain(sb))

	f.send(sa, model.EventTyping, model.Typing{GroupID: &gid, IsTyping: true})
	var typing model.Typing
	only(t, sb, model.EventTyping, &typing)
	require.Equal(t, alice, typing.UserID)
	require.Empty(t, drain(sa))
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user("alice"), f.user("bob")
	f.befriend(alice, bob)
	sa := f.relay.Connect(f.ctx, alice)
	sb := f.relay.Connect(f.ctx, bob)
	drain(sa)

	f.send(sa, model.EventPrivateMessage, model.SendPrivate{ReceiverID: bob, EncryptedContent: "c", Nonce: "n"})
	var sent model.MessagePayload
	only(t, sa, model.EventPrivateSent, &sent)
	drain(sb)

	var e model.ErrorPayload
	f.send(sb, model.EventEdit, model.EditMessage{MessageID: sent.ID, EncryptedContent: "x", Nonce: "y"})
	only(t, sb, model.EventError, &e)
	require.Equal(t, model.CodeNotAuthorized, e.Code, "only the sender edits")

	f.send(sa, model.EventEdit, model.EditMessage{MessageID: sent.ID, EncryptedContent: "c2", Nonce: "n2"})
	var edited model.MessageEdited
	only(t, sb, model.EventEdited, &edited)
	require.Equal(t, "c2", edited.EncryptedContent)
	only(t, sa, model.EventEdited, nil)

	// receiver hides the message for itself only
	f.send(sb, model.EventDelete, model.DeleteMessage{MessageID: sent.ID, ForBoth: true})
	var del model.MessageDeleted
	only(t, sb, model.EventDeleted, &del)
	require.False(t, del.DeletedForBoth)
	require.Empty(t, drain(sa))
	stored, err := f.store.Messages().Get(f.ctx, sent.ID)
	require.NoError(t, err)
	require.True(t, stored.DeletedForReceiver)

	f.send(sa, model.EventDelete, model.DeleteMessage{MessageID: sent.ID, ForBoth: true})
	only(t, sa, model.EventDeleted, &del)
	require.True(t, del.DeletedForBoth)
	only(t, sb, model.EventDeleted, nil)
	_, err = f.store.Messages().Get(f.ctx, sent.ID)
	require.Error(t, err)
}

func TestHandle_UnknownAndMalformed(t *testing.T) {
	f := newFixture(t)
	s := f.relay.Connect(f.ctx, f.user("alice"))
	var e model.ErrorPayload

	f.relay.Handle(f.ctx, s, model.Event{Name: "nope"})
	only(t, s, model.EventError, &e)
	require.Equal(t, model.CodeInvalid, e.Code)
	require.Equal(t, "nope", e.Event)

	f.relay.Handle(f.ctx, s, model.Event{Name: model.EventPrivateMessage, Payload: json.RawMessage(`[1,2`)})
	only(t, s, model.EventError, &e)
	require.Equal(t, model.CodeInvalid, e.Code)
}

func TestDisconnect_TargetBecomesOffline(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	s := f.relay.Connect(f.ctx, alice)
	require.True(t, f.relay.SendToUser(alice, "ping", struct{}{}))
	f.relay.Disconnect(f.ctx, s)
	require.False(t, f.relay.SendToUser(alice, "ping", struct{}{}))
	require.True(t, s.Closed())
}

func TestFriendshipChanged_OnlyWhenBothOnline(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user("alice"), f.user("bob"), f.user("carol")
	sa := f.relay.Connect(f.ctx, alice)
	sb := f.relay.Connect(f.ctx, bob)

	f.relay.FriendshipChanged(alice, carol, true)
	require.Empty(t, drain(sa), "carol is offline")

	f.relay.FriendshipChanged(alice, bob, true)
	var st model.UserStatus
	only(t, sa, model.EventUserStatus, &st)
	require.Equal(t, model.UserStatus{UserID: bob, Online: true}, st)
	only(t, sb, model.EventUserStatus, &st)
	require.Equal(t, model.UserStatus{UserID: alice, Online: true}, st)

	f.relay.FriendshipChanged(alice, bob, false)
	only(t, sb, model.EventUserStatus, &st)
	require.False(t, st.Online)
	drain(sa)
}
