// Package relay carries opaque encrypted payloads between connected sessions.
// It checks membership before acting on an event, persists what the protocol
// requires (messages, first key share per member) and never decrypts.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

type handlerFunc func(r *Relay, ctx context.Context, s *Session, ev model.Event) error

var handlers = map[string]handlerFunc{
	model.EventPrivateMessage: (*Relay).handlePrivate,
	model.EventGroupMessage:   (*Relay).handleGroup,
	model.EventTyping:         (*Relay).handleTyping,
	model.EventRead:           (*Relay).handleRead,
	model.EventEdit:           (*Relay).handleEdit,
	model.EventDelete:         (*Relay).handleDelete,
	model.EventJoinGroups:     (*Relay).handleJoinGroups,
	model.EventKeyRequest:     (*Relay).handleKeyRequest,
	model.EventKeyShare:       (*Relay).handleKeyShare,
}

// Relay routes realtime events between sessions.
type Relay struct {
	reg      *Registry
	users    repository.UserRepository
	groups   repository.GroupRepository
	messages repository.MessageRepository
	friends  repository.FriendRepository
	log      *zap.Logger
	buffer   int
	now      func() time.Time
}

// New constructs a Relay. buffer is the per-session outbound queue length.
func New(reg *Registry, users repository.UserRepository, groups repository.GroupRepository,
	messages repository.MessageRepository, friends repository.FriendRepository, log *zap.Logger, buffer int) *Relay {
	return &Relay{
		reg:      reg,
		users:    users,
		groups:   groups,
		messages: messages,
		friends:  friends,
		log:      log,
		buffer:   buffer,
		now:      time.Now,
	}
}

// Registry exposes the connection registry.
func (r *Relay) Registry() *Registry { return r.reg }

// Connect registers a new session for userID, tells it which friends are
// online, announces the user to them and runs the reconciliation pass.
// Presence and reconciliation failures are logged; the session stays usable.
func (r *Relay) Connect(ctx context.Context, userID uuid.UUID) *Session {
	s := NewSession(userID, r.buffer)
	prev := r.reg.Add(s)
	if prev != nil {
		r.log.Info("session replaced", zap.String("user", userID.String()), zap.String("prev", prev.ID.String()))
	}
	r.log.Info("session connected", zap.String("user", userID.String()), zap.String("session", s.ID.String()))
	if err := r.presence(ctx, s, prev == nil); err != nil {
		r.log.Warn("presence failed", zap.String("user", userID.String()), zap.Error(err))
	}
	if err := r.Reconcile(ctx, s); err != nil {
		r.log.Warn("reconcile failed", zap.String("user", userID.String()), zap.Error(err))
	}
	return s
}

// Disconnect closes s and unregisters it if it is still current. Friends
// hear about it only when no newer session replaced s.
func (r *Relay) Disconnect(ctx context.Context, s *Session) {
	s.Close()
	if !r.reg.Remove(s) {
		return
	}
	r.log.Info("session disconnected", zap.String("user", s.UserID.String()), zap.String("session", s.ID.String()))
	if _, err := r.notifyFriends(ctx, s.UserID, false); err != nil {
		r.log.Warn("presence failed", zap.String("user", s.UserID.String()), zap.Error(err))
	}
}

// presence sends s the list of its online friends and, when announce is set,
// tells them s's user came online.
func (r *Relay) presence(ctx context.Context, s *Session, announce bool) error {
	var (
		online []uuid.UUID
		err    error
	)
	if announce {
		online, err = r.notifyFriends(ctx, s.UserID, true)
	} else {
		online, err = r.onlineFriends(ctx, s.UserID)
	}
	if err != nil {
		return err
	}
	if len(online) > 0 {
		r.deliver(s, model.EventFriendsOnline, model.FriendsOnline{UserIDs: online})
	}
	return nil
}

// notifyFriends pushes a status change to every online friend of userID and
// returns those friends.
func (r *Relay) notifyFriends(ctx context.Context, userID uuid.UUID, online bool) ([]uuid.UUID, error) {
	ids, err := r.onlineFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		r.SendToUser(id, model.EventUserStatus, model.UserStatus{UserID: userID, Online: online})
	}
	return ids, nil
}

// FriendshipChanged tells two users about each other's presence after they
// became friends (linked) or stopped being friends. Nothing is sent unless
// both are online.
func (r *Relay) FriendshipChanged(a, b uuid.UUID, linked bool) {
	if _, ok := r.reg.Lookup(a); !ok {
		return
	}
	if _, ok := r.reg.Lookup(b); !ok {
		return
	}
	r.SendToUser(a, model.EventUserStatus, model.UserStatus{UserID: b, Online: linked})
	r.SendToUser(b, model.EventUserStatus, model.UserStatus{UserID: a, Online: linked})
}

func (r *Relay) onlineFriends(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := r.reg.Lookup(id); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Reconcile sends s a key request for every co-member still without a key in
// each group where s's user holds one. It covers requests that were made
// while no enrolled member was online.
func (r *Relay) Reconcile(ctx context.Context, s *Session) error {
	groups, err := r.groups.ListForUser(ctx, s.UserID)
	if err != nil {
		return err
	}
	pending := 0
	for _, g := range groups {
		if g.Envelope == "" {
			continue
		}
		members, err := r.groups.ListMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.HasKey || m.UserID == s.UserID {
				continue
			}
			r.deliver(s, model.EventKeyRequested, model.KeyRequested{
				GroupID:            g.ID,
				RequesterID:        m.UserID,
				RequesterName:      m.Username,
				RequesterPublicKey: m.PublicKey,
			})
			pending++
		}
	}
	if pending > 0 {
		r.log.Debug("pending key requests sent", zap.String("user", s.UserID.String()), zap.Int("count", pending))
	}
	return nil
}

// Handle dispatches one inbound event. Failures are reported to s as an
// error event and never end the session.
func (r *Relay) Handle(ctx context.Context, s *Session, ev model.Event) {
	h, ok := handlers[ev.Name]
	if !ok {
		r.reject(s, ev.Name, errs.ErrInvalidArgument, "unknown event")
		return
	}
	if err := h(r, ctx, s, ev); err != nil {
		r.reject(s, ev.Name, err, "")
	}
}

// SendToUser delivers an event to the user's session if online. It reports
// whether the event was queued.
func (r *Relay) SendToUser(userID uuid.UUID, name string, payload any) bool {
	s, ok := r.reg.Lookup(userID)
	if !ok {
		return false
	}
	return r.deliver(s, name, payload)
}

// BroadcastToGroup delivers an event to every session in the group room
// except the one of skip. It returns the number of sessions reached.
func (r *Relay) BroadcastToGroup(groupID uuid.UUID, name string, payload any, skip uuid.UUID) int {
	ev, err := model.NewEvent(name, payload)
	if err != nil {
		r.log.Error("encode event", zap.String("event", name), zap.Error(err))
		return 0
	}
	n := 0
	for _, s := range r.reg.RoomMembers(groupID) {
		if s.UserID == skip {
			continue
		}
		if s.Deliver(ev) {
			n++
		} else {
			r.log.Warn("event dropped", zap.String("event", name), zap.String("user", s.UserID.String()))
		}
	}
	return n
}

// LeaveRoom takes the user out of the group room, e.g. after leaving the group.
func (r *Relay) LeaveRoom(groupID, userID uuid.UUID) { r.reg.LeaveRoom(groupID, userID) }

func (r *Relay) deliver(s *Session, name string, payload any) bool {
	ev, err := model.NewEvent(name, payload)
	if err != nil {
		r.log.Error("encode event", zap.String("event", name), zap.Error(err))
		return false
	}
	if !s.Deliver(ev) {
		r.log.Warn("event dropped", zap.String("event", name), zap.String("user", s.UserID.String()))
		return false
	}
	return true
}

func (r *Relay) reject(s *Session, event string, err error, msg string) {
	code := errorCode(err)
	if msg == "" {
		msg = err.Error()
	}
	if code == model.CodeInternal {
		r.log.Error("event failed", zap.String("event", event), zap.String("user", s.UserID.String()), zap.Error(err))
		msg = "internal error"
	} else {
		r.log.Debug("event rejected", zap.String("event", event), zap.String("code", code), zap.Error(err))
	}
	r.deliver(s, model.EventError, model.ErrorPayload{Event: event, Code: code, Message: msg})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return model.CodeInvalid
	case errors.Is(err, errs.ErrNotEnrolled):
		return model.CodeNotEnrolled
	case errors.Is(err, errs.ErrNotAuthorized):
		return model.CodeNotAuthorized
	case errors.Is(err, errs.ErrNotFound):
		return model.CodeNotFound
	default:
		return model.CodeInternal
	}
}
