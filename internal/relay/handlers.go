package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

func decode(ev model.Event, v any) error {
	if err := ev.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed %s payload", errs.ErrInvalidArgument, ev.Name)
	}
	return nil
}

func invalid(what string) error { return fmt.Errorf("%w: %s", errs.ErrInvalidArgument, what) }

// requireMember maps a missing membership to errs.ErrNotEnrolled.
func (r *Relay) requireMember(ctx context.Context, groupID, userID uuid.UUID) (*model.Membership, error) {
	m, err := r.groups.GetMembership(ctx, groupID, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNotEnrolled
	}
	return m, err
}

// requireFriend maps a missing or pending friendship to errs.ErrNotAuthorized.
func (r *Relay) requireFriend(ctx context.Context, userID, otherID uuid.UUID) error {
	f, err := r.friends.Between(ctx, userID, otherID)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && f.Status != model.FriendAccepted) {
		return fmt.Errorf("%w: not friends with this user", errs.ErrNotAuthorized)
	}
	return err
}

func (r *Relay) handlePrivate(ctx context.Context, s *Session, ev model.Event) error {
	var in model.SendPrivate
	if err := decode(ev, &in); err != nil {
		return err
	}
	if in.ReceiverID == uuid.Nil || in.EncryptedContent == "" || in.Nonce == "" {
		return invalid("receiverId, encryptedContent and nonce are required")
	}
	if err := r.requireFriend(ctx, s.UserID, in.ReceiverID); err != nil {
		return err
	}

	msg := &model.Message{
		SenderID:   s.UserID,
		ReceiverID: uuid.NullUUID{UUID: in.ReceiverID, Valid: true},
		Ciphertext: in.EncryptedContent,
		Nonce:      in.Nonce,
		Status:     model.StatusSent,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return err
	}

	if r.SendToUser(in.ReceiverID, model.EventPrivateMessage, model.MessagePayloadFrom(*msg)) {
		if err := r.messages.SetStatus(ctx, msg.ID, model.StatusDelivered); err != nil {
			r.log.Warn("mark delivered", zap.Int64("message", msg.ID), zap.Error(err))
		} else {
			msg.Status = model.StatusDelivered
		}
	}
	r.deliver(s, model.EventPrivateSent, model.MessagePayloadFrom(*msg))
	return nil
}

func (r *Relay) handleGroup(ctx context.Context, s *Session, ev model.Event) error {
	var in model.SendGroup
	if err := decode(ev, &in); err != nil {
		return err
	}
	if in.GroupID == uuid.Nil || in.EncryptedContent == "" || in.Nonce == "" {
		return invalid("groupId, encryptedContent and nonce are required")
	}
	if _, err := r.requireMember(ctx, in.GroupID, s.UserID); err != nil {
		return err
	}

	msg := &model.Message{
		SenderID:   s.UserID,
		GroupID:    uuid.NullUUID{UUID: in.GroupID, Valid: true},
		Ciphertext: in.EncryptedContent,
		Nonce:      in.Nonce,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return err
	}
	if msg.SenderName == "" {
		if u, err := r.users.GetByID(ctx, s.UserID); err == nil {
			msg.SenderName = u.Username
		}
	}

	r.reg.JoinRoom(in.GroupID, s.UserID)
	r.BroadcastToGroup(in.GroupID, model.EventGroupMessage, model.MessagePayloadFrom(*msg), uuid.Nil)
	return nil
}

func (r *Relay) handleTyping(ctx context.Context, s *Session, ev model.Event) error {
	var in model.Typing
	if err := decode(ev, &in); err != nil {
		return err
	}
	out := model.Typing{UserID: s.UserID, IsTyping: in.IsTyping}
	switch {
	case in.ReceiverID != nil:
		if err := r.requireFriend(ctx, s.UserID, *in.ReceiverID); err != nil {
			return err
		}
		r.SendToUser(*in.ReceiverID, model.EventTyping, out)
	case in.GroupID != nil:
		if _, err := r.requireMember(ctx, *in.GroupID, s.UserID); err != nil {
			return err
		}
		out.GroupID = in.GroupID
		r.BroadcastToGroup(*in.GroupID, model.EventTyping, out, s.UserID)
	default:
		return invalid("receiverId or groupId is required")
	}
	return nil
}

func (r *Relay) handleRead(ctx context.Context, s *Session, ev model.Event) error {
	var in model.ReadReceipt
	if err := decode(ev, &in); err != nil {
		return err
	}
	if len(in.MessageIDs) == 0 {
		return nil
	}
	if in.SenderID != nil {
		if err := r.requireFriend(ctx, s.UserID, *in.SenderID); err != nil {
			return err
		}
	}
	if _, err := r.messages.MarkRead(ctx, s.UserID, in.MessageIDs); err != nil {
		return err
	}
	if in.SenderID != nil {
		r.SendToUser(*in.SenderID, model.EventRead, model.ReadReceipt{MessageIDs: in.MessageIDs, ReadBy: s.UserID})
	}
	return nil
}

func (r *Relay) handleEdit(ctx context.Context, s *Session, ev model.Event) error {
	var in model.EditMessage
	if err := decode(ev, &in); err != nil {
		return err
	}
	if in.MessageID <= 0 || in.EncryptedContent == "" || in.Nonce == "" {
		return invalid("messageId, encryptedContent and nonce are required")
	}
	msg, err := r.messages.Get(ctx, in.MessageID)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && msg.SenderID != s.UserID) {
		return fmt.Errorf("%w: cannot edit this message", errs.ErrNotAuthorized)
	}
	if err != nil {
		return err
	}

	editedAt := r.now().UTC()
	if err := r.messages.UpdateContent(ctx, msg.ID, in.EncryptedContent, in.Nonce, editedAt); err != nil {
		return err
	}
	out := model.MessageEdited{MessageID: msg.ID, EncryptedContent: in.EncryptedContent, Nonce: in.Nonce, EditedAt: editedAt}
	r.notifyOtherSide(*msg, s.UserID, model.EventEdited, out)
	r.deliver(s, model.EventEdited, out)
	return nil
}

func (r *Relay) handleDelete(ctx context.Context, s *Session, ev model.Event) error {
	var in model.DeleteMessage
	if err := decode(ev, &in); err != nil {
		return err
	}
	if in.MessageID <= 0 {
		return invalid("messageId is required")
	}
	msg, err := r.messages.Get(ctx, in.MessageID)
	if err != nil {
		return err
	}
	isSender := msg.SenderID == s.UserID
	isReceiver := msg.ReceiverID.Valid && msg.ReceiverID.UUID == s.UserID
	if !isSender && !isReceiver {
		return fmt.Errorf("%w: cannot delete this message", errs.ErrNotAuthorized)
	}

	forBoth := in.ForBoth && isSender
	if forBoth {
		if err := r.messages.Delete(ctx, msg.ID); err != nil {
			return err
		}
		r.notifyOtherSide(*msg, s.UserID, model.EventDeleted, model.MessageDeleted{MessageID: msg.ID, DeletedForBoth: true})
	} else if err := r.messages.HideFor(ctx, msg.ID, s.UserID); err != nil {
		return err
	}
	r.deliver(s, model.EventDeleted, model.MessageDeleted{MessageID: msg.ID, DeletedForBoth: forBoth})
	return nil
}

// notifyOtherSide pushes to the peer of a private message or to the group room.
func (r *Relay) notifyOtherSide(msg model.Message, self uuid.UUID, name string, payload any) {
	switch {
	case msg.IsGroup():
		r.BroadcastToGroup(msg.GroupID.UUID, name, payload, self)
	case msg.ReceiverID.Valid:
		peer := msg.ReceiverID.UUID
		if peer == self {
			peer = msg.SenderID
		}
		r.SendToUser(peer, name, payload)
	}
}

func (r *Relay) handleJoinGroups(ctx context.Context, s *Session, _ model.Event) error {
	groups, err := r.groups.ListForUser(ctx, s.UserID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		r.reg.JoinRoom(g.ID, s.UserID)
	}
	return nil
}

// handleKeyRequest forwards a keyless member's request to every online member
// that holds the key, and joins the requester to the group room.
func (r *Relay) handleKeyRequest(ctx context.Context, s *Session, ev model.Event) error {
	var in model.KeyRequest
	if err := decode(ev, &in); err != nil {
		return err
	}
	if in.GroupID == uuid.Nil {
		return invalid("groupId is required")
	}
	if _, err := r.requireMember(ctx, in.GroupID, s.UserID); err != nil {
		return err
	}
	u, err := r.users.GetByID(ctx, s.UserID)
	if err != nil {
		return err
	}
	switch in.PublicKey {
	case "":
		in.PublicKey = u.PublicKey
	case u.PublicKey:
	default:
		return invalid("publicKey does not match the registered key")
	}

	members, err := r.groups.ListMembers(ctx, in.GroupID)
	if err != nil {
		return err
	}
	req := model.KeyRequested{
		GroupID:            in.GroupID,
		RequesterID:        s.UserID,
		RequesterName:      u.Username,
		RequesterPublicKey: in.PublicKey,
	}
	sent := 0
	for _, m := range members {
		if !m.HasKey || m.UserID == s.UserID {
			continue
		}
		if r.SendToUser(m.UserID, model.EventKeyRequested, req) {
			sent++
		}
	}
	r.log.Debug("key request fanned out", zap.String("group", in.GroupID.String()),
		zap.String("requester", s.UserID.String()), zap.Int("holders_online", sent))

	r.reg.JoinRoom(in.GroupID, s.UserID)
	return nil
}

// handleKeyShare persists the first share for a keyless target and pushes the
// share to the target if online. Later shares are not persisted.
func (r *Relay) handleKeyShare(ctx context.Context, s *Session, ev model.Event) error {
	var in model.KeyShare
	if err := decode(ev, &in); err != nil {
		return err
	}
	if in.GroupID == uuid.Nil || in.TargetUserID == uuid.Nil || in.EncryptedGroupKey == "" || in.SharerPublicKey == "" {
		return invalid("groupId, targetUserId, encryptedGroupKey and sharerPublicKey are required")
	}

	sharer, err := r.groups.GetMembership(ctx, in.GroupID, s.UserID)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && !sharer.HasKey()) {
		return fmt.Errorf("%w: you do not have the group key", errs.ErrNotAuthorized)
	}
	if err != nil {
		return err
	}
	target, err := r.groups.GetMembership(ctx, in.GroupID, in.TargetUserID)
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%w: target is not a member of this group", errs.ErrNotEnrolled)
	}
	if err != nil {
		return err
	}

	log := r.log.With(zap.String("group", in.GroupID.String()), zap.String("target", in.TargetUserID.String()),
		zap.String("sharer", s.UserID.String()))
	if !target.HasKey() {
		env, err := model.KeyEnvelope{Key: in.EncryptedGroupKey, SharedBy: in.SharerPublicKey}.Encode()
		if err != nil {
			return invalid(err.Error())
		}
		switch err := r.groups.SetEnvelopeIfEmpty(ctx, in.GroupID, in.TargetUserID, env); {
		case err == nil:
			log.Debug("key share persisted")
		case errors.Is(err, errs.ErrVersionConflict):
			log.Debug("key share not persisted, target already holds a key")
		default:
			return err
		}
	} else {
		log.Debug("key share not persisted, target already holds a key")
	}

	r.SendToUser(in.TargetUserID, model.EventKeyReceived, model.KeyReceived{
		GroupID:           in.GroupID,
		EncryptedGroupKey: in.EncryptedGroupKey,
		SharerPublicKey:   in.SharerPublicKey,
		SharerID:          s.UserID,
	})
	return nil
}
