package client

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Rendered is a message as shown to the user. When OK is false Text holds
// one of the e2e placeholders.
type Rendered struct {
	ID         int64
	SenderID   uuid.UUID
	SenderName string
	PeerID     uuid.NullUUID
	GroupID    uuid.NullUUID
	Text       string
	OK         bool
	NoKey      bool
	Outgoing   bool
	Status     model.MessageStatus
	CreatedAt  time.Time
	EditedAt   *time.Time
}

// Render decrypts a message. It never fails: undecryptable content renders
// as e2e.FailedPlaceholder and a group message without a key as
// e2e.NoKeyPlaceholder. The latter is remembered and decrypted again by
// Rerender once the key arrives.
func (c *Client) Render(ctx context.Context, m model.Message) Rendered {
	self := c.Account().UserID
	r := Rendered{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		GroupID:    m.GroupID,
		Outgoing:   m.SenderID == self,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		EditedAt:   m.EditedAt,
	}

	if m.ID != 0 {
		c.seen.Add(m.ID, m)
	}

	sealed := e2e.Sealed{Nonce: m.Nonce, Encrypted: m.Ciphertext}
	if m.IsGroup() {
		key, ok := c.keys.Key(m.GroupID.UUID)
		if !ok {
			r.Text, r.NoKey = e2e.NoKeyPlaceholder, true
			c.addPending(m.GroupID.UUID, m.ID)
			return r
		}
		pt := e2e.DecryptGroupMessage(sealed, key)
		r.Text, r.OK = pt.String(), pt.OK()
		return r
	}

	peer := m.SenderID
	if r.Outgoing {
		peer = m.ReceiverID.UUID
	}
	r.PeerID = uuid.NullUUID{UUID: peer, Valid: true}

	id, err := c.identity()
	if err != nil {
		r.Text = e2e.FailedPlaceholder
		return r
	}
	pub, err := c.peerKey(ctx, peer)
	if err != nil {
		c.log.Debug("peer key unavailable", zap.String("peer", peer.String()), zap.Error(err))
		r.Text = e2e.FailedPlaceholder
		return r
	}
	// Box keys are symmetric: both sides open with (peer public, own private).
	pt := e2e.DecryptMessage(sealed, pub, id.Private)
	r.Text, r.OK = pt.String(), pt.OK()
	return r
}

// Rerender decrypts the group messages that were rendered without a key.
func (c *Client) Rerender(ctx context.Context, groupID uuid.UUID) []Rendered {
	if _, ok := c.keys.Key(groupID); !ok {
		return nil
	}
	c.mu.Lock()
	ids := c.pending[groupID]
	delete(c.pending, groupID)
	c.mu.Unlock()
	msgs := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.seenMessage(id); ok {
			msgs = append(msgs, m)
		}
	}

	out := make([]Rendered, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, c.Render(ctx, m))
	}
	return out
}

// addPending remembers id for Rerender. Ids already evicted from the seen
// cache are dropped on the way, so pending never outgrows it.
func (c *Client) addPending(groupID uuid.UUID, id int64) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.pending[groupID][:0]
	for _, p := range c.pending[groupID] {
		if p == id {
			return
		}
		if c.seen.Contains(p) {
			kept = append(kept, p)
		}
	}
	c.pending[groupID] = append(kept, id)
}

func (c *Client) seenMessage(id int64) (model.Message, bool) {
	v, ok := c.seen.Get(id)
	if !ok {
		return model.Message{}, false
	}
	return v.(model.Message), true
}

// peerKey returns the public key of a user, cached for the session.
func (c *Client) peerKey(ctx context.Context, userID uuid.UUID) (e2e.PublicKey, error) {
	c.mu.Lock()
	pub, ok := c.peerKeys[userID]
	c.mu.Unlock()
	if ok {
		return pub, nil
	}
	raw, err := c.b.PublicKey(ctx, userID)
	if err != nil {
		return e2e.PublicKey{}, err
	}
	pub, err = e2e.ParsePublicKey(raw)
	if err != nil {
		return e2e.PublicKey{}, err
	}
	c.mu.Lock()
	c.peerKeys[userID] = pub
	c.mu.Unlock()
	return pub, nil
}

// History loads and renders a page of a conversation, newest first.
func (c *Client) History(ctx context.Context, q model.HistoryQuery) ([]Rendered, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}
	msgs, err := c.b.History(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]Rendered, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, c.Render(ctx, m))
	}
	return out, nil
}

// SendPrivate encrypts text for the peer and sends it.
func (c *Client) SendPrivate(ctx context.Context, to uuid.UUID, text string) error {
	sealed, err := c.sealPrivate(ctx, to, text)
	if err != nil {
		return err
	}
	return c.send(model.EventPrivateMessage, model.SendPrivate{
		ReceiverID:       to,
		EncryptedContent: sealed.Encrypted,
		Nonce:            sealed.Nonce,
	})
}

// SendGroup encrypts text under the group key. Without the key it fails
// with errs.ErrNoGroupKey.
func (c *Client) SendGroup(groupID uuid.UUID, text string) error {
	sealed, err := c.sealGroup(groupID, text)
	if err != nil {
		return err
	}
	return c.send(model.EventGroupMessage, model.SendGroup{
		GroupID:          groupID,
		EncryptedContent: sealed.Encrypted,
		Nonce:            sealed.Nonce,
	})
}

func (c *Client) sealPrivate(ctx context.Context, to uuid.UUID, text string) (e2e.Sealed, error) {
	id, err := c.identity()
	if err != nil {
		return e2e.Sealed{}, err
	}
	pub, err := c.peerKey(ctx, to)
	if err != nil {
		return e2e.Sealed{}, fmt.Errorf("peer key: %w", err)
	}
	return e2e.EncryptMessage(text, id.Private, pub)
}

func (c *Client) sealGroup(groupID uuid.UUID, text string) (e2e.Sealed, error) {
	key, ok := c.keys.Key(groupID)
	if !ok {
		return e2e.Sealed{}, errs.ErrNoGroupKey
	}
	return e2e.EncryptGroupMessage(text, key)
}

// EditMessage replaces the text of one of our own messages, sealed with the
// same scheme as the message it replaces.
func (c *Client) EditMessage(ctx context.Context, messageID int64, text string) error {
	m, err := c.ownMessage(messageID)
	if err != nil {
		return err
	}
	in := model.EditMessage{MessageID: messageID}
	var sealed e2e.Sealed
	if m.IsGroup() {
		gid := m.GroupID.UUID
		in.GroupID = &gid
		sealed, err = c.sealGroup(gid, text)
	} else {
		rid := m.ReceiverID.UUID
		in.ReceiverID = &rid
		sealed, err = c.sealPrivate(ctx, rid, text)
	}
	if err != nil {
		return err
	}
	in.EncryptedContent, in.Nonce = sealed.Encrypted, sealed.Nonce
	return c.send(model.EventEdit, in)
}

// DeleteMessage deletes a message for both sides (own messages only) or
// hides it for us.
func (c *Client) DeleteMessage(messageID int64, forBoth bool) error {
	m, ok := c.seenMessage(messageID)
	if !ok {
		return errs.ErrNotFound
	}
	if forBoth && m.SenderID != c.Account().UserID {
		return errs.ErrNotAuthorized
	}
	in := model.DeleteMessage{MessageID: messageID, ForBoth: forBoth}
	if m.IsGroup() {
		gid := m.GroupID.UUID
		in.GroupID = &gid
	} else {
		rid := m.ReceiverID.UUID
		in.ReceiverID = &rid
	}
	return c.send(model.EventDelete, in)
}

// MarkRead marks private messages from sender as read.
func (c *Client) MarkRead(sender uuid.UUID, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.send(model.EventRead, model.ReadReceipt{MessageIDs: ids, SenderID: &sender})
}

// SetTyping sends a typing indicator to a peer or a group.
func (c *Client) SetTyping(peer, group uuid.NullUUID, typing bool) error {
	in := model.Typing{IsTyping: typing}
	switch {
	case peer.Valid:
		in.ReceiverID = &peer.UUID
	case group.Valid:
		in.GroupID = &group.UUID
	default:
		return fmt.Errorf("%w: peer or group required", errs.ErrInvalidArgument)
	}
	return c.send(model.EventTyping, in)
}

func (c *Client) ownMessage(id int64) (model.Message, error) {
	m, ok := c.seenMessage(id)
	if !ok {
		return model.Message{}, errs.ErrNotFound
	}
	if m.SenderID != c.Account().UserID {
		return model.Message{}, errs.ErrNotAuthorized
	}
	return m, nil
}

func (c *Client) applyEdit(ctx context.Context, ev model.Event, in model.MessageEdited) {
	m, ok := c.seenMessage(in.MessageID)
	if !ok {
		c.emit(Update{Event: ev.Name, MessageID: in.MessageID, Raw: ev})
		return
	}
	m.Ciphertext, m.Nonce = in.EncryptedContent, in.Nonce
	edited := in.EditedAt
	m.EditedAt = &edited
	r := c.Render(ctx, m)
	c.emit(Update{Event: ev.Name, Message: &r, MessageID: in.MessageID, Raw: ev})
}
