package client

import (
	"context"
	"fmt"

	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// RequestKey asks the enrolled members of a group for its key. It is a no-op
// once the key is held. Holders that are offline get the request from the
// server when they connect.
func (c *Client) RequestKey(groupID uuid.UUID) error {
	id, err := c.identity()
	if err != nil {
		return err
	}
	if c.keys.State(groupID) == KeyReceived {
		return nil
	}
	if err := c.send(model.EventKeyRequest, model.KeyRequest{GroupID: groupID, PublicKey: id.Public.String()}); err != nil {
		return fmt.Errorf("request key: %w", err)
	}
	if c.keys.MarkRequested(groupID) {
		c.emit(Update{Event: model.EventKeyRequest, GroupID: groupID, State: KeyRequested})
	}
	c.log.Debug("group key requested", zap.String("group", groupID.String()))
	return nil
}

// ShareKey answers a key request with our copy of the group key sealed for
// the requester. Without the key there is nothing to share and the request
// is left to other holders.
func (c *Client) ShareKey(req model.KeyRequested) error {
	id, err := c.identity()
	if err != nil {
		return err
	}
	log := c.log.With(zap.String("group", req.GroupID.String()), zap.String("requester", req.RequesterID.String()))

	if req.RequesterID == c.Account().UserID {
		return nil
	}
	key, ok := c.keys.Key(req.GroupID)
	if !ok {
		log.Debug("key request ignored, no key to share")
		return nil
	}
	pub, err := e2e.ParsePublicKey(req.RequesterPublicKey)
	if err != nil {
		return fmt.Errorf("%w: requester public key", errs.ErrInvalidArgument)
	}
	env, err := e2e.EncryptGroupKey(key, pub, id)
	if err != nil {
		return err
	}
	if err := c.send(model.EventKeyShare, model.KeyShare{
		GroupID:           req.GroupID,
		TargetUserID:      req.RequesterID,
		EncryptedGroupKey: env.Key,
		SharerPublicKey:   env.SharedBy,
	}); err != nil {
		return fmt.Errorf("share key: %w", err)
	}
	log.Debug("group key shared")
	return nil
}

// ReceiveKey opens a shared envelope. On success the key is re-wrapped with
// ourselves as sharer and saved, so our stored envelope no longer depends on
// the sharer. Repeated shares after the first are ignored. A share that does
// not open leaves the state unchanged so a later share can still succeed.
func (c *Client) ReceiveKey(ctx context.Context, in model.KeyReceived) error {
	id, err := c.identity()
	if err != nil {
		return err
	}
	log := c.log.With(zap.String("group", in.GroupID.String()), zap.String("sharer", in.SharerID.String()))

	if c.keys.State(in.GroupID) == KeyReceived {
		log.Debug("group key already held, share ignored")
		return nil
	}
	raw, err := model.KeyEnvelope{Key: in.EncryptedGroupKey, SharedBy: in.SharerPublicKey}.Encode()
	if err != nil {
		log.Warn("group key share malformed", zap.Error(err))
		return fmt.Errorf("%w: %v", errs.ErrGroupKeyUnwrapFailed, err)
	}
	key, err := e2e.DecryptStoredGroupKey(raw, id)
	if err != nil {
		log.Warn("group key share could not be opened", zap.Error(err))
		return err
	}
	if !c.keys.Set(in.GroupID, key) {
		return nil
	}

	var (
		saveErr error
		stored  string
	)
	env, err := e2e.EncryptGroupKey(key, id.Public, id)
	if err == nil {
		stored, err = env.Encode()
	}
	if err == nil {
		err = c.b.SaveGroupKey(ctx, in.GroupID, env.Key, env.SharedBy)
	}
	if err != nil {
		log.Warn("group key not saved", zap.Error(err))
		saveErr = fmt.Errorf("save group key: %w", err)
	} else {
		c.mu.Lock()
		if g, ok := c.groups[in.GroupID]; ok {
			g.Envelope = stored
			c.groups[in.GroupID] = g
		}
		c.mu.Unlock()
	}

	log.Info("group key received")
	c.emit(Update{Event: model.EventKeyReceived, GroupID: in.GroupID, State: KeyReceived})
	for _, r := range c.Rerender(ctx, in.GroupID) {
		r := r // per-iteration copy (go1.22 loop semantics)
		c.emit(Update{Event: model.EventGroupMessage, Message: &r, MessageID: r.ID})
	}
	return saveErr
}
