// Package client is the client-side coordinator of the chat: it unlocks the
// user's identity, tracks group keys through the key distribution protocol and
// encrypts/decrypts messages exchanged through a Backend.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/and161185/cipherchat/internal/convert"
	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrLocked is returned by operations that need the private key before Register, Login or Resume.
	ErrLocked = errors.New("client: identity is locked")
	// ErrNotConnected is returned by realtime operations before Connect.
	ErrNotConnected = errors.New("client: not connected")
)

const (
	updatesBuffer = 128
	// maxSeen bounds the messages kept for edit, delete and rerender.
	maxSeen = 2048
)

// Update is a change the UI should show. Message is set for message events;
// GroupID and State for key state changes.
type Update struct {
	Event     string
	Message   *Rendered
	MessageID int64
	GroupID   uuid.UUID
	State     KeyState
	Raw       model.Event
}

// Client is safe for concurrent use; events from the stream are handled one
// at a time by Run.
type Client struct {
	b    Backend
	log  *zap.Logger
	keys *Keyring

	mu       sync.Mutex
	acc      Account
	self     e2e.Identity
	unlocked bool
	stream   Stream
	groups   map[uuid.UUID]model.UserGroup
	peerKeys map[uuid.UUID]e2e.PublicKey
	seen     *lru.Cache            // message id -> model.Message
	pending  map[uuid.UUID][]int64 // group -> ids rendered without a key
	online   map[uuid.UUID]bool    // friends currently online

	updates chan Update
}

// New creates a locked client.
func New(b Backend, log *zap.Logger) *Client {
	return newClient(b, log, maxSeen)
}

func newClient(b Backend, log *zap.Logger, seenSize int) *Client {
	seen, err := lru.New(seenSize)
	if err != nil {
		panic(fmt.Sprintf("client: seen cache: %v", err))
	}
	return &Client{
		b:        b,
		log:      log,
		keys:     NewKeyring(),
		groups:   make(map[uuid.UUID]model.UserGroup),
		peerKeys: make(map[uuid.UUID]e2e.PublicKey),
		seen:     seen,
		pending:  make(map[uuid.UUID][]int64),
		online:   make(map[uuid.UUID]bool),
		updates:  make(chan Update, updatesBuffer),
	}
}

// Updates delivers UI updates. Updates are dropped when nobody reads them.
func (c *Client) Updates() <-chan Update { return c.updates }

// Account returns the logged-in account.
func (c *Client) Account() Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc
}

// PublicKey returns the user's own public key.
func (c *Client) PublicKey() (e2e.PublicKey, error) {
	id, err := c.identity()
	if err != nil {
		return e2e.PublicKey{}, err
	}
	return id.Public, nil
}

// Register creates a fresh identity, wraps it under password and registers it.
func (c *Client) Register(ctx context.Context, username, password string) (Account, error) {
	id, err := e2e.GenerateIdentity()
	if err != nil {
		return Account{}, err
	}
	wrapped, err := e2e.WrapPrivateKey(id.Private, password)
	if err != nil {
		return Account{}, err
	}
	stored, err := wrapped.Encode()
	if err != nil {
		return Account{}, err
	}
	acc, err := c.b.Register(ctx, username, password, id.Public.String(), stored)
	if err != nil {
		return Account{}, fmt.Errorf("register: %w", err)
	}

	c.mu.Lock()
	c.acc = acc
	c.self = id
	c.unlocked = true
	c.mu.Unlock()
	c.log.Info("registered", zap.String("user", acc.UserID.String()))
	return acc, nil
}

// Login authenticates and unlocks the private key with the same password.
func (c *Client) Login(ctx context.Context, username, password string) (Account, error) {
	acc, err := c.b.Login(ctx, username, password)
	if err != nil {
		return Account{}, fmt.Errorf("login: %w", err)
	}
	if err := c.open(ctx, acc, password); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Resume continues a session from a saved token. The password is still needed
// to unlock the private key, which is never stored.
func (c *Client) Resume(ctx context.Context, token, password string) (Account, error) {
	c.b.SetToken(token)
	acc, err := c.b.Me(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("me: %w", err)
	}
	acc.Token = token
	if err := c.open(ctx, acc, password); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// open unlocks the identity while the group list is fetched.
func (c *Client) open(ctx context.Context, acc Account, password string) error {
	var (
		id     e2e.Identity
		groups []model.UserGroup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		id, err = unlock(gctx, acc, password)
		return err
	})
	g.Go(func() (err error) {
		groups, err = c.b.ListGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.acc = acc
	c.self = id
	c.unlocked = true
	c.mu.Unlock()

	c.loadGroups(groups)
	return nil
}

type unlockResult struct {
	id  e2e.Identity
	err error
}

// unlock runs the KDF on its own goroutine so a cancelled ctx returns at once.
// The recovered key must match the published public key.
func unlock(ctx context.Context, acc Account, password string) (e2e.Identity, error) {
	res := make(chan unlockResult, 1)
	go func() {
		priv, err := e2e.UnwrapPrivateKeyString(acc.WrappedPrivateKey, password)
		if err != nil {
			res <- unlockResult{err: err}
			return
		}
		id, err := e2e.IdentityFromPrivate(priv)
		if err == nil && id.Public.String() != acc.PublicKey {
			err = errs.ErrInvalidPasswordOrCorruptData
		}
		res <- unlockResult{id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		return e2e.Identity{}, ctx.Err()
	case r := <-res:
		return r.id, r.err
	}
}

// ChangePassword re-wraps the private key under newPassword.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	id, err := c.identity()
	if err != nil {
		return err
	}
	wrapped, err := e2e.WrapPrivateKey(id.Private, newPassword)
	if err != nil {
		return err
	}
	stored, err := wrapped.Encode()
	if err != nil {
		return err
	}
	if err := c.b.ChangePassword(ctx, oldPassword, newPassword, stored); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	c.mu.Lock()
	c.acc.WrappedPrivateKey = stored
	c.mu.Unlock()
	return nil
}

func (c *Client) identity() (e2e.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.unlocked {
		return e2e.Identity{}, ErrLocked
	}
	return c.self, nil
}

// --- Groups ---

// LoadGroups refreshes the group list and opens every stored envelope.
func (c *Client) LoadGroups(ctx context.Context) ([]model.UserGroup, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}
	groups, err := c.b.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	c.loadGroups(groups)
	return c.Groups(), nil
}

func (c *Client) loadGroups(groups []model.UserGroup) {
	c.mu.Lock()
	self := c.self
	for _, g := range groups {
		c.groups[g.ID] = g
	}
	c.mu.Unlock()

	for _, g := range groups {
		if g.Envelope == "" || c.keys.State(g.ID) == KeyReceived {
			continue
		}
		key, err := e2e.DecryptStoredGroupKey(g.Envelope, self)
		if err != nil {
			c.log.Warn("stored group key not usable", zap.String("group", g.ID.String()), zap.Error(err))
			continue
		}
		c.keys.Set(g.ID, key)
	}
}

// Groups returns the known groups ordered by name.
func (c *Client) Groups() []model.UserGroup {
	c.mu.Lock()
	out := make([]model.UserGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b model.UserGroup) int {
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// CreateGroup generates the group key and stores it wrapped for ourselves.
func (c *Client) CreateGroup(ctx context.Context, name string) (model.UserGroup, error) {
	id, err := c.identity()
	if err != nil {
		return model.UserGroup{}, err
	}
	key, err := e2e.GenerateGroupKey()
	if err != nil {
		return model.UserGroup{}, err
	}
	env, err := e2e.EncryptGroupKey(key, id.Public, id)
	if err != nil {
		return model.UserGroup{}, err
	}
	g, err := c.b.CreateGroup(ctx, name, env.Key, env.SharedBy)
	if err != nil {
		return model.UserGroup{}, fmt.Errorf("create group: %w", err)
	}

	c.mu.Lock()
	c.groups[g.ID] = g
	c.mu.Unlock()
	c.keys.Set(g.ID, key)
	c.log.Debug("group created", zap.String("group", g.ID.String()))
	return g, nil
}

// JoinGroup joins by code. The membership starts without a key; when
// connected, a key request goes out right away.
func (c *Client) JoinGroup(ctx context.Context, code string) (model.UserGroup, error) {
	if _, err := c.identity(); err != nil {
		return model.UserGroup{}, err
	}
	g, err := c.b.JoinGroup(ctx, code)
	if err != nil {
		return model.UserGroup{}, fmt.Errorf("join group: %w", err)
	}
	c.mu.Lock()
	c.groups[g.ID] = g
	connected := c.stream != nil
	c.mu.Unlock()

	if connected {
		if err := c.RequestKey(g.ID); err != nil {
			return g, err
		}
	}
	return g, nil
}

// LeaveGroup leaves and discards all key state of the group.
func (c *Client) LeaveGroup(ctx context.Context, groupID uuid.UUID) (bool, error) {
	deleted, err := c.b.LeaveGroup(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("leave group: %w", err)
	}
	c.mu.Lock()
	delete(c.groups, groupID)
	delete(c.pending, groupID)
	for _, k := range c.seen.Keys() {
		if v, ok := c.seen.Peek(k); ok {
			if m := v.(model.Message); m.GroupID.Valid && m.GroupID.UUID == groupID {
				c.seen.Remove(k)
			}
		}
	}
	c.mu.Unlock()
	c.keys.Forget(groupID)
	return deleted, nil
}

// KeyState reports where the group is in key distribution.
func (c *Client) KeyState(groupID uuid.UUID) KeyState { return c.keys.State(groupID) }

// GroupMembers lists the members of a group.
func (c *Client) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.Member, error) {
	return c.b.GroupMembers(ctx, groupID)
}

// --- Realtime ---

// Connect opens the realtime stream and runs OnConnected.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.identity(); err != nil {
		return err
	}
	st, err := c.b.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.mu.Lock()
	prev := c.stream
	c.stream = st
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return c.OnConnected()
}

// OnConnected joins the group rooms and re-issues a key request for every
// group still without a key. Requests are not remembered across connections:
// holders may only come online later.
func (c *Client) OnConnected() error {
	if err := c.send(model.EventJoinGroups, struct{}{}); err != nil {
		return err
	}
	for _, g := range c.Groups() {
		if c.keys.State(g.ID) == KeyReceived {
			continue
		}
		if err := c.RequestKey(g.ID); err != nil {
			return err
		}
	}
	return nil
}

// Run handles stream events until the stream ends. A clean end or a
// cancelled ctx returns nil.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	st := c.stream
	c.mu.Unlock()
	if st == nil {
		return ErrNotConnected
	}
	for {
		ev, err := st.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.HandleEvent(ctx, ev)
	}
}

// Close closes the stream and forgets all keys.
func (c *Client) Close() error {
	c.mu.Lock()
	st := c.stream
	c.stream = nil
	c.unlocked = false
	c.self = e2e.Identity{}
	c.mu.Unlock()
	c.keys.Reset()
	if st != nil {
		return st.Close()
	}
	return nil
}

func (c *Client) send(name string, payload any) error {
	ev, err := model.NewEvent(name, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	st := c.stream
	c.mu.Unlock()
	if st == nil {
		return ErrNotConnected
	}
	return st.Send(ev)
}

func (c *Client) emit(u Update) {
	select {
	case c.updates <- u:
	default:
		c.log.Debug("update dropped", zap.String("event", u.Event))
	}
}

// HandleEvent applies one event from the stream. Failures are logged; the
// session continues.
func (c *Client) HandleEvent(ctx context.Context, ev model.Event) {
	var err error
	switch ev.Name {
	case model.EventKeyRequested:
		var in model.KeyRequested
		if err = ev.Decode(&in); err == nil {
			err = c.ShareKey(in)
		}
	case model.EventKeyReceived:
		var in model.KeyReceived
		if err = ev.Decode(&in); err == nil {
			err = c.ReceiveKey(ctx, in)
		}
	case model.EventPrivateMessage, model.EventPrivateSent, model.EventGroupMessage:
		var in model.MessagePayload
		if err = ev.Decode(&in); err == nil {
			r := c.Render(ctx, convert.FromPayload(in))
			c.emit(Update{Event: ev.Name, Message: &r, MessageID: r.ID, Raw: ev})
		}
	case model.EventEdited:
		var in model.MessageEdited
		if err = ev.Decode(&in); err == nil {
			c.applyEdit(ctx, ev, in)
		}
	case model.EventDeleted:
		var in model.MessageDeleted
		if err = ev.Decode(&in); err == nil {
			c.seen.Remove(in.MessageID)
			c.emit(Update{Event: ev.Name, MessageID: in.MessageID, Raw: ev})
		}
	case model.EventError:
		var in model.ErrorPayload
		if err = ev.Decode(&in); err == nil {
			c.log.Warn("server rejected event", zap.String("event", in.Event),
				zap.String("code", in.Code), zap.String("message", in.Message))
			c.emit(Update{Event: ev.Name, Raw: ev})
		}
	case model.EventFriendsOnline:
		var in model.FriendsOnline
		if err = ev.Decode(&in); err == nil {
			c.setOnline(in.UserIDs, true, true)
			c.emit(Update{Event: ev.Name, Raw: ev})
		}
	case model.EventUserStatus:
		var in model.UserStatus
		if err = ev.Decode(&in); err == nil {
			c.setOnline([]uuid.UUID{in.UserID}, false, in.Online)
			c.emit(Update{Event: ev.Name, Raw: ev})
		}
	case model.EventTyping, model.EventRead:
		c.emit(Update{Event: ev.Name, Raw: ev})
	default:
		c.log.Debug("unhandled event", zap.String("event", ev.Name))
	}
	if err != nil {
		c.log.Warn("event handling failed", zap.String("event", ev.Name), zap.Error(err))
	}
}
