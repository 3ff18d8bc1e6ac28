// Package memory provides in-process implementations of the repository
// interfaces. It backs the server in -dev mode and the service tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type memberKey struct{ group, user uuid.UUID }

// Store holds all tables behind one mutex.
type Store struct {
	mu sync.RWMutex

	users     map[uuid.UUID]model.User
	byName    map[string]uuid.UUID
	byFriend  map[string]uuid.UUID
	groups    map[uuid.UUID]model.Group
	byCode    map[string]uuid.UUID
	members   map[memberKey]model.Membership
	messages  map[int64]model.Message
	lastMsgID int64
	friends   map[int64]model.Friendship
	lastFrID  int64
	now       func() time.Time
	last      time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]model.User),
		byName:   make(map[string]uuid.UUID),
		byFriend: make(map[string]uuid.UUID),
		groups:   make(map[uuid.UUID]model.Group),
		byCode:   make(map[string]uuid.UUID),
		members:  make(map[memberKey]model.Membership),
		messages: make(map[int64]model.Message),
		friends:  make(map[int64]model.Friendship),
		now:      time.Now,
	}
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return (*userStore)(s) }

// Groups returns the group repository view.
func (s *Store) Groups() repository.GroupRepository { return (*groupStore)(s) }

// Messages returns the message repository view.
func (s *Store) Messages() repository.MessageRepository { return (*messageStore)(s) }

// Friends returns the friendship repository view.
func (s *Store) Friends() repository.FriendRepository { return (*friendStore)(s) }

// tick returns a strictly increasing timestamp so that ordering by time is
// stable within one store. Callers hold the write lock.
func (s *Store) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

type userStore Store

func (u *userStore) Create(_ context.Context, usr *model.User) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[usr.Username]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := s.users[usr.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if usr.FriendCode != "" {
		if _, ok := s.byFriend[usr.FriendCode]; ok {
			return errs.ErrCodeTaken
		}
		s.byFriend[usr.FriendCode] = usr.ID
	}
	usr.CreatedAt = s.tick()
	s.users[usr.ID] = *usr
	s.byName[usr.Username] = usr.ID
	return nil
}

func (u *userStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	defer s.mu.RUnlock()
	usr, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &usr, nil
}

func (u *userStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	id, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u.GetByID(ctx, id)
}

func (u *userStore) GetByFriendCode(ctx context.Context, code string) (*model.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	id, ok := s.byFriend[code]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u.GetByID(ctx, id)
}

func (u *userStore) UpdateCredentials(_ context.Context, id uuid.UUID, pwdHash, saltAuth []byte, wrapped string) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	usr, ok := s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	usr.PwdHash = slices.Clone(pwdHash)
	usr.SaltAuth = slices.Clone(saltAuth)
	usr.WrappedPrivateKey = wrapped
	s.users[id] = usr
	return nil
}

type friendStore Store

func (fs *friendStore) Create(_ context.Context, f *model.Friendship) error {
	s := (*Store)(fs)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[f.RequesterID]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := s.users[f.AddresseeID]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := s.pair(f.RequesterID, f.AddresseeID); ok {
		return errs.ErrAlreadyExists
	}
	if f.Status == "" {
		f.Status = model.FriendPending
	}
	s.lastFrID++
	f.ID = s.lastFrID
	f.CreatedAt = s.tick()
	s.friends[f.ID] = *f
	return nil
}

// pair finds the row of two users in either direction. Callers hold the lock.
func (s *Store) pair(a, b uuid.UUID) (model.Friendship, bool) {
	for _, f := range s.friends {
		if f.Involves(a) && f.Involves(b) {
			return f, true
		}
	}
	return model.Friendship{}, false
}

func (fs *friendStore) Between(_ context.Context, a, b uuid.UUID) (*model.Friendship, error) {
	s := (*Store)(fs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.pair(a, b)
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &f, nil
}

func (fs *friendStore) Accept(_ context.Context, id int64, addresseeID uuid.UUID) (*model.Friendship, error) {
	s := (*Store)(fs)
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.friends[id]
	if !ok || f.AddresseeID != addresseeID || f.Status != model.FriendPending {
		return nil, errs.ErrNotFound
	}
	f.Status = model.FriendAccepted
	s.friends[id] = f
	return &f, nil
}

func (fs *friendStore) Delete(_ context.Context, id int64, userID uuid.UUID) (*model.Friendship, error) {
	s := (*Store)(fs)
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.friends[id]
	if !ok || !f.Involves(userID) {
		return nil, errs.ErrNotFound
	}
	delete(s.friends, id)
	return &f, nil
}

func (fs *friendStore) List(_ context.Context, userID uuid.UUID) ([]model.Friend, error) {
	s := (*Store)(fs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Friend
	for _, f := range s.friends {
		if !f.Involves(userID) {
			continue
		}
		u := s.users[f.Other(userID)]
		out = append(out, model.Friend{
			FriendshipID: f.ID,
			Status:       f.Status,
			RequesterID:  f.RequesterID,
			UserID:       u.ID,
			Username:     u.Username,
			FriendCode:   u.FriendCode,
			PublicKey:    u.PublicKey,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FriendshipID < out[j].FriendshipID })
	return out, nil
}

func (fs *friendStore) FriendIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s := (*Store)(fs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for _, f := range s.friends {
		if f.Status == model.FriendAccepted && f.Involves(userID) {
			out = append(out, f.Other(userID))
		}
	}
	return out, nil
}

type groupStore Store

func (g *groupStore) Create(_ context.Context, grp *model.Group, creator model.Membership) error {
	s := (*Store)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[grp.Code]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := s.users[grp.CreatorID]; !ok {
		return errs.ErrNotFound
	}
	now := s.tick()
	grp.CreatedAt = now
	s.groups[grp.ID] = *grp
	s.byCode[grp.Code] = grp.ID
	creator.GroupID = grp.ID
	creator.JoinedAt = now
	s.members[memberKey{grp.ID, creator.UserID}] = creator
	return nil
}

func (g *groupStore) GetByCode(ctx context.Context, code string) (*model.Group, error) {
	s := (*Store)(g)
	s.mu.RLock()
	id, ok := s.byCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return g.GetByID(ctx, id)
}

func (g *groupStore) GetByID(_ context.Context, id uuid.UUID) (*model.Group, error) {
	s := (*Store)(g)
	s.mu.RLock()
	defer s.mu.RUnlock()
	grp, ok := s.groups[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &grp, nil
}

func (g *groupStore) AddMember(_ context.Context, m model.Membership) error {
	s := (*Store)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[m.GroupID]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := s.users[m.UserID]; !ok {
		return errs.ErrNotFound
	}
	k := memberKey{m.GroupID, m.UserID}
	if _, ok := s.members[k]; ok {
		return errs.ErrAlreadyExists
	}
	m.JoinedAt = s.tick()
	s.members[k] = m
	return nil
}

func (g *groupStore) GetMembership(_ context.Context, groupID, userID uuid.UUID) (*model.Membership, error) {
	s := (*Store)(g)
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{groupID, userID}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &m, nil
}

func (g *groupStore) ListForUser(_ context.Context, userID uuid.UUID) ([]model.UserGroup, error) {
	s := (*Store)(g)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.UserGroup
	for k, m := range s.members {
		if k.user != userID {
			continue
		}
		out = append(out, model.UserGroup{Group: s.groups[k.group], Role: m.Role, Envelope: m.Envelope})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (g *groupStore) ListMembers(_ context.Context, groupID uuid.UUID) ([]model.Member, error) {
	s := (*Store)(g)
	s.mu.RLock()
	defer s.mu.RUnlock()
	type row struct {
		model.Member
		joined time.Time
	}
	var rows []row
	for k, m := range s.members {
		if k.group != groupID {
			continue
		}
		u := s.users[k.user]
		rows = append(rows, row{
			Member: model.Member{
				UserID:    u.ID,
				Username:  u.Username,
				PublicKey: u.PublicKey,
				Role:      m.Role,
				HasKey:    m.HasKey(),
			},
			joined: m.JoinedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].joined.Before(rows[j].joined) })
	out := make([]model.Member, len(rows))
	for i, r := range rows {
		out[i] = r.Member
	}
	return out, nil
}

func (g *groupStore) SetEnvelopeIfEmpty(_ context.Context, groupID, userID uuid.UUID, envelope string) error {
	s := (*Store)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{groupID, userID}
	m, ok := s.members[k]
	if !ok || m.HasKey() {
		return errs.ErrVersionConflict
	}
	m.Envelope = envelope
	s.members[k] = m
	return nil
}

func (g *groupStore) ReplaceEnvelope(_ context.Context, groupID, userID uuid.UUID, envelope string) error {
	s := (*Store)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{groupID, userID}
	m, ok := s.members[k]
	if !ok {
		return errs.ErrNotFound
	}
	m.Envelope = envelope
	s.members[k] = m
	return nil
}

func (g *groupStore) RemoveMember(_ context.Context, groupID, userID uuid.UUID) (bool, error) {
	s := (*Store)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{groupID, userID}
	if _, ok := s.members[k]; !ok {
		return false, errs.ErrNotFound
	}
	delete(s.members, k)
	for mk := range s.members {
		if mk.group == groupID {
			return false, nil
		}
	}
	for id, msg := range s.messages {
		if msg.GroupID.Valid && msg.GroupID.UUID == groupID {
			delete(s.messages, id)
		}
	}
	delete(s.byCode, s.groups[groupID].Code)
	delete(s.groups, groupID)
	return true, nil
}

type messageStore Store

func (ms *messageStore) Create(_ context.Context, m *model.Message) error {
	s := (*Store)(ms)
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.users[m.SenderID]
	if !ok {
		return errs.ErrNotFound
	}
	if m.ReceiverID.Valid {
		if _, ok := s.users[m.ReceiverID.UUID]; !ok {
			return errs.ErrNotFound
		}
	}
	if m.GroupID.Valid {
		if _, ok := s.groups[m.GroupID.UUID]; !ok {
			return errs.ErrNotFound
		}
	}
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	s.lastMsgID++
	m.ID = s.lastMsgID
	m.CreatedAt = s.tick()
	m.SenderName = sender.Username
	s.messages[m.ID] = *m
	return nil
}

func (ms *messageStore) Get(_ context.Context, id int64) (*model.Message, error) {
	s := (*Store)(ms)
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	m.SenderName = s.users[m.SenderID].Username
	return &m, nil
}

func (ms *messageStore) update(id int64, fn func(m *model.Message) bool) error {
	s := (*Store)(ms)
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || !fn(&m) {
		return errs.ErrNotFound
	}
	s.messages[id] = m
	return nil
}

func (ms *messageStore) SetStatus(_ context.Context, id int64, status model.MessageStatus) error {
	return ms.update(id, func(m *model.Message) bool { m.Status = status; return true })
}

func (ms *messageStore) MarkRead(_ context.Context, receiverID uuid.UUID, ids []int64) (int64, error) {
	s := (*Store)(ms)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || !m.ReceiverID.Valid || m.ReceiverID.UUID != receiverID {
			continue
		}
		m.Status = model.StatusRead
		s.messages[id] = m
		n++
	}
	return n, nil
}

func (ms *messageStore) UpdateContent(_ context.Context, id int64, ciphertext, nonce string, editedAt time.Time) error {
	return ms.update(id, func(m *model.Message) bool {
		m.Ciphertext, m.Nonce = ciphertext, nonce
		at := editedAt
		m.EditedAt = &at
		return true
	})
}

func (ms *messageStore) Delete(_ context.Context, id int64) error {
	s := (*Store)(ms)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (ms *messageStore) HideFor(_ context.Context, id int64, userID uuid.UUID) error {
	return ms.update(id, func(m *model.Message) bool {
		isSender := m.SenderID == userID
		isReceiver := m.ReceiverID.Valid && m.ReceiverID.UUID == userID
		m.DeletedForSender = m.DeletedForSender || isSender
		m.DeletedForReceiver = m.DeletedForReceiver || isReceiver
		return isSender || isReceiver
	})
}

func (ms *messageStore) History(_ context.Context, q model.HistoryQuery) ([]model.Message, error) {
	if !q.GroupID.Valid && !q.PeerID.Valid {
		return nil, errs.ErrInvalidArgument
	}
	s := (*Store)(ms)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, m := range s.messages {
		if q.Before > 0 && m.ID >= q.Before {
			continue
		}
		if !visible(m, q) {
			continue
		}
		m.SenderName = s.users[m.SenderID].Username
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func visible(m model.Message, q model.HistoryQuery) bool {
	if q.GroupID.Valid {
		return m.GroupID.Valid && m.GroupID.UUID == q.GroupID.UUID
	}
	if !m.ReceiverID.Valid {
		return false
	}
	switch {
	case m.SenderID == q.UserID && m.ReceiverID.UUID == q.PeerID.UUID:
		return !m.DeletedForSender
	case m.SenderID == q.PeerID.UUID && m.ReceiverID.UUID == q.UserID:
		return !m.DeletedForReceiver
	}
	return false
}
