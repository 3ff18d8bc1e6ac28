package relay

import (
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Registry maps online users to their session and tracks group rooms.
// One registry exists per process and is owned by the Relay.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	rooms    map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		rooms:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Add registers s as the user's session. A previous session of the same user
// is closed and returned; the new session starts with no rooms.
func (r *Registry) Add(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.UserID]
	r.sessions[s.UserID] = s
	r.leaveAllLocked(s.UserID)
	if prev != nil && prev != s {
		prev.Close()
		return prev
	}
	return nil
}

// Remove unregisters s if it is still the user's current session.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.UserID] != s {
		return false
	}
	delete(r.sessions, s.UserID)
	r.leaveAllLocked(s.UserID)
	return true
}

// Lookup returns the user's session if online.
func (r *Registry) Lookup(userID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Online returns the number of connected users.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// JoinRoom adds an online user to a group room. Offline users are ignored.
func (r *Registry) JoinRoom(groupID, userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; !ok {
		return false
	}
	room, ok := r.rooms[groupID]
	if !ok {
		room = make(map[uuid.UUID]struct{})
		r.rooms[groupID] = room
	}
	room[userID] = struct{}{}
	return true
}

// LeaveRoom removes a user from a group room.
func (r *Registry) LeaveRoom(groupID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(groupID, userID)
}

// RoomMembers returns the sessions currently in a group room.
func (r *Registry) RoomMembers(groupID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[groupID]
	out := make([]*Session, 0, len(room))
	for uid := range room {
		if s, ok := r.sessions[uid]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) leaveLocked(groupID, userID uuid.UUID) {
	room, ok := r.rooms[groupID]
	if !ok {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, groupID)
	}
}

func (r *Registry) leaveAllLocked(userID uuid.UUID) {
	for gid := range r.rooms {
		r.leaveLocked(gid, userID)
	}
}
