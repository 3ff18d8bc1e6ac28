package client

import (
	"sync"

	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/gofrs/uuid/v5"
)

// KeyState is the key distribution state of one group on this client.
type KeyState int

const (
	NoKey KeyState = iota
	KeyRequested
	KeyReceived
)

func (s KeyState) String() string {
	switch s {
	case NoKey:
		return "no key"
	case KeyRequested:
		return "key requested"
	case KeyReceived:
		return "key received"
	default:
		return "unknown"
	}
}

type keySlot struct {
	state KeyState
	key   e2e.GroupKey
}

// Keyring holds the group keys of the session in memory. Keys are never
// written anywhere by the keyring itself.
type Keyring struct {
	mu    sync.RWMutex
	slots map[uuid.UUID]keySlot
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{slots: make(map[uuid.UUID]keySlot)}
}

// State returns NoKey for unknown groups.
func (k *Keyring) State(groupID uuid.UUID) KeyState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.slots[groupID].state
}

// Key returns the group key once it has been received.
func (k *Keyring) Key(groupID uuid.UUID) (e2e.GroupKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.slots[groupID]
	if !ok || s.state != KeyReceived {
		return e2e.GroupKey{}, false
	}
	return s.key, true
}

// MarkRequested moves NoKey to KeyRequested. It reports false when the key is
// already held.
func (k *Keyring) MarkRequested(groupID uuid.UUID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[groupID]
	if s.state == KeyReceived {
		return false
	}
	s.state = KeyRequested
	k.slots[groupID] = s
	return true
}

// Set stores the key. The first key wins: a later Set for a group already in
// KeyReceived is ignored and reported as false.
func (k *Keyring) Set(groupID uuid.UUID, key e2e.GroupKey) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.slots[groupID].state == KeyReceived {
		return false
	}
	k.slots[groupID] = keySlot{state: KeyReceived, key: key}
	return true
}

// Forget drops every trace of the group.
func (k *Keyring) Forget(groupID uuid.UUID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.slots, groupID)
}

// Reset drops all keys, e.g. on logout.
func (k *Keyring) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.slots)
}
