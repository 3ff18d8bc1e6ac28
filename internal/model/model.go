// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. The private key is only
// ever stored wrapped under a key derived from the user's password on the client.
type User struct {
	ID                uuid.UUID // PK
	Username          string    // unique
	FriendCode        string    // unique short code others use to find the user
	PwdHash           []byte    // Argon2id(password, SaltAuth)
	SaltAuth          []byte    // per-user auth salt
	PublicKey         string    // base64 box public key
	WrappedPrivateKey string    // opaque JSON {salt, nonce, encrypted}
	CreatedAt         time.Time
}

// Role is a member's role inside a group.
type Role string

const (
	RoleCreator Role = "creator"
	RoleMember  Role = "member"
)

// Group is a group chat. Code is the short join code handed out to invitees.
type Group struct {
	ID        uuid.UUID
	Name      string
	Code      string
	CreatorID uuid.UUID
	CreatedAt time.Time
}

// Membership links a user to a group. An empty Envelope means the member is
// enrolled but does not hold the group key yet.
type Membership struct {
	GroupID  uuid.UUID
	UserID   uuid.UUID
	Role     Role
	Envelope string
	JoinedAt time.Time
}

// HasKey reports whether a group key envelope is stored for the member.
func (m Membership) HasKey() bool { return m.Envelope != "" }

// UserGroup is a group as seen by one of its members.
type UserGroup struct {
	Group
	Role     Role
	Envelope string
}

// Member is a group member joined with the public identity of the user.
type Member struct {
	UserID    uuid.UUID
	Username  string
	PublicKey string
	Role      Role
	HasKey    bool
}

// MessageStatus tracks delivery of a private message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is a stored ciphertext. Exactly one of ReceiverID and GroupID is set.
// ID is the per-server sequence used for ordering and paging.
type Message struct {
	ID                 int64
	SenderID           uuid.UUID
	SenderName         string
	ReceiverID         uuid.NullUUID
	GroupID            uuid.NullUUID
	Ciphertext         string
	Nonce              string
	Status             MessageStatus
	CreatedAt          time.Time
	EditedAt           *time.Time
	DeletedForSender   bool
	DeletedForReceiver bool
}

// IsGroup reports whether the message belongs to a group conversation.
func (m Message) IsGroup() bool { return m.GroupID.Valid }

// HistoryQuery selects a page of a conversation, newest first, strictly
// before the Before sequence id (0 means from the newest).
type HistoryQuery struct {
	UserID  uuid.UUID
	PeerID  uuid.NullUUID
	GroupID uuid.NullUUID
	Before  int64
	Limit   int
}
