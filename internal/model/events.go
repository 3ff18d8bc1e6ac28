package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Relay event names. Client and server share one namespace; some names are
// used in both directions with different payloads.
const (
	EventPrivateMessage = "chat:private"
	EventPrivateSent    = "chat:private:sent"
	EventGroupMessage   = "chat:group"
	EventTyping         = "chat:typing"
	EventRead           = "chat:read"
	EventEdit           = "chat:edit"
	EventEdited         = "chat:edited"
	EventDelete         = "chat:delete"
	EventDeleted        = "chat:deleted"
	EventJoinGroups     = "join:groups"
	EventKeyRequest     = "group:requestKey"
	EventKeyShare       = "group:shareKey"
	EventKeyRequested   = "group:keyRequest"
	EventKeyReceived    = "group:keyReceived"
	EventFriendsOnline  = "friends:online"
	EventUserStatus     = "user:status"
	EventError          = "error"
)

// Event is one frame on the realtime channel. Payload is JSON.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// NewEvent marshals payload into an Event.
func NewEvent(name string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Payload: b}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Payload, v)
}

// Error codes carried by EventError.
const (
	CodeInvalid       = "invalid"
	CodeNotEnrolled   = "not_enrolled"
	CodeNotAuthorized = "not_authorized"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal"
)

// ErrorPayload reports a rejected event back to its sender.
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendPrivate is sent by a client to deliver a private message.
type SendPrivate struct {
	ReceiverID       uuid.UUID `json:"receiverId"`
	EncryptedContent string    `json:"encryptedContent"`
	Nonce            string    `json:"nonce"`
}

// SendGroup is sent by a client to post to a group.
type SendGroup struct {
	GroupID          uuid.UUID `json:"groupId"`
	EncryptedContent string    `json:"encryptedContent"`
	Nonce            string    `json:"nonce"`
}

// MessagePayload is a stored message pushed to sessions.
type MessagePayload struct {
	ID               int64         `json:"id"`
	SenderID         uuid.UUID     `json:"senderId"`
	SenderName       string        `json:"senderName,omitempty"`
	ReceiverID       *uuid.UUID    `json:"receiverId,omitempty"`
	GroupID          *uuid.UUID    `json:"groupId,omitempty"`
	EncryptedContent string        `json:"encryptedContent"`
	Nonce            string        `json:"nonce"`
	Status           MessageStatus `json:"status,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	EditedAt         *time.Time    `json:"editedAt,omitempty"`
}

// MessagePayloadFrom converts a stored message.
func MessagePayloadFrom(m Message) MessagePayload {
	p := MessagePayload{
		ID:               m.ID,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		EncryptedContent: m.Ciphertext,
		Nonce:            m.Nonce,
		Status:           m.Status,
		CreatedAt:        m.CreatedAt,
		EditedAt:         m.EditedAt,
	}
	if m.ReceiverID.Valid {
		id := m.ReceiverID.UUID
		p.ReceiverID = &id
	}
	if m.GroupID.Valid {
		id := m.GroupID.UUID
		p.GroupID = &id
	}
	return p
}

// Typing is a typing indicator. Exactly one of ReceiverID and GroupID is set
// on the way in; UserID is filled by the relay on the way out.
type Typing struct {
	UserID     uuid.UUID  `json:"userId,omitempty"`
	ReceiverID *uuid.UUID `json:"receiverId,omitempty"`
	GroupID    *uuid.UUID `json:"groupId,omitempty"`
	IsTyping   bool       `json:"isTyping"`
}

// ReadReceipt marks private messages read and notifies their sender.
type ReadReceipt struct {
	MessageIDs []int64    `json:"messageIds"`
	SenderID   *uuid.UUID `json:"senderId,omitempty"`
	ReadBy     uuid.UUID  `json:"readBy,omitempty"`
}

// EditMessage replaces the ciphertext of a message owned by the caller.
type EditMessage struct {
	MessageID        int64      `json:"messageId"`
	EncryptedContent string     `json:"encryptedContent"`
	Nonce            string     `json:"nonce"`
	ReceiverID       *uuid.UUID `json:"receiverId,omitempty"`
	GroupID          *uuid.UUID `json:"groupId,omitempty"`
}

// MessageEdited is pushed after a successful edit.
type MessageEdited struct {
	MessageID        int64     `json:"messageId"`
	EncryptedContent string    `json:"encryptedContent"`
	Nonce            string    `json:"nonce"`
	EditedAt         time.Time `json:"editedAt"`
}

// DeleteMessage removes a message for both sides (sender only) or hides it
// for the caller.
type DeleteMessage struct {
	MessageID  int64      `json:"messageId"`
	ForBoth    bool       `json:"forBoth"`
	ReceiverID *uuid.UUID `json:"receiverId,omitempty"`
	GroupID    *uuid.UUID `json:"groupId,omitempty"`
}

// MessageDeleted is pushed after a delete.
type MessageDeleted struct {
	MessageID      int64 `json:"messageId"`
	DeletedForBoth bool  `json:"deletedForBoth"`
}

// KeyRequest is sent by a keyless member asking enrolled members for the key.
type KeyRequest struct {
	GroupID   uuid.UUID `json:"groupId"`
	PublicKey string    `json:"publicKey"`
}

// KeyRequested is pushed to an enrolled member on behalf of a keyless one.
type KeyRequested struct {
	GroupID            uuid.UUID `json:"groupId"`
	RequesterID        uuid.UUID `json:"requesterId"`
	RequesterName      string    `json:"requesterName"`
	RequesterPublicKey string    `json:"requesterPublicKey"`
}

// KeyShare is sent by an enrolled member with the group key sealed for the target.
type KeyShare struct {
	GroupID           uuid.UUID `json:"groupId"`
	TargetUserID      uuid.UUID `json:"targetUserId"`
	EncryptedGroupKey string    `json:"encryptedGroupKey"`
	SharerPublicKey   string    `json:"sharerPublicKey"`
}

// KeyReceived is pushed to the target of a share.
type KeyReceived struct {
	GroupID           uuid.UUID `json:"groupId"`
	EncryptedGroupKey string    `json:"encryptedGroupKey"`
	SharerPublicKey   string    `json:"sharerPublicKey"`
	SharerID          uuid.UUID `json:"sharerId"`
}

// FriendsOnline is pushed to a new session with its friends already online.
type FriendsOnline struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

// UserStatus is pushed to online friends when a user comes or goes.
type UserStatus struct {
	UserID uuid.UUID `json:"userId"`
	Online bool      `json:"isOnline"`
}
