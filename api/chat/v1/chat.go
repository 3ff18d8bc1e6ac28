// Package chatv1 holds the wire types and gRPC service definition of the
// cipherchat API. Messages travel as JSON over gRPC using the "json" codec.
package chatv1

import (
	"encoding/json"
	"time"
)

type RegisterRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	PublicKey         string `json:"publicKey"`
	WrappedPrivateKey string `json:"wrappedPrivateKey"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserInfo describes an account. WrappedPrivateKey is only filled for the
// account owner.
type UserInfo struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	FriendCode        string    `json:"friendCode,omitempty"`
	PublicKey         string    `json:"publicKey"`
	WrappedPrivateKey string    `json:"wrappedPrivateKey,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (x *UserInfo) GetID() string {
	if x == nil {
		return ""
	}
	return x.ID
}

func (x *UserInfo) GetPublicKey() string {
	if x == nil {
		return ""
	}
	return x.PublicKey
}

type AuthResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        *UserInfo `json:"user"`
}

func (x *AuthResponse) GetUser() *UserInfo {
	if x == nil {
		return nil
	}
	return x.User
}

type ChangePasswordRequest struct {
	OldPassword       string `json:"oldPassword"`
	NewPassword       string `json:"newPassword"`
	WrappedPrivateKey string `json:"wrappedPrivateKey"`
}

type GetPublicKeyRequest struct {
	UserID string `json:"userId"`
}

// CreateGroupRequest carries the new group key already sealed to the
// creator. SharerPublicKey is the public key the key was sealed with.
type CreateGroupRequest struct {
	Name              string `json:"name"`
	EncryptedGroupKey string `json:"encryptedGroupKey"`
	SharerPublicKey   string `json:"sharerPublicKey,omitempty"`
}

type JoinGroupRequest struct {
	GroupCode string `json:"groupCode"`
}

// GroupInfo is a group as seen by the caller. EncryptedGroupKey is the
// caller's stored envelope and is empty until a key has been shared.
type GroupInfo struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	GroupCode         string    `json:"groupCode"`
	CreatorID         string    `json:"creatorId"`
	Role              string    `json:"role"`
	EncryptedGroupKey string    `json:"encryptedGroupKey"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (x *GroupInfo) GetID() string {
	if x == nil {
		return ""
	}
	return x.ID
}

func (x *GroupInfo) GetEncryptedGroupKey() string {
	if x == nil {
		return ""
	}
	return x.EncryptedGroupKey
}

type ListGroupsResponse struct {
	Groups []*GroupInfo `json:"groups"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type GroupMember struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
	Role      string `json:"role"`
	HasKey    bool   `json:"hasKey"`
}

type GroupDetail struct {
	Group   *GroupInfo     `json:"group"`
	Members []*GroupMember `json:"members"`
}

type LeaveGroupRequest struct {
	GroupID string `json:"groupId"`
}

type LeaveGroupResponse struct {
	GroupDeleted bool `json:"groupDeleted"`
}

// SaveGroupKeyRequest replaces the caller's own envelope, e.g. after
// re-sealing a key received from another member.
type SaveGroupKeyRequest struct {
	GroupID           string `json:"groupId"`
	EncryptedGroupKey string `json:"encryptedGroupKey"`
	SharerPublicKey   string `json:"sharerPublicKey"`
}

// ListMessagesRequest selects one conversation: set PeerID or GroupID.
type ListMessagesRequest struct {
	PeerID  string `json:"peerId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	Before  int64  `json:"before,omitempty"`
	Limit   int32  `json:"limit,omitempty"`
}

type Message struct {
	ID               int64      `json:"id"`
	SenderID         string     `json:"senderId"`
	SenderName       string     `json:"senderName,omitempty"`
	ReceiverID       string     `json:"receiverId,omitempty"`
	GroupID          string     `json:"groupId,omitempty"`
	EncryptedContent string     `json:"encryptedContent"`
	Nonce            string     `json:"nonce"`
	Status           string     `json:"status,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	EditedAt         *time.Time `json:"editedAt,omitempty"`
}

type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type SearchUserRequest struct {
	FriendCode string `json:"friendCode"`
}

type FriendRequest struct {
	FriendID string `json:"friendId"`
}

// FriendshipRequest addresses one friendship row by id.
type FriendshipRequest struct {
	RequestID int64 `json:"requestId"`
}

// FriendInfo is one friendship row seen from the caller's side; the user
// fields describe the other side.
type FriendInfo struct {
	RequestID   int64  `json:"requestId"`
	Status      string `json:"status"`
	RequesterID string `json:"requesterId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	FriendCode  string `json:"friendCode"`
	PublicKey   string `json:"publicKey"`
}

func (x *FriendInfo) GetUserID() string {
	if x == nil {
		return ""
	}
	return x.UserID
}

type ListFriendsResponse struct {
	Friends         []*FriendInfo `json:"friends"`
	PendingReceived []*FriendInfo `json:"pendingReceived"`
	PendingSent     []*FriendInfo `json:"pendingSent"`
}

// Frame is one event on the Connect stream.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (x *Frame) GetEvent() string {
	if x == nil {
		return ""
	}
	return x.Event
}
