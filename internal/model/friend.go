package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// FriendStatus is the state of a friendship row.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// Friendship links two users. RequesterID sent the request; only
// AddresseeID may accept it. There is at most one row per pair.
type Friendship struct {
	ID          int64
	RequesterID uuid.UUID
	AddresseeID uuid.UUID
	Status      FriendStatus
	CreatedAt   time.Time
}

// Involves reports whether userID is one side of the friendship.
func (f Friendship) Involves(userID uuid.UUID) bool {
	return f.RequesterID == userID || f.AddresseeID == userID
}

// Other returns the side that is not userID.
func (f Friendship) Other(userID uuid.UUID) uuid.UUID {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// Friend is one friendship row as seen by one side, joined with the public
// identity of the other side.
type Friend struct {
	FriendshipID int64
	Status       FriendStatus
	RequesterID  uuid.UUID
	UserID       uuid.UUID
	Username     string
	FriendCode   string
	PublicKey    string
}

// FriendList splits a user's friendship rows the way clients show them.
type FriendList struct {
	Friends         []Friend
	PendingReceived []Friend
	PendingSent     []Friend
}

// SplitFriends sorts rows seen by userID into accepted, received and sent.
func SplitFriends(userID uuid.UUID, rows []Friend) FriendList {
	var out FriendList
	for _, f := range rows {
		switch {
		case f.Status == FriendAccepted:
			out.Friends = append(out.Friends, f)
		case f.RequesterID == userID:
			out.PendingSent = append(out.PendingSent, f)
		default:
			out.PendingReceived = append(out.PendingReceived, f)
		}
	}
	return out
}
