package client

import (
	"context"
	"time"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Account is the server view of the logged-in user.
type Account struct {
	UserID            uuid.UUID
	Username          string
	FriendCode        string
	PublicKey         string
	WrappedPrivateKey string
	Token             string
	ExpiresAt         time.Time
}

// Stream is an open realtime connection. Send may be called concurrently with Recv.
type Stream interface {
	Send(ev model.Event) error
	Recv() (model.Event, error)
	Close() error
}

// Backend is the server API as used by the client. Calls made after Register
// or Login are authenticated with the issued token.
type Backend interface {
	Register(ctx context.Context, username, password, publicKey, wrappedKey string) (Account, error)
	Login(ctx context.Context, username, password string) (Account, error)
	// SetToken resumes a session with a token saved earlier.
	SetToken(token string)
	Me(ctx context.Context) (Account, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword, wrappedKey string) error
	PublicKey(ctx context.Context, userID uuid.UUID) (string, error)

	CreateGroup(ctx context.Context, name, encryptedKey, sharedBy string) (model.UserGroup, error)
	JoinGroup(ctx context.Context, code string) (model.UserGroup, error)
	ListGroups(ctx context.Context) ([]model.UserGroup, error)
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.Member, error)
	LeaveGroup(ctx context.Context, groupID uuid.UUID) (bool, error)
	SaveGroupKey(ctx context.Context, groupID uuid.UUID, encryptedKey, sharedBy string) error

	SearchUser(ctx context.Context, friendCode string) (model.User, error)
	RequestFriend(ctx context.Context, friendID uuid.UUID) (model.Friend, error)
	AcceptFriend(ctx context.Context, requestID int64) (model.Friend, error)
	RemoveFriend(ctx context.Context, requestID int64) error
	ListFriends(ctx context.Context) (model.FriendList, error)

	History(ctx context.Context, q model.HistoryQuery) ([]model.Message, error)
	Connect(ctx context.Context) (Stream, error)
}
