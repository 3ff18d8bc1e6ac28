package repository

import (
	"context"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FriendRepository stores friend requests and accepted friendships.
type FriendRepository interface {
	// Create stores a pending request and fills ID and CreatedAt. Any row
	// already linking the pair, in either direction, yields errs.ErrAlreadyExists.
	Create(ctx context.Context, f *model.Friendship) error
	// Between loads the row linking a and b in either direction.
	Between(ctx context.Context, a, b uuid.UUID) (*model.Friendship, error)
	// Accept turns a pending request addressed to addresseeID into a friendship.
	Accept(ctx context.Context, id int64, addresseeID uuid.UUID) (*model.Friendship, error)
	// Delete removes a request or friendship userID is part of.
	Delete(ctx context.Context, id int64, userID uuid.UUID) (*model.Friendship, error)
	// List returns every row involving userID joined with the other side.
	List(ctx context.Context, userID uuid.UUID) ([]model.Friend, error)
	// FriendIDs returns the ids of userID's accepted friends.
	FriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}
