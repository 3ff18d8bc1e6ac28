package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// FriendService defines the friend list operations. Private chat and
// receipts are only allowed between accepted friends.
type FriendService interface {
	// Search finds another user by friend code.
	Search(ctx context.Context, userID uuid.UUID, code string) (model.User, error)
	// Request sends a friend request to friendID.
	Request(ctx context.Context, userID, friendID uuid.UUID) (model.Friendship, error)
	// Accept accepts a pending request addressed to the caller.
	Accept(ctx context.Context, userID uuid.UUID, requestID int64) (model.Friendship, error)
	// Remove deletes a friendship or request on either side.
	Remove(ctx context.Context, userID uuid.UUID, requestID int64) (model.Friendship, error)
	// List returns friends and pending requests of the caller.
	List(ctx context.Context, userID uuid.UUID) (model.FriendList, error)
}

type FriendServiceImpl struct {
	friends repository.FriendRepository
	users   repository.UserRepository
	log     *zap.Logger
}

// NewFriendService constructs FriendService.
func NewFriendService(friends repository.FriendRepository, users repository.UserRepository, log *zap.Logger) *FriendServiceImpl {
	return &FriendServiceImpl{friends: friends, users: users, log: log}
}

// Search normalizes the code and strips everything but the public identity.
func (s *FriendServiceImpl) Search(ctx context.Context, userID uuid.UUID, code string) (model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.User{}, fmt.Errorf("%w: friend code required", errs.ErrInvalidArgument)
	}
	u, err := s.users.GetByFriendCode(ctx, code)
	if err != nil {
		return model.User{}, err
	}
	if u.ID == userID {
		return model.User{}, fmt.Errorf("%w: this is your own code", errs.ErrInvalidArgument)
	}
	return model.User{ID: u.ID, Username: u.Username, FriendCode: u.FriendCode, PublicKey: u.PublicKey, CreatedAt: u.CreatedAt}, nil
}

// Request creates a pending row. An existing row in either direction is
// reported as ErrAlreadyExists with its state in the message.
func (s *FriendServiceImpl) Request(ctx context.Context, userID, friendID uuid.UUID) (model.Friendship, error) {
	if friendID == userID {
		return model.Friendship{}, fmt.Errorf("%w: cannot befriend yourself", errs.ErrInvalidArgument)
	}
	if _, err := s.users.GetByID(ctx, friendID); err != nil {
		return model.Friendship{}, err
	}
	if cur, err := s.friends.Between(ctx, userID, friendID); err == nil {
		return model.Friendship{}, existingErr(cur)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.Friendship{}, err
	}
	f := &model.Friendship{RequesterID: userID, AddresseeID: friendID, Status: model.FriendPending}
	if err := s.friends.Create(ctx, f); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			if cur, berr := s.friends.Between(ctx, userID, friendID); berr == nil {
				return model.Friendship{}, existingErr(cur)
			}
		}
		return model.Friendship{}, err
	}
	s.log.Debug("friend request", zap.Stringer("from", userID), zap.Stringer("to", friendID))
	return *f, nil
}

func existingErr(f *model.Friendship) error {
	if f.Status == model.FriendAccepted {
		return fmt.Errorf("%w: already friends", errs.ErrAlreadyExists)
	}
	return fmt.Errorf("%w: request already pending", errs.ErrAlreadyExists)
}

// Accept only succeeds for the addressee of a pending request.
func (s *FriendServiceImpl) Accept(ctx context.Context, userID uuid.UUID, requestID int64) (model.Friendship, error) {
	f, err := s.friends.Accept(ctx, requestID, userID)
	if err != nil {
		return model.Friendship{}, err
	}
	return *f, nil
}

// Remove deletes the row when the caller is one of its sides.
func (s *FriendServiceImpl) Remove(ctx context.Context, userID uuid.UUID, requestID int64) (model.Friendship, error) {
	f, err := s.friends.Delete(ctx, requestID, userID)
	if err != nil {
		return model.Friendship{}, err
	}
	return *f, nil
}

// List splits the caller's rows into friends, received and sent requests.
func (s *FriendServiceImpl) List(ctx context.Context, userID uuid.UUID) (model.FriendList, error) {
	rows, err := s.friends.List(ctx, userID)
	if err != nil {
		return model.FriendList{}, err
	}
	return model.SplitFriends(userID, rows), nil
}
