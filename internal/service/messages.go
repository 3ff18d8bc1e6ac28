package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// MessageService serves stored conversation history.
type MessageService interface {
	// History returns one page of a private or group conversation, newest first.
	History(ctx context.Context, q model.HistoryQuery) ([]model.Message, error)
}

type MessageServiceImpl struct {
	messages repository.MessageRepository
	groups   repository.GroupRepository
	users    repository.UserRepository
}

// NewMessageService constructs MessageService.
func NewMessageService(messages repository.MessageRepository, groups repository.GroupRepository, users repository.UserRepository) *MessageServiceImpl {
	return &MessageServiceImpl{messages: messages, groups: groups, users: users}
}

// History validates the selector, clamps the limit and checks access:
// group history requires membership, private history requires the peer to exist.
func (s *MessageServiceImpl) History(ctx context.Context, q model.HistoryQuery) ([]model.Message, error) {
	if q.GroupID.Valid == q.PeerID.Valid {
		return nil, fmt.Errorf("%w: exactly one of peer and group is required", errs.ErrInvalidArgument)
	}
	if q.Before < 0 {
		return nil, fmt.Errorf("%w: negative cursor", errs.ErrInvalidArgument)
	}
	switch {
	case q.Limit <= 0:
		q.Limit = defaultHistoryLimit
	case q.Limit > maxHistoryLimit:
		q.Limit = maxHistoryLimit
	}

	if q.GroupID.Valid {
		if _, err := s.groups.GetMembership(ctx, q.GroupID.UUID, q.UserID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, errs.ErrNotEnrolled
			}
			return nil, err
		}
	} else if q.PeerID.UUID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty peer", errs.ErrInvalidArgument)
	} else if _, err := s.users.GetByID(ctx, q.PeerID.UUID); err != nil {
		return nil, err
	}
	return s.messages.History(ctx, q)
}
