package repository

import (
	"context"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// GroupRepository stores groups and memberships, including each member's
// group key envelope.
type GroupRepository interface {
	// Create inserts the group and the creator's membership atomically.
	// A join code collision yields errs.ErrAlreadyExists.
	Create(ctx context.Context, g *model.Group, creator model.Membership) error
	// GetByCode loads a group by its join code.
	GetByCode(ctx context.Context, code string) (*model.Group, error)
	// GetByID loads a group by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Group, error)
	// AddMember inserts a membership. An existing one yields errs.ErrAlreadyExists.
	AddMember(ctx context.Context, m model.Membership) error
	// GetMembership loads one membership or errs.ErrNotFound.
	GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*model.Membership, error)
	// ListForUser returns the user's groups with role and own envelope.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.UserGroup, error)
	// ListMembers returns all members with their public keys.
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]model.Member, error)
	// SetEnvelopeIfEmpty stores envelope only while the member has none.
	// errs.ErrVersionConflict means nothing was written.
	SetEnvelopeIfEmpty(ctx context.Context, groupID, userID uuid.UUID, envelope string) error
	// ReplaceEnvelope overwrites the member's envelope.
	ReplaceEnvelope(ctx context.Context, groupID, userID uuid.UUID, envelope string) error
	// RemoveMember deletes the membership and, when it was the last one, the
	// group with its messages. It reports whether the group was deleted.
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) (groupDeleted bool, err error)
}
