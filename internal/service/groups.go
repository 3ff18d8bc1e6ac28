package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const (
	maxGroupNameLen = 50

	codeLen      = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeAttempts = 8
)

// GroupDetail is a group as seen by one member, with the full member list.
type GroupDetail struct {
	model.UserGroup
	Members []model.Member
}

// GroupService defines group lifecycle operations. Group keys are opaque here.
type GroupService interface {
	// Create makes a group with the caller as creator holding envelope.
	Create(ctx context.Context, userID uuid.UUID, name, encryptedKey, sharedBy string) (model.UserGroup, error)
	// Join enrolls the caller by join code without a key.
	Join(ctx context.Context, userID uuid.UUID, code string) (model.UserGroup, error)
	// List returns the caller's groups.
	List(ctx context.Context, userID uuid.UUID) ([]model.UserGroup, error)
	// Get returns group details; non-members get errs.ErrNotEnrolled.
	Get(ctx context.Context, userID, groupID uuid.UUID) (GroupDetail, error)
	// Leave removes the caller and reports whether the group was deleted.
	Leave(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
	// SaveKey replaces the caller's own envelope with one it sealed itself.
	SaveKey(ctx context.Context, userID, groupID uuid.UUID, encryptedKey, sharedBy string) error
}

type GroupServiceImpl struct {
	groups repository.GroupRepository
	log    *zap.Logger
}

// NewGroupService constructs GroupService.
func NewGroupService(groups repository.GroupRepository, log *zap.Logger) *GroupServiceImpl {
	return &GroupServiceImpl{groups: groups, log: log}
}

// ComposeEnvelope builds the stored envelope. Without sharedBy the sealed key
// is stored bare, which is the legacy self-wrapped format.
func ComposeEnvelope(encryptedKey, sharedBy string) (string, error) {
	if encryptedKey == "" {
		return "", fmt.Errorf("%w: encrypted group key required", errs.ErrInvalidArgument)
	}
	if sharedBy == "" {
		return encryptedKey, nil
	}
	env, err := model.KeyEnvelope{Key: encryptedKey, SharedBy: sharedBy}.Encode()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return env, nil
}

// NewGroupCode returns a random join code.
func NewGroupCode() (string, error) { return randomCode() }

// NewFriendCode returns a random code others use to find a user.
func NewFriendCode() (string, error) { return randomCode() }

func randomCode() (string, error) {
	b := make([]byte, codeLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		// len(codeAlphabet) divides 256
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// Create validates the name, draws a unique code and stores the group.
func (s *GroupServiceImpl) Create(ctx context.Context, userID uuid.UUID, name, encryptedKey, sharedBy string) (model.UserGroup, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > maxGroupNameLen {
		return model.UserGroup{}, fmt.Errorf("%w: group name must be 1-%d characters", errs.ErrInvalidArgument, maxGroupNameLen)
	}
	env, err := ComposeEnvelope(encryptedKey, sharedBy)
	if err != nil {
		return model.UserGroup{}, err
	}
	gid, err := uuid.NewV4()
	if err != nil {
		return model.UserGroup{}, err
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := NewGroupCode()
		if err != nil {
			return model.UserGroup{}, err
		}
		g := &model.Group{ID: gid, Name: name, Code: code, CreatorID: userID}
		err = s.groups.Create(ctx, g, model.Membership{GroupID: gid, UserID: userID, Role: model.RoleCreator, Envelope: env})
		if errors.Is(err, errs.ErrAlreadyExists) {
			s.log.Debug("group code collision", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return model.UserGroup{}, err
		}
		return model.UserGroup{Group: *g, Role: model.RoleCreator, Envelope: env}, nil
	}
	return model.UserGroup{}, errors.New("could not allocate a unique group code")
}

// Join looks up the group by code and adds the caller as a keyless member.
func (s *GroupServiceImpl) Join(ctx context.Context, userID uuid.UUID, code string) (model.UserGroup, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.UserGroup{}, fmt.Errorf("%w: group code required", errs.ErrInvalidArgument)
	}
	g, err := s.groups.GetByCode(ctx, code)
	if err != nil {
		return model.UserGroup{}, err
	}
	if err := s.groups.AddMember(ctx, model.Membership{GroupID: g.ID, UserID: userID, Role: model.RoleMember}); err != nil {
		return model.UserGroup{}, err
	}
	s.log.Info("member joined", zap.String("group", g.ID.String()), zap.String("user", userID.String()))
	return model.UserGroup{Group: *g, Role: model.RoleMember}, nil
}

// List returns the caller's groups.
func (s *GroupServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.UserGroup, error) {
	return s.groups.ListForUser(ctx, userID)
}

// Get requires membership and returns the group with its members.
func (s *GroupServiceImpl) Get(ctx context.Context, userID, groupID uuid.UUID) (GroupDetail, error) {
	m, err := s.membership(ctx, groupID, userID)
	if err != nil {
		return GroupDetail{}, err
	}
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return GroupDetail{}, err
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return GroupDetail{}, err
	}
	return GroupDetail{
		UserGroup: model.UserGroup{Group: *g, Role: m.Role, Envelope: m.Envelope},
		Members:   members,
	}, nil
}

// Leave drops the caller's membership.
func (s *GroupServiceImpl) Leave(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	deleted, err := s.groups.RemoveMember(ctx, groupID, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, errs.ErrNotEnrolled
	}
	if err != nil {
		return false, err
	}
	if deleted {
		s.log.Info("group deleted after last member left", zap.String("group", groupID.String()))
	}
	return deleted, nil
}

// SaveKey stores the caller's re-wrapped group key.
func (s *GroupServiceImpl) SaveKey(ctx context.Context, userID, groupID uuid.UUID, encryptedKey, sharedBy string) error {
	if sharedBy == "" {
		return fmt.Errorf("%w: sharer public key required", errs.ErrInvalidArgument)
	}
	env, err := ComposeEnvelope(encryptedKey, sharedBy)
	if err != nil {
		return err
	}
	err = s.groups.ReplaceEnvelope(ctx, groupID, userID, env)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrNotEnrolled
	}
	return err
}

func (s *GroupServiceImpl) membership(ctx context.Context, groupID, userID uuid.UUID) (*model.Membership, error) {
	m, err := s.groups.GetMembership(ctx, groupID, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNotEnrolled
	}
	return m, err
}
