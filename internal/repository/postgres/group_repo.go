package postgres

import (
	"context"
	"errors"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// GroupRepo implements GroupRepository using PostgreSQL.
type GroupRepo struct{ db *DB }

// NewGroupRepo constructs a group repository.
func NewGroupRepo(db *DB) *GroupRepo { return &GroupRepo{db: db} }

// Create inserts the group and the creator membership in one transaction.
func (r *GroupRepo) Create(ctx context.Context, g *model.Group, creator model.Membership) error {
	const insGroup = `
INSERT INTO groups (id, name, code, creator_id)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	const insMember = `
INSERT INTO group_members (group_id, user_id, role, group_key_envelope)
VALUES ($1, $2, $3, $4)`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insGroup, g.ID, g.Name, g.Code, g.CreatorID).Scan(&g.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insMember, g.ID, creator.UserID, string(creator.Role), creator.Envelope)
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByCode selects a group by join code.
func (r *GroupRepo) GetByCode(ctx context.Context, code string) (*model.Group, error) {
	const q = `SELECT id, name, code, creator_id, created_at FROM groups WHERE code=$1`
	return r.getOne(ctx, q, code)
}

// GetByID selects a group by ID.
func (r *GroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	const q = `SELECT id, name, code, creator_id, created_at FROM groups WHERE id=$1`
	return r.getOne(ctx, q, id)
}

func (r *GroupRepo) getOne(ctx context.Context, q string, arg any) (*model.Group, error) {
	var g model.Group
	if err := r.db.Pool.QueryRow(ctx, q, arg).Scan(&g.ID, &g.Name, &g.Code, &g.CreatorID, &g.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// AddMember inserts a membership row.
func (r *GroupRepo) AddMember(ctx context.Context, m model.Membership) error {
	const q = `
INSERT INTO group_members (group_id, user_id, role, group_key_envelope)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, m.GroupID, m.UserID, string(m.Role), m.Envelope)
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	}
	return err
}

// GetMembership selects one membership row.
func (r *GroupRepo) GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*model.Membership, error) {
	const q = `
SELECT role, group_key_envelope, joined_at
FROM group_members WHERE group_id=$1 AND user_id=$2`
	m := model.Membership{GroupID: groupID, UserID: userID}
	var role string
	if err := r.db.Pool.QueryRow(ctx, q, groupID, userID).Scan(&role, &m.Envelope, &m.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

// ListForUser returns the groups of a user, oldest first.
func (r *GroupRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.UserGroup, error) {
	const q = `
SELECT g.id, g.name, g.code, g.creator_id, g.created_at, m.role, m.group_key_envelope
FROM group_members m
JOIN groups g ON g.id = m.group_id
WHERE m.user_id=$1
ORDER BY g.created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserGroup
	for rows.Next() {
		var (
			ug   model.UserGroup
			role string
		)
		if err = rows.Scan(&ug.ID, &ug.Name, &ug.Code, &ug.CreatorID, &ug.CreatedAt, &role, &ug.Envelope); err != nil {
			return nil, err
		}
		ug.Role = model.Role(role)
		out = append(out, ug)
	}
	return out, rows.Err()
}

// ListMembers returns the members of a group with their public keys.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID uuid.UUID) ([]model.Member, error) {
	const q = `
SELECT u.id, u.username, u.public_key, m.role, m.group_key_envelope <> ''
FROM group_members m
JOIN users u ON u.id = m.user_id
WHERE m.group_id=$1
ORDER BY m.joined_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		var (
			mb   model.Member
			role string
		)
		if err = rows.Scan(&mb.UserID, &mb.Username, &mb.PublicKey, &role, &mb.HasKey); err != nil {
			return nil, err
		}
		mb.Role = model.Role(role)
		out = append(out, mb)
	}
	return out, rows.Err()
}

// SetEnvelopeIfEmpty updates the envelope only while it is still empty, so
// the first of several concurrent shares wins.
func (r *GroupRepo) SetEnvelopeIfEmpty(ctx context.Context, groupID, userID uuid.UUID, envelope string) error {
	const q = `
UPDATE group_members
SET group_key_envelope = $3
WHERE group_id = $1 AND user_id = $2 AND group_key_envelope = ''`
	tag, err := r.db.Pool.Exec(ctx, q, groupID, userID, envelope)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrVersionConflict
	}
	return nil
}

// ReplaceEnvelope overwrites the member's envelope unconditionally.
func (r *GroupRepo) ReplaceEnvelope(ctx context.Context, groupID, userID uuid.UUID, envelope string) error {
	const q = `
UPDATE group_members
SET group_key_envelope = $3
WHERE group_id = $1 AND user_id = $2`
	tag, err := r.db.Pool.Exec(ctx, q, groupID, userID, envelope)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RemoveMember deletes a membership; the last one takes the group and its messages along.
// Leaves of one group are serialized on the group row, so two last members
// leaving together cannot both see the other one still present.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	const (
		lockGroup   = `SELECT id FROM groups WHERE id=$1 FOR UPDATE`
		delMember   = `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`
		countLeft   = `SELECT count(*) FROM group_members WHERE group_id=$1`
		delMessages = `DELETE FROM messages WHERE group_id=$1`
		delGroup    = `DELETE FROM groups WHERE id=$1`
	)
	var deleted bool
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, lockGroup, groupID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx, delMember, groupID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		var left int64
		if err := tx.QueryRow(ctx, countLeft, groupID).Scan(&left); err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, delMessages, groupID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, delGroup, groupID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
