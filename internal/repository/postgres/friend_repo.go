package postgres

import (
	"context"
	"errors"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// FriendRepo implements FriendRepository using PostgreSQL.
type FriendRepo struct{ db *DB }

// NewFriendRepo constructs a friendship repository.
func NewFriendRepo(db *DB) *FriendRepo { return &FriendRepo{db: db} }

const friendshipColumns = `id, requester_id, addressee_id, status, created_at`

// Create inserts a pending request. The pair index rejects a second row for
// the same two users in either direction.
func (r *FriendRepo) Create(ctx context.Context, f *model.Friendship) error {
	const q = `
INSERT INTO friendships (requester_id, addressee_id, status)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	if f.Status == "" {
		f.Status = model.FriendPending
	}
	err := r.db.Pool.QueryRow(ctx, q, f.RequesterID, f.AddresseeID, string(f.Status)).Scan(&f.ID, &f.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	}
	return err
}

// Between returns the friendship row of a pair regardless of direction.
func (r *FriendRepo) Between(ctx context.Context, a, b uuid.UUID) (*model.Friendship, error) {
	const q = `SELECT ` + friendshipColumns + ` FROM friendships
WHERE (requester_id=$1 AND addressee_id=$2) OR (requester_id=$2 AND addressee_id=$1)`
	return scanFriendship(r.db.Pool.QueryRow(ctx, q, a, b))
}

// Accept flips a pending request addressed to addresseeID to accepted.
func (r *FriendRepo) Accept(ctx context.Context, id int64, addresseeID uuid.UUID) (*model.Friendship, error) {
	const q = `
UPDATE friendships SET status='accepted'
WHERE id=$1 AND addressee_id=$2 AND status='pending'
RETURNING ` + friendshipColumns
	return scanFriendship(r.db.Pool.QueryRow(ctx, q, id, addresseeID))
}

// Delete removes a friendship or request that userID is part of.
func (r *FriendRepo) Delete(ctx context.Context, id int64, userID uuid.UUID) (*model.Friendship, error) {
	const q = `
DELETE FROM friendships
WHERE id=$1 AND (requester_id=$2 OR addressee_id=$2)
RETURNING ` + friendshipColumns
	return scanFriendship(r.db.Pool.QueryRow(ctx, q, id, userID))
}

// List returns every row userID is part of, joined with the other side.
func (r *FriendRepo) List(ctx context.Context, userID uuid.UUID) ([]model.Friend, error) {
	const q = `
SELECT f.id, f.status, f.requester_id, u.id, u.username, u.friend_code, u.public_key
FROM friendships f
JOIN users u ON u.id = CASE WHEN f.requester_id=$1 THEN f.addressee_id ELSE f.requester_id END
WHERE f.requester_id=$1 OR f.addressee_id=$1
ORDER BY f.created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Friend
	for rows.Next() {
		var (
			fr     model.Friend
			status string
		)
		if err = rows.Scan(&fr.FriendshipID, &status, &fr.RequesterID, &fr.UserID, &fr.Username, &fr.FriendCode, &fr.PublicKey); err != nil {
			return nil, err
		}
		fr.Status = model.FriendStatus(status)
		out = append(out, fr)
	}
	return out, rows.Err()
}

// FriendIDs returns the ids of accepted friends of userID.
func (r *FriendRepo) FriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
SELECT CASE WHEN requester_id=$1 THEN addressee_id ELSE requester_id END
FROM friendships
WHERE (requester_id=$1 OR addressee_id=$1) AND status='accepted'`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanFriendship(row pgx.Row) (*model.Friendship, error) {
	var (
		f      model.Friendship
		status string
	)
	if err := row.Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &status, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	f.Status = model.FriendStatus(status)
	return &f, nil
}
