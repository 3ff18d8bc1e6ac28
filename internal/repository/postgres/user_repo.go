package postgres

import (
	"context"
	"errors"

	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const friendCodeConstraint = "users_friend_code_key"

const userColumns = `id, username, friend_code, pwd_hash, salt_auth, public_key, wrapped_private_key, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, friend_code, pwd_hash, salt_auth, public_key, wrapped_private_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Username, u.FriendCode, u.PwdHash, u.SaltAuth, u.PublicKey, u.WrappedPrivateKey).
		Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		if violatedConstraint(err) == friendCodeConstraint {
			return errs.ErrCodeTaken
		}
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

// GetByFriendCode selects a user by friend code.
func (r *UserRepo) GetByFriendCode(ctx context.Context, code string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE friend_code=$1`, code)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, arg).
		Scan(&u.ID, &u.Username, &u.FriendCode, &u.PwdHash, &u.SaltAuth, &u.PublicKey, &u.WrappedPrivateKey, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateCredentials replaces password hash and wrapped private key in one statement.
func (r *UserRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, pwdHash, saltAuth []byte, wrapped string) error {
	const q = `
UPDATE users
SET pwd_hash = $2, salt_auth = $3, wrapped_private_key = $4
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, pwdHash, saltAuth, wrapped)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
