// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository stores accounts and their public identity.
type UserRepository interface {
	// Create inserts a new user. A taken username yields errs.ErrAlreadyExists,
	// a taken friend code errs.ErrCodeTaken.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByFriendCode loads a user by friend code.
	GetByFriendCode(ctx context.Context, code string) (*model.User, error)
	// UpdateCredentials replaces the password hash and the wrapped private key together.
	UpdateCredentials(ctx context.Context, id uuid.UUID, pwdHash, saltAuth []byte, wrappedPrivateKey string) error
}
