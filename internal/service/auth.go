// Package service contains application services for accounts, groups and
// message history. Real-time delivery lives in package relay.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	pkgcrypto "github.com/and161185/cipherchat/internal/crypto"
	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/limiter"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	minUsernameLen = 2
	maxUsernameLen = 20
	minPasswordLen = 6
)

// RegisterInput carries a new account. PublicKey and WrappedPrivateKey are
// produced on the client; the server only checks that they are well formed.
type RegisterInput struct {
	Username          string
	Password          string
	PublicKey         string
	WrappedPrivateKey string
}

// AuthService defines account operations.
type AuthService interface {
	// Register creates a new user and returns it together with an access token.
	Register(ctx context.Context, in RegisterInput) (model.User, model.Tokens, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, username, password string, ip string) (tokens model.Tokens, user model.User, err error)
	// Me returns the caller's account.
	Me(ctx context.Context, userID uuid.UUID) (model.User, error)
	// ChangePassword replaces the password and the re-wrapped private key together.
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, newWrapped string) error
	// PublicKey returns the published public key of any user.
	PublicKey(ctx context.Context, userID uuid.UUID) (model.User, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

func validateCredentials(username, password string) error {
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", errs.ErrInvalidArgument, minUsernameLen, maxUsernameLen)
	}
	if strings.TrimSpace(username) != username {
		return fmt.Errorf("%w: username has surrounding spaces", errs.ErrInvalidArgument)
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrInvalidArgument, minPasswordLen)
	}
	return nil
}

func validateWrapped(wrapped string) error {
	w, err := e2e.ParseWrappedPrivateKey(wrapped)
	if err != nil || w.Salt == "" || w.Nonce == "" || w.Encrypted == "" {
		return fmt.Errorf("%w: malformed wrapped private key", errs.ErrInvalidArgument)
	}
	return nil
}

// Register validates input, hashes the password and stores the account.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.User, model.Tokens, error) {
	if err := validateCredentials(in.Username, in.Password); err != nil {
		return model.User{}, model.Tokens{}, err
	}
	if _, err := e2e.ParsePublicKey(in.PublicKey); err != nil {
		return model.User{}, model.Tokens{}, fmt.Errorf("public key: %w", err)
	}
	if err := validateWrapped(in.WrappedPrivateKey); err != nil {
		return model.User{}, model.Tokens{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, model.Tokens{}, err
	}
	cred, err := pkgcrypto.NewCredential(in.Password)
	if err != nil {
		return model.User{}, model.Tokens{}, err
	}
	u := &model.User{
		ID:                uid,
		Username:          in.Username,
		PwdHash:           cred.Hash,
		SaltAuth:          cred.Salt,
		PublicKey:         in.PublicKey,
		WrappedPrivateKey: in.WrappedPrivateKey,
	}
	if err := s.createWithFriendCode(ctx, u); err != nil {
		return model.User{}, model.Tokens{}, err
	}

	access, exp, err := s.issueAccessToken(uid)
	if err != nil {
		return model.User{}, model.Tokens{}, err
	}
	return *u, model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// createWithFriendCode stores u, drawing a fresh friend code while the drawn
// one is taken.
func (s *AuthServiceImpl) createWithFriendCode(ctx context.Context, u *model.User) error {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := NewFriendCode()
		if err != nil {
			return err
		}
		u.FriendCode = code
		err = s.users.Create(ctx, u)
		if errors.Is(err, errs.ErrCodeTaken) {
			continue
		}
		return err
	}
	return errors.New("could not allocate a unique friend code")
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	ipHash := limiter.HashIP(ip)

	// Check if requests are currently allowed for this (user, ip).
	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !(pkgcrypto.Credential{Hash: u.PwdHash, Salt: u.SaltAuth}).Verify(password) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, username, ipHash)

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

// Me loads the caller's account.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// ChangePassword verifies the old password and stores the new hash together
// with the private key the client re-wrapped under the new password.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, newWrapped string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := validateWrapped(newWrapped); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !(pkgcrypto.Credential{Hash: u.PwdHash, Salt: u.SaltAuth}).Verify(oldPassword) {
		return errs.ErrUnauthorized
	}
	cred, err := pkgcrypto.NewCredential(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdateCredentials(ctx, userID, cred.Hash, cred.Salt, newWrapped)
}

// PublicKey returns the user's public identity; the wrapped key is stripped.
func (s *AuthServiceImpl) PublicKey(ctx context.Context, userID uuid.UUID) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: u.ID, Username: u.Username, PublicKey: u.PublicKey, CreatedAt: u.CreatedAt}, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
