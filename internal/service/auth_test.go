package service

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/cipherchat/internal/crypto"
	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/and161185/cipherchat/internal/errs"
	"github.com/and161185/cipherchat/internal/limiter"
	"github.com/and161185/cipherchat/internal/model"
	"github.com/and161185/cipherchat/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

type fakeUsers struct {
	byName map[string]*model.User

	createErr error
	getErr    error
	updateErr error
	// takenCodes are reported as ErrCodeTaken while drawn
	takenCodes int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	if f.takenCodes > 0 {
		f.takenCodes--
		return errs.ErrCodeTaken
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) GetByFriendCode(_ context.Context, code string) (*model.User, error) {
	for _, u := range f.byName {
		if u.FriendCode == code {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) UpdateCredentials(_ context.Context, id uuid.UUID, pwdHash, saltAuth []byte, wrapped string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, u := range f.byName {
		if u.ID == id {
			u.PwdHash, u.SaltAuth, u.WrappedPrivateKey = pwdHash, saltAuth, wrapped
			return nil
		}
	}
	return errs.ErrNotFound
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// newKeys returns a public key and a private key wrapped under password.
func newKeys(t *testing.T, password string) (string, string) {
	t.Helper()
	id, err := e2e.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	w, err := e2e.WrapPrivateKey(id.Private, password)
	if err != nil {
		t.Fatalf("WrapPrivateKey: %v", err)
	}
	enc, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return id.Public.String(), enc
}

func TestAuth_Register_Validation(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, []byte("k"), time.Minute, &fakeLimiter{})
	pub, wrapped := newKeys(t, "secret1")
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"short username", RegisterInput{Username: "a", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped}},
		{"long username", RegisterInput{Username: "abcdefghijklmnopqrstu", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped}},
		{"short password", RegisterInput{Username: "alice", Password: "12345", PublicKey: pub, WrappedPrivateKey: wrapped}},
		{"bad public key", RegisterInput{Username: "alice", Password: "secret1", PublicKey: "!!", WrappedPrivateKey: wrapped}},
		{"empty wrapped key", RegisterInput{Username: "alice", Password: "secret1", PublicKey: pub, WrappedPrivateKey: "{}"}},
	}
	for _, tc := range cases {
		if _, _, err := s.Register(ctx, tc.in); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("%s: want ErrInvalidArgument, got %v", tc.name, err)
		}
	}
	if len(users.byName) != 0 {
		t.Fatalf("nothing must be stored on invalid input")
	}
}

func TestAuth_Register_StoresAndIssuesToken(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	key := []byte("sign")
	s := NewAuthService(users, key, time.Minute, &fakeLimiter{})
	pub, wrapped := newKeys(t, "secret1")

	u, tok, err := s.Register(context.Background(), RegisterInput{Username: "alice", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == uuid.Nil || u.PublicKey != pub || u.WrappedPrivateKey != wrapped {
		t.Fatalf("bad user: %+v", u)
	}
	stored := users.byName["alice"]
	if !(pkgcrypto.Credential{Hash: stored.PwdHash, Salt: stored.SaltAuth}).Verify("secret1") {
		t.Fatalf("stored credential does not verify")
	}

	parsed, err := jwt.ParseWithClaims(tok.AccessToken, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if sub, _ := parsed.Claims.GetSubject(); sub != u.ID.String() {
		t.Fatalf("subject = %q", sub)
	}

	if _, _, err := s.Register(context.Background(), RegisterInput{Username: "alice", Password: "secret2", PublicKey: pub, WrappedPrivateKey: wrapped}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, _, err := s.Register(context.Background(), RegisterInput{Username: "bob", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped}); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Register_RetriesFriendCode(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}, takenCodes: 2}
	s := NewAuthService(users, []byte("k"), time.Minute, &fakeLimiter{})
	pub, wrapped := newKeys(t, "secret1")

	u, _, err := s.Register(context.Background(), RegisterInput{Username: "alice", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(u.FriendCode) != codeLen {
		t.Fatalf("friend code = %q", u.FriendCode)
	}
	if got, err := users.GetByFriendCode(context.Background(), u.FriendCode); err != nil || got.ID != u.ID {
		t.Fatalf("stored code lookup: %v", err)
	}

	users.takenCodes = codeAttempts
	if _, _, err := s.Register(context.Background(), RegisterInput{Username: "bob", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped}); err == nil {
		t.Fatalf("want error once every code is taken")
	}
	if _, ok := users.byName["bob"]; ok {
		t.Fatalf("bob must not be stored")
	}
}

func TestAuth_LoginWithIP_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	cred, _ := pkgcrypto.NewCredential("correct")
	u := &model.User{
		ID:                uuid.Must(uuid.NewV4()),
		Username:          "alice",
		SaltAuth:          cred.Salt,
		PwdHash:           cred.Hash,
		PublicKey:         "pub",
		WrappedPrivateKey: "wrapped",
	}

	users := &fakeUsers{byName: map[string]*model.User{"alice": u}}
	lim := &fakeLimiter{allowOK: true}
	s := NewAuthService(users, []byte("secret"), 2*time.Minute, lim)

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	users.getErr = errs.ErrNotFound
	if _, _, err := s.LoginWithIP(context.Background(), "nope", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}
	users.getErr = nil

	lim.failBlocked = true
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}

	lim.failBlocked = false
	if _, _, err := s.LoginWithIP(context.Background(), "alice", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, gotUser, err := s.LoginWithIP(context.Background(), "alice", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("LoginWithIP success: %v", err)
	}
	if tok.AccessToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", tok)
	}
	if gotUser.ID != u.ID || gotUser.WrappedPrivateKey != "wrapped" {
		t.Fatalf("bad user returned: %+v", gotUser)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}
}

func TestAuth_ChangePassword(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, []byte("k"), time.Minute, &fakeLimiter{allowOK: true})
	pub, wrapped := newKeys(t, "oldpass")
	u, _, err := s.Register(context.Background(), RegisterInput{Username: "carol", Password: "oldpass", PublicKey: pub, WrappedPrivateKey: wrapped})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, rewrapped := newKeys(t, "newpass")

	if err := s.ChangePassword(context.Background(), u.ID, "nope!!", "newpass", rewrapped); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong old password, got %v", err)
	}
	if err := s.ChangePassword(context.Background(), u.ID, "oldpass", "new", rewrapped); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument on short password, got %v", err)
	}
	if err := s.ChangePassword(context.Background(), u.ID, "oldpass", "newpass", rewrapped); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := s.LoginWithIP(context.Background(), "carol", "oldpass", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	_, got, err := s.LoginWithIP(context.Background(), "carol", "newpass", "")
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if got.WrappedPrivateKey != rewrapped {
		t.Fatalf("wrapped key not replaced")
	}
}

func TestAuth_MeAndPublicKey(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, []byte("k"), time.Minute, &fakeLimiter{})
	pub, wrapped := newKeys(t, "secret1")
	u, _, err := s.Register(context.Background(), RegisterInput{Username: "dave", Password: "secret1", PublicKey: pub, WrappedPrivateKey: wrapped})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	me, err := s.Me(context.Background(), u.ID)
	if err != nil || me.Username != "dave" || me.WrappedPrivateKey == "" {
		t.Fatalf("Me: %+v %v", me, err)
	}
	pk, err := s.PublicKey(context.Background(), u.ID)
	if err != nil || pk.PublicKey != pub || pk.WrappedPrivateKey != "" || len(pk.PwdHash) != 0 {
		t.Fatalf("PublicKey must expose only public data: %+v %v", pk, err)
	}
	if _, err := s.PublicKey(context.Background(), uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
