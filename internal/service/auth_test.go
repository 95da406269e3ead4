package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopegrove/hopegrove/internal/model"
	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/validation"
)

// fakeUserRepo is an in-memory UserRepository with the same conditional
// update semantics as the SQL implementation.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
	}

	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) ByID(id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) ByEmail(email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) ByUsername(username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username })
}

func (f *fakeUserRepo) ByIdentifier(identifier string) (*model.User, error) {
	return f.find(func(u *model.User) bool {
		return u.Email == identifier || u.Username == identifier
	})
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) Update(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) RotateTokenSlot(userID string, prevToken *string, slot model.TokenSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return repository.ErrStaleToken
	}

	if prevToken == nil {
		if u.VerificationToken != nil {
			return repository.ErrStaleToken
		}
	} else {
		if u.VerificationToken == nil || *u.VerificationToken != *prevToken {
			return repository.ErrStaleToken
		}
	}

	tok, expiry, purpose := slot.Token, slot.Expiry, slot.Purpose
	u.VerificationToken = &tok
	u.VerificationTokenExpiry = &expiry
	u.VerificationTokenPurpose = &purpose
	return nil
}

func (f *fakeUserRepo) ConsumeSignupToken(userID, tok string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok || !u.TokenMatches(tok, model.TokenPurposeSignup, now) {
		return repository.ErrStaleToken
	}

	u.EmailVerified = true
	u.VerificationToken = nil
	u.VerificationTokenExpiry = nil
	u.VerificationTokenPurpose = nil
	return nil
}

func (f *fakeUserRepo) ConsumePasswordResetToken(userID, tok, passwordHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok || !u.TokenMatches(tok, model.TokenPurposePasswordReset, now) {
		return repository.ErrStaleToken
	}

	u.PasswordHash = &passwordHash
	u.EmailVerified = true
	u.VerificationToken = nil
	u.VerificationTokenExpiry = nil
	u.VerificationTokenPurpose = nil
	return nil
}

func (f *fakeUserRepo) DeleteUnverifiedBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var removed int64
	for id, u := range f.users {
		if !u.EmailVerified && u.CreatedAt.Before(cutoff) {
			delete(f.users, id)
			removed++
		}
	}
	return removed, nil
}

// fakeEmailSender records sends instead of delivering.
type fakeEmailSender struct {
	mu           sync.Mutex
	verification []string
	reset        []string
	changed      []string
	verified     []string
	failSends    bool
}

func (f *fakeEmailSender) SendVerificationEmail(email, tok, name string) error {
	return f.record(&f.verification, email)
}

func (f *fakeEmailSender) SendPasswordResetEmail(email, tok, name string) error {
	return f.record(&f.reset, email)
}

func (f *fakeEmailSender) SendPasswordChangedEmail(email, name string) error {
	return f.record(&f.changed, email)
}

func (f *fakeEmailSender) SendEmailVerifiedEmail(email, name string) error {
	return f.record(&f.verified, email)
}

func (f *fakeEmailSender) record(dst *[]string, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSends {
		return assert.AnError
	}
	*dst = append(*dst, email)
	return nil
}

func (f *fakeEmailSender) verificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verification)
}

func (f *fakeEmailSender) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reset)
}

func newTestAuth() (*AuthService, *fakeUserRepo, *fakeEmailSender) {
	users := newFakeUserRepo()
	emails := &fakeEmailSender{}
	svc := NewAuthService(users, emails, "test-secret", false, time.Hour, 24*time.Hour, 5*time.Minute)
	return svc, users, emails
}

func register(t *testing.T, svc *AuthService, email, username string) *model.User {
	t.Helper()
	user, err := svc.Register(RegisterInput{
		FullName: "Mira Kassem",
		Email:    email,
		Username: username,
		Password: "hunter22",
	})
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	svc, _, emails := newTestAuth()

	user := register(t, svc, "Mira@Example.org", "Mira")

	assert.Equal(t, "mira@example.org", user.Email, "email is normalized")
	assert.Equal(t, "mira", user.Username, "username is normalized")
	assert.False(t, user.EmailVerified)
	require.NotNil(t, user.VerificationToken)
	assert.Equal(t, model.TokenPurposeSignup, *user.VerificationTokenPurpose)
	assert.Equal(t, 1, emails.verificationCount())
}

func TestRegisterConflicts(t *testing.T) {
	svc, _, _ := newTestAuth()
	register(t, svc, "mira@example.org", "mira")

	_, err := svc.Register(RegisterInput{
		FullName: "Other", Email: "mira@example.org", Username: "other", Password: "hunter22",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Register(RegisterInput{
		FullName: "Other", Email: "other@example.org", Username: "mira", Password: "hunter22",
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestAuth()

	_, err := svc.Register(RegisterInput{FullName: "M", Email: "not-an-email", Username: "mira", Password: "x"})
	assert.True(t, validation.IsError(err))

	_, err = svc.Register(RegisterInput{FullName: "M", Email: "m@example.org", Username: "mira", Password: ""})
	assert.True(t, validation.IsError(err))
}

func TestRegisterEmailFailureDoesNotFail(t *testing.T) {
	svc, _, emails := newTestAuth()
	emails.failSends = true

	user, err := svc.Register(RegisterInput{
		FullName: "Mira", Email: "mira@example.org", Username: "mira", Password: "hunter22",
	})
	require.NoError(t, err, "a broken mailer must not break registration")
	assert.NotNil(t, user)
}

func TestVerifyEmail(t *testing.T) {
	svc, users, _ := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	err := svc.VerifyEmail("MIRA@example.org", *user.VerificationToken)
	require.NoError(t, err)

	got, err := users.ByID(user.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	assert.Nil(t, got.VerificationToken)

	// One-shot: the same link cannot be used twice.
	err = svc.VerifyEmail("mira@example.org", *user.VerificationToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmailWrongToken(t *testing.T) {
	svc, _, _ := newTestAuth()
	register(t, svc, "mira@example.org", "mira")

	err := svc.VerifyEmail("mira@example.org", "bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)

	err = svc.VerifyEmail("nobody@example.org", "bogus")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestRequestPasswordReset(t *testing.T) {
	svc, users, emails := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	sent, err := svc.RequestPasswordReset("mira")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 1, emails.resetCount())

	got, err := users.ByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VerificationTokenPurpose)
	assert.Equal(t, model.TokenPurposePasswordReset, *got.VerificationTokenPurpose,
		"reset request replaces a pending signup token")

	// A live reset token makes the request idempotent.
	sent, err = svc.RequestPasswordReset("mira@example.org")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, emails.resetCount())

	_, err = svc.RequestPasswordReset("ghost@example.org")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestCompletePasswordReset(t *testing.T) {
	svc, users, _ := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	_, err := svc.RequestPasswordReset("mira")
	require.NoError(t, err)

	got, err := users.ByID(user.ID)
	require.NoError(t, err)
	tok := *got.VerificationToken

	require.NoError(t, svc.ValidateResetToken("mira@example.org", tok))

	err = svc.CompletePasswordReset("mira@example.org", tok, "brand-new-pass")
	require.NoError(t, err)

	got, err = users.ByID(user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.VerificationToken)
	assert.True(t, got.EmailVerified, "a completed reset proves the address")
	assert.NoError(t, svc.ComparePassword("brand-new-pass", *got.PasswordHash))

	// Token is consumed.
	err = svc.CompletePasswordReset("mira@example.org", tok, "another-pass")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCompletePasswordResetPolicy(t *testing.T) {
	svc, users, _ := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	_, err := svc.RequestPasswordReset("mira")
	require.NoError(t, err)

	got, err := users.ByID(user.ID)
	require.NoError(t, err)
	tok := *got.VerificationToken

	err = svc.CompletePasswordReset("mira@example.org", tok, "tiny")
	assert.True(t, validation.IsError(err), "short passwords are rejected")

	err = svc.CompletePasswordReset("mira@example.org", tok, "hunter22")
	assert.ErrorIs(t, err, ErrPasswordUnchanged)

	// Neither failure consumed the token.
	require.NoError(t, svc.ValidateResetToken("mira@example.org", tok))
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")
	require.NoError(t, svc.VerifyEmail("mira@example.org", *user.VerificationToken))

	got, err := svc.Login("mira", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Login("mira", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("ghost", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginPasswordlessAccountFailsClosed(t *testing.T) {
	svc, _, _ := newTestAuth()

	_, err := svc.AuthenticateOAuth("mira@example.org", "Mira Kassem", "google")
	require.NoError(t, err)

	_, err = svc.Login("mira@example.org", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("mira@example.org", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnverified(t *testing.T) {
	svc, users, emails := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	// The signup token is still live: no new email.
	_, err := svc.Login("mira", "hunter22")
	assert.ErrorIs(t, err, ErrVerificationLinkPending)
	assert.Equal(t, 1, emails.verificationCount())

	// Expire the slot, then login rotates in a fresh link.
	got, err := users.ByID(user.ID)
	require.NoError(t, err)
	expired := time.Now().Add(-time.Minute)
	got.VerificationTokenExpiry = &expired
	require.NoError(t, users.Update(got))

	_, err = svc.Login("mira", "hunter22")
	assert.ErrorIs(t, err, ErrVerificationLinkSent)
	assert.Equal(t, 2, emails.verificationCount())

	fresh, err := users.ByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.VerificationToken)
	assert.NotEqual(t, *got.VerificationToken, *fresh.VerificationToken)
}

func TestAuthenticateOAuth(t *testing.T) {
	svc, _, _ := newTestAuth()

	user, err := svc.AuthenticateOAuth("Mira@Example.org", "Mira Kassem", "github")
	require.NoError(t, err)
	assert.Equal(t, "mira@example.org", user.Email)
	assert.Equal(t, "mira", user.Username, "username derives from the email local part")
	assert.True(t, user.EmailVerified)
	assert.Nil(t, user.PasswordHash)

	// Same identity again: no duplicate account.
	again, err := svc.AuthenticateOAuth("mira@example.org", "Mira Kassem", "github")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestAuthenticateOAuthVerifiesExistingAccount(t *testing.T) {
	svc, users, _ := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	got, err := svc.AuthenticateOAuth("mira@example.org", "Mira Kassem", "google")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	stored, err := users.ByID(user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified, "the provider vouches for the address")
	assert.NotNil(t, stored.PasswordHash, "the credential password survives")
}

func TestAuthenticateOAuthUsernameCollision(t *testing.T) {
	svc, _, _ := newTestAuth()
	register(t, svc, "mira@other.org", "mira")

	user, err := svc.AuthenticateOAuth("mira@example.org", "Mira Kassem", "google")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.Username, "mira-"), "collisions get a random suffix, got %q", user.Username)
}

func TestJWTRoundTrip(t *testing.T) {
	svc, _, _ := newTestAuth()
	user := register(t, svc, "mira@example.org", "mira")

	tok, err := svc.GenerateJWT(user)
	require.NoError(t, err)

	claims, err := svc.VerifyJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, "mira@example.org", claims["email"])
	assert.Equal(t, model.RoleUser, claims["role"])
	assert.Equal(t, false, claims["email_verified"])

	_, err = svc.VerifyJWT(tok + "tampered")
	assert.Error(t, err)

	other := NewAuthService(newFakeUserRepo(), &fakeEmailSender{}, "other-secret", false, time.Hour, time.Hour, time.Hour)
	_, err = other.VerifyJWT(tok)
	assert.Error(t, err)
}
