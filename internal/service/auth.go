package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hopegrove/hopegrove/internal/model"
	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/token"
	"github.com/hopegrove/hopegrove/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid email/username or password")
	ErrEmailTaken         = errors.New("email already in use")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidToken       = errors.New("invalid or expired verification token")
	ErrPasswordUnchanged  = errors.New("new password cannot be the same as your current password")

	// Login against an unverified account fails with one of these two, so
	// the client can tell "we just sent you a link" from "check your inbox
	// for the link we already sent" without sniffing message text.
	ErrVerificationLinkSent    = errors.New("verification link sent")
	ErrVerificationLinkPending = errors.New("verification link already sent")
)

type AuthService struct {
	users  repository.UserRepository
	emails EmailSender

	jwtSecret    string
	isProduction bool
	jwtExpiry    time.Duration

	signupTokenExpiry time.Duration
	resetTokenExpiry  time.Duration
}

type RegisterInput struct {
	FullName string
	Email    string
	Username string
	Password string
}

func NewAuthService(
	users repository.UserRepository,
	emails EmailSender,
	jwtSecret string,
	isProduction bool,
	jwtExpiry time.Duration,
	signupTokenExpiry time.Duration,
	resetTokenExpiry time.Duration,
) *AuthService {
	return &AuthService{
		users:             users,
		emails:            emails,
		jwtSecret:         jwtSecret,
		isProduction:      isProduction,
		jwtExpiry:         jwtExpiry,
		signupTokenExpiry: signupTokenExpiry,
		resetTokenExpiry:  resetTokenExpiry,
	}
}

// Register creates an unverified account with a pending signup token and
// sends the verification email. Email delivery is best-effort and never
// fails the registration.
func (s *AuthService) Register(in RegisterInput) (*model.User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	username := strings.TrimSpace(strings.ToLower(in.Username))
	fullName := strings.TrimSpace(in.FullName)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateUsername(username)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateName(fullName)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, validation.NewError("password is required")
	}

	// Disambiguate which field collided before attempting the insert. The
	// unique indexes still back this up under concurrent registration.
	_, err = s.users.ByEmail(email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	_, err = s.users.ByUsername(username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	verificationToken, err := token.Generate(token.DefaultBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	expiry := token.ExpiryFrom(now, s.signupTokenExpiry)
	purpose := model.TokenPurposeSignup

	user := &model.User{
		ID:                       uuid.New().String(),
		FullName:                 fullName,
		Email:                    email,
		Username:                 username,
		PasswordHash:             &hash,
		Role:                     model.RoleUser,
		EmailVerified:            false,
		VerificationToken:        &verificationToken,
		VerificationTokenExpiry:  &expiry,
		VerificationTokenPurpose: &purpose,
		CreatedAt:                now,
	}

	err = s.users.Create(user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	err = s.emails.SendVerificationEmail(user.Email, verificationToken, user.FullName)
	if err != nil {
		slog.Warn("failed to send verification email", "error", err, "email", user.Email)
	}

	slog.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// VerifyEmail consumes a signup token: flips the account verified and clears
// the token slot in one conditional update.
func (s *AuthService) VerifyEmail(email, tok string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return repository.ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	if !user.TokenMatches(tok, model.TokenPurposeSignup, now) {
		return ErrInvalidToken
	}

	err = s.users.ConsumeSignupToken(user.ID, tok, now)
	if err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to consume token: %w", err)
	}

	// Confirmation is best-effort, the account is already verified.
	err = s.emails.SendEmailVerifiedEmail(user.Email, user.FullName)
	if err != nil {
		slog.Warn("failed to send verified confirmation email", "error", err, "email", user.Email)
	}

	slog.Info("email verified", "user_id", user.ID, "email", user.Email)
	return nil
}

// RequestPasswordReset issues a reset link, or reuses the outstanding one.
// It reports whether a new link was sent; a live reset token makes the
// request idempotent, so no new token and no second email.
func (s *AuthService) RequestPasswordReset(identifier string) (bool, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))

	user, err := s.users.ByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, repository.ErrUserNotFound
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	if user.HasValidToken(model.TokenPurposePasswordReset, now) {
		slog.Info("password reset link still valid, not resending", "user_id", user.ID)
		return false, nil
	}

	newToken, err := token.Generate(token.DefaultBytes)
	if err != nil {
		return false, fmt.Errorf("failed to generate token: %w", err)
	}

	slot := model.TokenSlot{
		Token:   newToken,
		Expiry:  token.ExpiryFrom(now, s.resetTokenExpiry),
		Purpose: model.TokenPurposePasswordReset,
	}
	err = s.users.RotateTokenSlot(user.ID, user.VerificationToken, slot)
	if err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			// A concurrent request rotated the slot first; its email is the
			// one that counts.
			return false, nil
		}
		return false, fmt.Errorf("failed to rotate token slot: %w", err)
	}

	err = s.emails.SendPasswordResetEmail(user.Email, newToken, user.FullName)
	if err != nil {
		slog.Warn("failed to send password reset email", "error", err, "email", user.Email)
	}

	slog.Info("password reset link sent", "user_id", user.ID)
	return true, nil
}

// ValidateResetToken checks a reset link without consuming it, so a client
// can decide whether to render the new-password form.
func (s *AuthService) ValidateResetToken(email, tok string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return repository.ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !user.TokenMatches(tok, model.TokenPurposePasswordReset, time.Now()) {
		return ErrInvalidToken
	}

	return nil
}

// CompletePasswordReset rotates the password after validating the reset
// token. The new password must satisfy the policy and differ from the
// current one. Verifying the reset link also proves ownership of the email
// address, so the account is marked verified as a side effect.
func (s *AuthService) CompletePasswordReset(email, tok, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return repository.ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	if !user.TokenMatches(tok, model.TokenPurposePasswordReset, now) {
		return ErrInvalidToken
	}

	err = validation.ValidatePassword(password)
	if err != nil {
		return err
	}

	if user.HasPassword() {
		err = s.ComparePassword(password, *user.PasswordHash)
		if err == nil {
			return ErrPasswordUnchanged
		}
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	wasUnverified := !user.EmailVerified

	err = s.users.ConsumePasswordResetToken(user.ID, tok, hash, now)
	if err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	// Confirmations run in the background; the reset already succeeded.
	go func() {
		sendErr := s.emails.SendPasswordChangedEmail(user.Email, user.FullName)
		if sendErr != nil {
			slog.Warn("failed to send password changed email", "error", sendErr, "email", user.Email)
		}
	}()
	if wasUnverified {
		go func() {
			sendErr := s.emails.SendEmailVerifiedEmail(user.Email, user.FullName)
			if sendErr != nil {
				slog.Warn("failed to send verified confirmation email", "error", sendErr, "email", user.Email)
			}
		}()
	}

	slog.Info("password reset completed", "user_id", user.ID, "email_verified_now", wasUnverified)
	return nil
}

// Login authenticates an identifier/password pair. Unknown accounts,
// federated accounts without a usable password and wrong passwords all fail
// with the same generic error. An unverified account with a correct password
// gets a fresh verification link when the previous one is gone or expired.
func (s *AuthService) Login(identifier, password string) (*model.User, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))

	user, err := s.users.ByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		// Federated account: the password path fails closed.
		return nil, ErrInvalidCredentials
	}

	err = s.ComparePassword(password, *user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, s.refreshSignupToken(user)
	}

	return user, nil
}

// refreshSignupToken handles the unverified-login path: reuse a live signup
// token, otherwise rotate in a fresh one and email it.
func (s *AuthService) refreshSignupToken(user *model.User) error {
	now := time.Now()
	if user.HasValidToken(model.TokenPurposeSignup, now) {
		return ErrVerificationLinkPending
	}

	newToken, err := token.Generate(token.DefaultBytes)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	slot := model.TokenSlot{
		Token:   newToken,
		Expiry:  token.ExpiryFrom(now, s.signupTokenExpiry),
		Purpose: model.TokenPurposeSignup,
	}
	err = s.users.RotateTokenSlot(user.ID, user.VerificationToken, slot)
	if err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			return ErrVerificationLinkPending
		}
		return fmt.Errorf("failed to rotate token slot: %w", err)
	}

	err = s.emails.SendVerificationEmail(user.Email, newToken, user.FullName)
	if err != nil {
		slog.Warn("failed to send verification email", "error", err, "email", user.Email)
	}

	slog.Info("new verification link issued on login", "user_id", user.ID)
	return ErrVerificationLinkSent
}

// AuthenticateOAuth upserts a credential for a verified external identity.
// New accounts carry no usable password, so the password login path fails
// closed for them; the provider is the trust anchor, no token flow runs.
func (s *AuthService) AuthenticateOAuth(email, name, provider string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ByEmail(email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to lookup user: %w", err)
		}
		return s.createOAuthUser(email, name, provider)
	}

	// Existing account: the provider has verified the address.
	if !user.EmailVerified {
		user.EmailVerified = true
		err = s.users.Update(user)
		if err != nil {
			slog.Warn("failed to mark email as verified", "error", err, "user_id", user.ID)
			// Don't fail login
		}
	}

	slog.Info("user authenticated via oauth", "user_id", user.ID, "provider", provider)
	return user, nil
}

func (s *AuthService) createOAuthUser(email, name, provider string) (*model.User, error) {
	username := strings.SplitN(email, "@", 2)[0]
	if validation.ValidateUsername(username) != nil {
		username = "user"
	}
	fullName := strings.TrimSpace(name)
	if fullName == "" {
		fullName = username
	}

	// Retry with a random suffix when the derived username is taken.
	for attempt := 0; attempt < 3; attempt++ {
		candidate := username
		if attempt > 0 {
			suffix, err := token.Generate(2)
			if err != nil {
				return nil, fmt.Errorf("failed to generate username suffix: %w", err)
			}
			candidate = fmt.Sprintf("%s-%s", username, suffix)
		}

		user := &model.User{
			ID:            uuid.New().String(),
			FullName:      fullName,
			Email:         email,
			Username:      candidate,
			PasswordHash:  nil, // no usable password, password login fails closed
			Role:          model.RoleUser,
			EmailVerified: true,
			CreatedAt:     time.Now(),
		}

		err := s.users.Create(user)
		if err == nil {
			slog.Info("new oauth user created", "user_id", user.ID, "email", email, "provider", provider)
			return user, nil
		}
		if errors.Is(err, repository.ErrDuplicateUsername) {
			continue
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return nil, errors.New("failed to derive a unique username")
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateJWT issues the session token with the identity claims the clients
// rely on.
func (s *AuthService) GenerateJWT(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":        user.ID,
		"email":          user.Email,
		"name":           user.FullName,
		"role":           user.Role,
		"email_verified": user.EmailVerified,
		"exp":            time.Now().Add(s.jwtExpiry).Unix(),
		"iat":            time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if ok && parsed.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

func (s *AuthService) SetJWTCookie(w http.ResponseWriter, tok string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    tok,
		Expires:  expiry,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) ClearJWTCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Expires:  time.Unix(0, 0),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// JWTExpiry exposes the configured session lifetime for cookie expiry.
func (s *AuthService) JWTExpiry() time.Duration {
	return s.jwtExpiry
}
