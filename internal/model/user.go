package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Token slot purposes. The slot is shared: issuing a token for one purpose
// overwrites whatever the slot held before.
const (
	TokenPurposeSignup        = "signup"
	TokenPurposePasswordReset = "password-reset"
)

type User struct {
	ID           string  `db:"id"`
	FullName     string  `db:"full_name"`
	Email        string  `db:"email"`
	Username     string  `db:"username"`
	PasswordHash *string `db:"password_hash"` // NULL for federated accounts, password login fails closed
	Role         string  `db:"role"`

	EmailVerified bool `db:"email_verified"`

	// Single-use verification slot. All three fields are set and cleared
	// together, never partially.
	VerificationToken        *string    `db:"verification_token"`
	VerificationTokenExpiry  *time.Time `db:"verification_token_expiry"`
	VerificationTokenPurpose *string    `db:"verification_token_purpose"`

	CreatedAt time.Time `db:"created_at"`
}

// TokenSlot is the value written into a user's verification slot.
type TokenSlot struct {
	Token   string
	Expiry  time.Time
	Purpose string
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// HasValidToken reports whether the slot holds a live token for the given
// purpose: token present, expiry in the future, purpose matching.
func (u *User) HasValidToken(purpose string, now time.Time) bool {
	if u.VerificationToken == nil || *u.VerificationToken == "" {
		return false
	}
	if u.VerificationTokenExpiry == nil || !u.VerificationTokenExpiry.After(now) {
		return false
	}
	return u.VerificationTokenPurpose != nil && *u.VerificationTokenPurpose == purpose
}

// TokenMatches reports whether the given token would be accepted for the
// given purpose right now. Expired tokens are rejected even on an exact
// string match.
func (u *User) TokenMatches(token, purpose string, now time.Time) bool {
	return u.HasValidToken(purpose, now) && *u.VerificationToken == token
}
