package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hopegrove/hopegrove/internal/model"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrStaleToken is returned by the conditional slot updates when the
	// row's token no longer matches the expected value, i.e. a concurrent
	// request rotated or consumed the slot first.
	ErrStaleToken = errors.New("verification token slot changed concurrently")
)

type UserRepository interface {
	Create(user *model.User) error
	ByID(id string) (*model.User, error)
	ByEmail(email string) (*model.User, error)
	ByUsername(username string) (*model.User, error)
	ByIdentifier(identifier string) (*model.User, error)
	Update(user *model.User) error
	Delete(id string) error

	// RotateTokenSlot writes a new token slot, conditional on the slot still
	// holding prevToken (nil means "currently empty"). Compare-and-swap
	// keyed on the previous token removes the lost-update race between
	// concurrent rotations.
	RotateTokenSlot(userID string, prevToken *string, slot model.TokenSlot) error

	// ConsumeSignupToken atomically marks the user verified and clears the
	// slot, conditional on the slot holding an unexpired signup token with
	// the given value. Only one request can win.
	ConsumeSignupToken(userID, tok string, now time.Time) error

	// ConsumePasswordResetToken atomically installs the new password hash,
	// marks the user verified and clears the slot, with the same
	// conditional-update discipline as ConsumeSignupToken.
	ConsumePasswordResetToken(userID, tok, passwordHash string, now time.Time) error

	// DeleteUnverifiedBefore removes unverified accounts created before the
	// cutoff. This is the store's time-to-live policy for abandoned signups.
	DeleteUnverifiedBefore(cutoff time.Time) (int64, error)
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *model.User) error {
	query := `INSERT INTO users
		(id, full_name, email, username, password_hash, role, email_verified,
		 verification_token, verification_token_expiry, verification_token_purpose, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(query,
		user.ID,
		user.FullName,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.EmailVerified,
		user.VerificationToken,
		user.VerificationTokenExpiry,
		user.VerificationTokenPurpose,
		user.CreatedAt,
	)
	if err != nil {
		// Check for unique constraint violation (works for both SQLite and PostgreSQL)
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value") {
			if strings.Contains(errStr, "username") {
				return ErrDuplicateUsername
			}
			return ErrDuplicateEmail
		}
		return err
	}

	return nil
}

func (r *userRepository) ByID(id string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE id = $1`

	err := r.db.Get(user, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) ByEmail(email string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE email = $1`

	err := r.db.Get(user, query, email)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) ByUsername(username string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE username = $1`

	err := r.db.Get(user, query, username)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

// ByIdentifier looks a user up by email or username. Callers normalize the
// identifier to lowercase first.
func (r *userRepository) ByIdentifier(identifier string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE email = $1 OR username = $1`

	err := r.db.Get(user, query, identifier)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) Update(user *model.User) error {
	query := `UPDATE users SET
		full_name = $1, email = $2, username = $3, password_hash = $4, role = $5,
		email_verified = $6, verification_token = $7, verification_token_expiry = $8,
		verification_token_purpose = $9
		WHERE id = $10`

	_, err := r.db.Exec(query,
		user.FullName,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.EmailVerified,
		user.VerificationToken,
		user.VerificationTokenExpiry,
		user.VerificationTokenPurpose,
		user.ID,
	)
	return err
}

func (r *userRepository) Delete(id string) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) RotateTokenSlot(userID string, prevToken *string, slot model.TokenSlot) error {
	var result sql.Result
	var err error

	if prevToken == nil {
		query := `UPDATE users SET
			verification_token = $1, verification_token_expiry = $2, verification_token_purpose = $3
			WHERE id = $4 AND verification_token IS NULL`
		result, err = r.db.Exec(query, slot.Token, slot.Expiry, slot.Purpose, userID)
	} else {
		query := `UPDATE users SET
			verification_token = $1, verification_token_expiry = $2, verification_token_purpose = $3
			WHERE id = $4 AND verification_token = $5`
		result, err = r.db.Exec(query, slot.Token, slot.Expiry, slot.Purpose, userID, *prevToken)
	}
	if err != nil {
		return err
	}

	return requireRow(result, ErrStaleToken)
}

func (r *userRepository) ConsumeSignupToken(userID, tok string, now time.Time) error {
	query := `UPDATE users SET
		email_verified = TRUE,
		verification_token = NULL, verification_token_expiry = NULL, verification_token_purpose = NULL
		WHERE id = $1 AND verification_token = $2
		AND verification_token_purpose = $3 AND verification_token_expiry > $4`

	result, err := r.db.Exec(query, userID, tok, model.TokenPurposeSignup, now)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStaleToken)
}

func (r *userRepository) ConsumePasswordResetToken(userID, tok, passwordHash string, now time.Time) error {
	query := `UPDATE users SET
		password_hash = $1, email_verified = TRUE,
		verification_token = NULL, verification_token_expiry = NULL, verification_token_purpose = NULL
		WHERE id = $2 AND verification_token = $3
		AND verification_token_purpose = $4 AND verification_token_expiry > $5`

	result, err := r.db.Exec(query, passwordHash, userID, tok, model.TokenPurposePasswordReset, now)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStaleToken)
}

func (r *userRepository) DeleteUnverifiedBefore(cutoff time.Time) (int64, error) {
	query := `DELETE FROM users WHERE email_verified = FALSE AND created_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// requireRow turns a zero-row conditional update into the given error.
func requireRow(result sql.Result, missing error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return missing
	}
	return nil
}
