package model

import (
	"time"
)

// SharedFile is a password-gated file share. The access password is required
// and stored with the same bcrypt discipline as user credentials. Rows past
// ExpiresAt are removed by the janitor.
type SharedFile struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	ShareID      string    `db:"share_id"`
	Filename     string    `db:"filename"`
	OriginalName string    `db:"original_name"`
	StoragePath  string    `db:"storage_path"`
	MimeType     string    `db:"mime_type"`
	Size         int64     `db:"size"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

func (f *SharedFile) IsExpired(now time.Time) bool {
	return !f.ExpiresAt.After(now)
}
