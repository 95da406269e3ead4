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
	ErrFileNotFound     = errors.New("shared file not found")
	ErrDuplicateShareID = errors.New("share id already exists")
)

type FileRepository interface {
	Create(file *model.SharedFile) error
	ByShareID(shareID string) (*model.SharedFile, error)
	ByUser(userID string) ([]*model.SharedFile, error)
	Delete(id string) error

	// ExpiredBefore lists shares whose expiry has passed, for the janitor to
	// remove together with their blobs.
	ExpiredBefore(cutoff time.Time) ([]*model.SharedFile, error)
}

type fileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(file *model.SharedFile) error {
	query := `INSERT INTO shared_files
		(id, user_id, share_id, filename, original_name, storage_path, mime_type, size, password_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(query,
		file.ID,
		file.UserID,
		file.ShareID,
		file.Filename,
		file.OriginalName,
		file.StoragePath,
		file.MimeType,
		file.Size,
		file.PasswordHash,
		file.CreatedAt,
		file.ExpiresAt,
	)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value") {
			return ErrDuplicateShareID
		}
		return err
	}

	return nil
}

func (r *fileRepository) ByShareID(shareID string) (*model.SharedFile, error) {
	file := &model.SharedFile{}
	query := `SELECT * FROM shared_files WHERE share_id = $1`

	err := r.db.Get(file, query, shareID)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}

	return file, err
}

func (r *fileRepository) ByUser(userID string) ([]*model.SharedFile, error) {
	var files []*model.SharedFile
	query := `SELECT * FROM shared_files WHERE user_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&files, query, userID)
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (r *fileRepository) Delete(id string) error {
	query := `DELETE FROM shared_files WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}

func (r *fileRepository) ExpiredBefore(cutoff time.Time) ([]*model.SharedFile, error) {
	var files []*model.SharedFile
	query := `SELECT * FROM shared_files WHERE expires_at < $1`

	err := r.db.Select(&files, query, cutoff)
	if err != nil {
		return nil, err
	}

	return files, nil
}
