package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hopegrove/hopegrove/internal/model"
	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/storage"
	"github.com/hopegrove/hopegrove/internal/token"
	"github.com/hopegrove/hopegrove/internal/validation"
)

var (
	ErrShareNotFound        = errors.New("shared file not found")
	ErrShareExpired         = errors.New("share link has expired")
	ErrSharePasswordInvalid = errors.New("incorrect share password")
)

// ShareService manages password-gated, short-lived file shares. The blob
// lives in object storage; the row carries the share id, the password hash
// and the expiry.
type ShareService struct {
	files         repository.FileRepository
	store         storage.Storage
	shareTTL      time.Duration
	presignExpiry time.Duration
}

func NewShareService(files repository.FileRepository, store storage.Storage, shareTTL, presignExpiry time.Duration) *ShareService {
	return &ShareService{
		files:         files,
		store:         store,
		shareTTL:      shareTTL,
		presignExpiry: presignExpiry,
	}
}

type ShareInput struct {
	UserID       string
	OriginalName string
	MimeType     string
	Size         int64
	Password     string
	Body         io.Reader
}

// Share stores the blob and creates the gated link. The password is
// mandatory: a share without one is unreachable by design of the resolve
// path, so it is rejected up front.
func (s *ShareService) Share(ctx context.Context, in ShareInput) (*model.SharedFile, error) {
	if in.Password == "" {
		return nil, validation.NewError("share password is required")
	}
	if in.OriginalName == "" {
		return nil, validation.NewError("filename is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash share password: %w", err)
	}

	shareID, err := token.Generate(6)
	if err != nil {
		return nil, fmt.Errorf("failed to generate share id: %w", err)
	}

	id := uuid.New().String()
	storagePath := fmt.Sprintf("shares/%s/%s", in.UserID, id)

	err = s.store.Save(ctx, storagePath, in.Body, in.MimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	now := time.Now()
	file := &model.SharedFile{
		ID:           id,
		UserID:       in.UserID,
		ShareID:      shareID,
		Filename:     id,
		OriginalName: in.OriginalName,
		StoragePath:  storagePath,
		MimeType:     in.MimeType,
		Size:         in.Size,
		PasswordHash: string(hash),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.shareTTL),
	}

	err = s.files.Create(file)
	if err != nil {
		// Orphaned blob, best-effort cleanup.
		delErr := s.store.Delete(ctx, storagePath)
		if delErr != nil {
			slog.Warn("failed to clean up orphaned blob", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create shared file: %w", err)
	}

	slog.Info("file shared", "share_id", shareID, "user_id", in.UserID, "expires_at", file.ExpiresAt)
	return file, nil
}

// Resolve exchanges a share id and password for a presigned download URL.
// Expiry is checked before the password so a stale link never reveals
// whether the password was right.
func (s *ShareService) Resolve(ctx context.Context, shareID, password string) (string, *model.SharedFile, error) {
	file, err := s.files.ByShareID(shareID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return "", nil, ErrShareNotFound
		}
		return "", nil, fmt.Errorf("failed to get shared file: %w", err)
	}

	if file.IsExpired(time.Now()) {
		return "", nil, ErrShareExpired
	}

	err = bcrypt.CompareHashAndPassword([]byte(file.PasswordHash), []byte(password))
	if err != nil {
		return "", nil, ErrSharePasswordInvalid
	}

	url, err := s.store.PresignedURL(ctx, file.StoragePath, s.presignExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return url, file, nil
}
