package service

import (
	"context"
	"io"
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

type fakeFileRepo struct {
	mu    sync.Mutex
	files map[string]*model.SharedFile
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[string]*model.SharedFile)}
}

func (f *fakeFileRepo) Create(file *model.SharedFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.files {
		if existing.ShareID == file.ShareID {
			return repository.ErrDuplicateShareID
		}
	}
	clone := *file
	f.files[file.ID] = &clone
	return nil
}

func (f *fakeFileRepo) ByShareID(shareID string) (*model.SharedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, file := range f.files {
		if file.ShareID == shareID {
			clone := *file
			return &clone, nil
		}
	}
	return nil, repository.ErrFileNotFound
}

func (f *fakeFileRepo) ByUser(userID string) ([]*model.SharedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.SharedFile
	for _, file := range f.files {
		if file.UserID == userID {
			clone := *file
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeFileRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	return nil
}

func (f *fakeFileRepo) ExpiredBefore(cutoff time.Time) ([]*model.SharedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.SharedFile
	for _, file := range f.files {
		if file.ExpiresAt.Before(cutoff) {
			clone := *file
			out = append(out, &clone)
		}
	}
	return out, nil
}

// fakeStorage keeps blobs in a map.
type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (f *fakeStorage) Save(ctx context.Context, path string, file io.Reader, contentType string) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[path] = data
	return nil
}

func (f *fakeStorage) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, path)
	return nil
}

func (f *fakeStorage) PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	return "https://blobs.test/" + path + "?signed", nil
}

func (f *fakeStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

func newTestShare() (*ShareService, *fakeFileRepo, *fakeStorage) {
	files := newFakeFileRepo()
	store := newFakeStorage()
	svc := NewShareService(files, store, 10*time.Minute, 10*time.Minute)
	return svc, files, store
}

func shareFile(t *testing.T, svc *ShareService, password string) *model.SharedFile {
	t.Helper()
	file, err := svc.Share(context.Background(), ShareInput{
		UserID:       "user-1",
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		Size:         11,
		Password:     password,
		Body:         strings.NewReader("hello world"),
	})
	require.NoError(t, err)
	return file
}

func TestShare(t *testing.T) {
	svc, _, store := newTestShare()

	file := shareFile(t, svc, "open-sesame")

	assert.NotEmpty(t, file.ShareID)
	assert.Equal(t, "report.pdf", file.OriginalName)
	assert.NotEqual(t, "open-sesame", file.PasswordHash, "password is stored hashed")
	assert.Equal(t, 1, store.count())
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), file.ExpiresAt, time.Minute)
}

func TestShareRequiresPassword(t *testing.T) {
	svc, _, store := newTestShare()

	_, err := svc.Share(context.Background(), ShareInput{
		UserID:       "user-1",
		OriginalName: "report.pdf",
		Body:         strings.NewReader("data"),
	})
	assert.True(t, validation.IsError(err))
	assert.Equal(t, 0, store.count(), "nothing is uploaded on rejection")
}

func TestResolve(t *testing.T) {
	svc, _, _ := newTestShare()
	file := shareFile(t, svc, "open-sesame")

	url, got, err := svc.Resolve(context.Background(), file.ShareID, "open-sesame")
	require.NoError(t, err)
	assert.Contains(t, url, file.StoragePath)
	assert.Equal(t, "report.pdf", got.OriginalName)

	_, _, err = svc.Resolve(context.Background(), file.ShareID, "wrong")
	assert.ErrorIs(t, err, ErrSharePasswordInvalid)

	_, _, err = svc.Resolve(context.Background(), "missing", "open-sesame")
	assert.ErrorIs(t, err, ErrShareNotFound)
}

func TestResolveExpired(t *testing.T) {
	files := newFakeFileRepo()
	store := newFakeStorage()
	svc := NewShareService(files, store, -time.Minute, 10*time.Minute)

	file := shareFile(t, svc, "open-sesame")

	_, _, err := svc.Resolve(context.Background(), file.ShareID, "open-sesame")
	assert.ErrorIs(t, err, ErrShareExpired,
		"expiry is reported before the password is checked")
}
