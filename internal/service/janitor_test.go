package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopegrove/hopegrove/internal/model"
	"github.com/hopegrove/hopegrove/internal/repository"
)

func TestJanitorSweepsUnverifiedAccounts(t *testing.T) {
	users := newFakeUserRepo()
	files := newFakeFileRepo()
	store := newFakeStorage()
	janitor := NewJanitor(users, files, store, time.Minute, 24*time.Hour)

	stale := &model.User{
		ID:        uuid.New().String(),
		Email:     "stale@example.org",
		Username:  "stale",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, users.Create(stale))

	verified := &model.User{
		ID:            uuid.New().String(),
		Email:         "kept@example.org",
		Username:      "kept",
		EmailVerified: true,
		CreatedAt:     time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, users.Create(verified))

	janitor.Sweep(context.Background())

	_, err := users.ByEmail("stale@example.org")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	_, err = users.ByEmail("kept@example.org")
	assert.NoError(t, err)
}

func TestJanitorSweepsExpiredShares(t *testing.T) {
	users := newFakeUserRepo()
	files := newFakeFileRepo()
	store := newFakeStorage()
	janitor := NewJanitor(users, files, store, time.Minute, 24*time.Hour)

	shares := NewShareService(files, store, -time.Minute, 10*time.Minute)
	expired, err := shares.Share(context.Background(), ShareInput{
		UserID:       "user-1",
		OriginalName: "old.txt",
		Password:     "pw",
		Body:         strings.NewReader("old"),
	})
	require.NoError(t, err)

	live := shareFile(t, NewShareService(files, store, time.Hour, 10*time.Minute), "pw")

	require.Equal(t, 2, store.count())

	janitor.Sweep(context.Background())

	_, err = files.ByShareID(expired.ShareID)
	assert.ErrorIs(t, err, repository.ErrFileNotFound)

	_, err = files.ByShareID(live.ShareID)
	assert.NoError(t, err)

	assert.Equal(t, 1, store.count(), "the expired blob is gone with its row")
}

func TestJanitorRunStopsOnCancel(t *testing.T) {
	janitor := NewJanitor(newFakeUserRepo(), newFakeFileRepo(), newFakeStorage(), 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}
