package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/storage"
)

// Janitor sweeps expired state on a fixed interval: unverified accounts
// past their grace period and shared files past their expiry, blobs
// included. SQL has no TTL index, so expiry is enforced here.
type Janitor struct {
	users repository.UserRepository
	files repository.FileRepository
	store storage.Storage

	interval      time.Duration
	unverifiedTTL time.Duration
}

func NewJanitor(users repository.UserRepository, files repository.FileRepository, store storage.Storage, interval, unverifiedTTL time.Duration) *Janitor {
	return &Janitor{
		users:         users,
		files:         files,
		store:         store,
		interval:      interval,
		unverifiedTTL: unverifiedTTL,
	}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick.
func (j *Janitor) Run(ctx context.Context) {
	slog.Info("janitor started", "interval", j.interval, "unverified_ttl", j.unverifiedTTL)

	j.Sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. Failures are logged and retried next tick.
func (j *Janitor) Sweep(ctx context.Context) {
	now := time.Now()

	removed, err := j.users.DeleteUnverifiedBefore(now.Add(-j.unverifiedTTL))
	if err != nil {
		slog.Error("failed to delete stale unverified accounts", "error", err)
	} else if removed > 0 {
		slog.Info("deleted stale unverified accounts", "count", removed)
	}

	expired, err := j.files.ExpiredBefore(now)
	if err != nil {
		slog.Error("failed to list expired shared files", "error", err)
		return
	}

	for _, file := range expired {
		// Blob first: if the delete fails the row stays, and the next pass
		// retries. A row without a blob would leak a dangling share.
		err = j.store.Delete(ctx, file.StoragePath)
		if err != nil {
			slog.Warn("failed to delete expired blob", "error", err, "path", file.StoragePath)
			continue
		}
		err = j.files.Delete(file.ID)
		if err != nil {
			slog.Warn("failed to delete expired share row", "error", err, "id", file.ID)
			continue
		}
		slog.Info("expired share removed", "share_id", file.ShareID)
	}
}
