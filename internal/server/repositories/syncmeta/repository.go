package syncmeta

import (
	"context"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
)

// Repository tracks per-(user, data type) sync bookkeeping and owns the
// partition version counter.
type Repository interface {
	// Get returns the metadata row, or common.ErrNotFound before first sync.
	Get(ctx context.Context, userID, dataType string) (*models.SyncMetadata, error)

	// IncrementVersion atomically advances the partition version counter,
	// creating the row on first use, and returns the new value.
	IncrementVersion(ctx context.Context, userID, dataType string) (int64, error)

	// Advance moves the sync checkpoint forward after a client durably
	// applied a window. It never moves last_sync_at backwards.
	Advance(ctx context.Context, userID, dataType string, version int64, syncedAt time.Time, applied, deleted int64) error

	// SetStatus updates the status column (idle | syncing | error).
	SetStatus(ctx context.Context, userID, dataType, status string) error
}
