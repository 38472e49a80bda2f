package syncstate

import (
	"context"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
)

// Repository tracks the per-data-type sync checkpoint.
type Repository interface {
	// Get returns the checkpoint, or common.ErrNotFound before first sync.
	Get(ctx context.Context, dataType string) (*models.SyncState, error)

	// Set upserts the checkpoint after a delta window is durably applied.
	Set(ctx context.Context, state *models.SyncState) error
}
