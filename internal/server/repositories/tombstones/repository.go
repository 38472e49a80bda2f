package tombstones

import (
	"context"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
)

// Repository stores time-bounded deletion markers.
type Repository interface {
	// Upsert records a deletion, replacing any existing marker for the same
	// (user, data type, record); re-deleting extends the expiry.
	Upsert(ctx context.Context, ts *models.Tombstone) error

	// SelectSince returns unexpired tombstones with DeletedAt strictly after
	// since, ordered by DeletedAt ascending, paginated by limit/offset.
	SelectSince(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) ([]*models.Tombstone, error)

	// CountSince counts unexpired tombstones with DeletedAt strictly after since.
	CountSince(ctx context.Context, userID, dataType string, since time.Time) (int64, error)

	// SweepExpired removes tombstones whose ExpiresAt has passed and returns
	// how many were removed. Idempotent.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
