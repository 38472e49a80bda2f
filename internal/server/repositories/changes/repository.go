package changes

import (
	"context"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
)

// Repository is the append-only change ledger for one backing store.
type Repository interface {
	// AppendGuarded appends rec as a new ledger row, but only if the latest
	// committed version of the record still equals expectedRecordVersion
	// (0 when the record has no history). On success rec.ID and
	// rec.ChangedAt are populated; on a guard miss it returns
	// common.ErrVersionConflict so the caller can re-resolve.
	AppendGuarded(ctx context.Context, rec *models.ChangeRecord, expectedRecordVersion int64) error

	// GetLatest returns the most recent ledger row for a record, or
	// common.ErrNotFound when the record has no history.
	GetLatest(ctx context.Context, userID, dataType, recordID string) (*models.ChangeRecord, error)

	// SelectSince returns ledger rows with ChangedAt strictly after since,
	// ordered by ChangedAt ascending, paginated by limit/offset.
	SelectSince(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) ([]*models.ChangeRecord, error)

	// CountSince counts ledger rows with ChangedAt strictly after since.
	CountSince(ctx context.Context, userID, dataType string, since time.Time) (int64, error)

	// SweepOlderThan deletes rows with ChangedAt before cutoff and returns
	// how many were removed. Idempotent and safe to run concurrently with
	// reads and writes.
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
