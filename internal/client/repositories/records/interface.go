package records

import (
	"context"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
)

// Repository stores the encrypted local replica. Implementations are backed
// by a local SQLite database.
type Repository interface {
	// Upsert inserts a record or replaces an existing one by (data type, id).
	Upsert(ctx context.Context, rec *models.Record) error

	// GetByID returns a record including its deleted flag, or
	// common.ErrNotFound.
	GetByID(ctx context.Context, dataType, id string) (*models.Record, error)

	// GetAll lists non-deleted records for one data type.
	GetAll(ctx context.Context, dataType string) ([]models.Record, error)

	// MarkDeleted soft-deletes a record; the row stays until the deletion
	// round-trips through the server.
	MarkDeleted(ctx context.Context, dataType, id string) error

	// Purge physically removes a record, used after a server tombstone is
	// applied.
	Purge(ctx context.Context, dataType, id string) error
}
