// Package syncmeta provides the PostgreSQL-backed sync metadata tracker.
package syncmeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/dbx"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID, dataType string) (*models.SyncMetadata, error) {
	query := `
		SELECT user_id, data_type, last_sync_at, version, items_synced, items_changed, items_deleted, status, updated_at
		FROM sync_metadata
		WHERE user_id = $1 AND data_type = $2;
	`
	m := &models.SyncMetadata{}
	err := r.db.QueryRowContext(ctx, query, userID, dataType).Scan(
		&m.UserID, &m.DataType, &m.LastSyncAt, &m.Version,
		&m.ItemsSynced, &m.ItemsChanged, &m.ItemsDeleted, &m.Status, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata: %w", err)
	}
	return m, nil
}

// IncrementVersion advances the partition counter in a single statement so
// concurrent ingests never hand out the same version.
func (r *PostgresRepository) IncrementVersion(ctx context.Context, userID, dataType string) (int64, error) {
	query := `
		INSERT INTO sync_metadata (user_id, data_type, last_sync_at, version, status)
		VALUES ($1, $2, to_timestamp(0), 1, 'idle')
		ON CONFLICT (user_id, data_type)
		DO UPDATE SET version = sync_metadata.version + 1, updated_at = NOW()
		RETURNING version;
	`
	var v int64
	if err := r.db.QueryRowContext(ctx, query, userID, dataType).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to increment version: %w", err)
	}
	return v, nil
}

// Advance records a completed delta exchange. GREATEST keeps a late ack from
// an older window from rewinding the checkpoint.
func (r *PostgresRepository) Advance(ctx context.Context, userID, dataType string, version int64, syncedAt time.Time, applied, deleted int64) error {
	query := `
		INSERT INTO sync_metadata (user_id, data_type, last_sync_at, version, items_synced, items_changed, items_deleted, status)
		VALUES ($1, $2, $3, $4, $5, $5, $6, 'idle')
		ON CONFLICT (user_id, data_type)
		DO UPDATE SET
			last_sync_at = GREATEST(sync_metadata.last_sync_at, EXCLUDED.last_sync_at),
			version = GREATEST(sync_metadata.version, EXCLUDED.version),
			items_synced = sync_metadata.items_synced + EXCLUDED.items_synced,
			items_changed = sync_metadata.items_changed + EXCLUDED.items_changed,
			items_deleted = sync_metadata.items_deleted + EXCLUDED.items_deleted,
			status = 'idle',
			updated_at = NOW();
	`
	if _, err := r.db.ExecContext(ctx, query, userID, dataType, syncedAt, version, applied, deleted); err != nil {
		return fmt.Errorf("failed to advance sync metadata: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, userID, dataType, status string) error {
	query := `
		INSERT INTO sync_metadata (user_id, data_type, last_sync_at, version, status)
		VALUES ($1, $2, to_timestamp(0), 0, $3)
		ON CONFLICT (user_id, data_type)
		DO UPDATE SET status = EXCLUDED.status, updated_at = NOW();
	`
	if _, err := r.db.ExecContext(ctx, query, userID, dataType, status); err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}
