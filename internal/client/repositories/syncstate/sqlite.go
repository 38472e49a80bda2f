// Package syncstate provides the SQLite-backed sync checkpoint store.
package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, dataType string) (*models.SyncState, error) {
	query := `SELECT data_type, last_sync_at, server_version, updated_at FROM sync_state WHERE data_type = ?`
	state := &models.SyncState{}
	err := r.db.QueryRowContext(ctx, query, dataType).Scan(
		&state.DataType, &state.LastSyncAt, &state.ServerVersion, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, state *models.SyncState) error {
	query := `INSERT INTO sync_state (data_type, last_sync_at, server_version, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(data_type) DO UPDATE SET
				last_sync_at = excluded.last_sync_at,
				server_version = excluded.server_version,
				updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, state.DataType, state.LastSyncAt, state.ServerVersion, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}
	return nil
}
