// Package tombstones provides the PostgreSQL-backed tombstone store.
package tombstones

import (
	"context"
	"fmt"
	"time"

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

// Upsert writes the marker; a repeated delete refreshes deleted_at/expires_at.
func (r *PostgresRepository) Upsert(ctx context.Context, ts *models.Tombstone) error {
	query := `
		INSERT INTO tombstones (user_id, data_type, record_id, deleted_at, deleted_by_device_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, data_type, record_id)
		DO UPDATE SET
			deleted_at = EXCLUDED.deleted_at,
			deleted_by_device_id = EXCLUDED.deleted_by_device_id,
			expires_at = EXCLUDED.expires_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		ts.UserID, ts.DataType, ts.RecordID, ts.DeletedAt, ts.DeletedByDeviceID, ts.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tombstone: %w", err)
	}
	return nil
}

// SelectSince pages through unexpired tombstones after since, oldest first.
// Expiry is filtered at read time as well, so a marker past its window
// disappears from results even before the sweep physically removes it.
func (r *PostgresRepository) SelectSince(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) ([]*models.Tombstone, error) {
	query := `
		SELECT user_id, data_type, record_id, deleted_at, deleted_by_device_id, expires_at
		FROM tombstones
		WHERE user_id = $1 AND data_type = $2 AND deleted_at > $3 AND expires_at > NOW()
		ORDER BY deleted_at ASC, record_id ASC
		LIMIT $4 OFFSET $5;
	`
	rows, err := r.db.QueryContext(ctx, query, userID, dataType, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	var result []*models.Tombstone
	for rows.Next() {
		ts := &models.Tombstone{}
		if err := rows.Scan(&ts.UserID, &ts.DataType, &ts.RecordID, &ts.DeletedAt, &ts.DeletedByDeviceID, &ts.ExpiresAt); err != nil {
			return nil, err
		}
		result = append(result, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountSince counts unexpired tombstones after since.
func (r *PostgresRepository) CountSince(ctx context.Context, userID, dataType string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM tombstones WHERE user_id = $1 AND data_type = $2 AND deleted_at > $3 AND expires_at > NOW();`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, dataType, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tombstones: %w", err)
	}
	return n, nil
}

// SweepExpired removes markers past their expiry.
func (r *PostgresRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tombstones WHERE expires_at < $1;`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
