// Package changes provides the PostgreSQL-backed append-only change ledger.
package changes

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

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AppendGuarded performs the single conditional insert the engine relies on
// to avoid lost updates: the row is written only while the record's latest
// committed version still matches what the resolver read. changed_at is
// forced strictly above the partition's current maximum so it can serve as
// the delta cursor even under clock jitter.
func (r *PostgresRepository) AppendGuarded(ctx context.Context, rec *models.ChangeRecord, expectedRecordVersion int64) error {
	query := `
		INSERT INTO change_ledger
			(user_id, data_type, record_id, change_type, payload, nonce, checksum, version, device_id, changed_at, client_timestamp)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9,
			GREATEST(
				clock_timestamp(),
				COALESCE((SELECT MAX(changed_at) FROM change_ledger WHERE user_id = $1 AND data_type = $2), clock_timestamp() - interval '1 microsecond')
					+ interval '1 microsecond'
			),
			$10
		WHERE COALESCE(
			(SELECT version FROM change_ledger
				WHERE user_id = $1 AND data_type = $2 AND record_id = $3
				ORDER BY version DESC LIMIT 1),
			0) = $11
		RETURNING id, changed_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.UserID, rec.DataType, rec.RecordID, rec.ChangeType,
		rec.Payload, rec.Nonce, rec.Checksum, rec.Version, rec.DeviceID,
		rec.ClientTimestamp, expectedRecordVersion,
	).Scan(&rec.ID, &rec.ChangedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return nil
}

// GetLatest returns the newest ledger row for a record.
func (r *PostgresRepository) GetLatest(ctx context.Context, userID, dataType, recordID string) (*models.ChangeRecord, error) {
	query := `
		SELECT id, user_id, data_type, record_id, change_type, payload, nonce, checksum, version, device_id, changed_at, client_timestamp
		FROM change_ledger
		WHERE user_id = $1 AND data_type = $2 AND record_id = $3
		ORDER BY version DESC
		LIMIT 1;
	`
	rec := &models.ChangeRecord{}
	err := r.db.QueryRowContext(ctx, query, userID, dataType, recordID).Scan(
		&rec.ID, &rec.UserID, &rec.DataType, &rec.RecordID, &rec.ChangeType,
		&rec.Payload, &rec.Nonce, &rec.Checksum, &rec.Version, &rec.DeviceID,
		&rec.ChangedAt, &rec.ClientTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest change: %w", err)
	}
	return rec, nil
}

// SelectSince pages through the partition's ledger rows after since, oldest
// first. The surrogate id breaks (theoretical) changed_at ties.
func (r *PostgresRepository) SelectSince(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) ([]*models.ChangeRecord, error) {
	query := `
		SELECT id, user_id, data_type, record_id, change_type, payload, nonce, checksum, version, device_id, changed_at, client_timestamp
		FROM change_ledger
		WHERE user_id = $1 AND data_type = $2 AND changed_at > $3
		ORDER BY changed_at ASC, id ASC
		LIMIT $4 OFFSET $5;
	`
	rows, err := r.db.QueryContext(ctx, query, userID, dataType, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	defer rows.Close()

	var result []*models.ChangeRecord
	for rows.Next() {
		rec := &models.ChangeRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.DataType, &rec.RecordID, &rec.ChangeType,
			&rec.Payload, &rec.Nonce, &rec.Checksum, &rec.Version, &rec.DeviceID,
			&rec.ChangedAt, &rec.ClientTimestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountSince counts partition rows after since.
func (r *PostgresRepository) CountSince(ctx context.Context, userID, dataType string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM change_ledger WHERE user_id = $1 AND data_type = $2 AND changed_at > $3;`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, dataType, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count changes: %w", err)
	}
	return n, nil
}

// SweepOlderThan removes propagated history past the retention window.
func (r *PostgresRepository) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM change_ledger WHERE changed_at < $1;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
