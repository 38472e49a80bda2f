// Package records provides the SQLite-backed local replica store.
package records

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

// Upsert replaces the record by (data_type, id). Applying a downloaded
// change twice converges to the same row, which keeps re-delivered delta
// windows idempotent.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records (id, data_type, payload, nonce, checksum, version, deleted, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(data_type, id) DO UPDATE SET
				payload = excluded.payload,
				nonce = excluded.nonce,
				checksum = excluded.checksum,
				version = excluded.version,
				deleted = excluded.deleted,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.DataType, rec.Payload, rec.Nonce, rec.Checksum, rec.Version, rec.Deleted, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, dataType, id string) (*models.Record, error) {
	query := `SELECT id, data_type, payload, nonce, checksum, version, deleted, updated_at
			FROM records WHERE data_type = ? AND id = ?`
	rec := &models.Record{}
	err := r.db.QueryRowContext(ctx, query, dataType, id).Scan(
		&rec.ID, &rec.DataType, &rec.Payload, &rec.Nonce, &rec.Checksum, &rec.Version, &rec.Deleted, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, dataType string) ([]models.Record, error) {
	query := `SELECT id, data_type, payload, nonce, checksum, version, updated_at
			FROM records WHERE data_type = ? AND deleted = 0 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, dataType)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var item models.Record
		if err := rows.Scan(&item.ID, &item.DataType, &item.Payload, &item.Nonce, &item.Checksum, &item.Version, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkDeleted(ctx context.Context, dataType, id string) error {
	query := `UPDATE records SET deleted = 1 WHERE data_type = ? AND id = ? AND deleted = 0`
	res, err := r.db.ExecContext(ctx, query, dataType, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, dataType, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE data_type = ? AND id = ?`, dataType, id)
	if err != nil {
		return fmt.Errorf("failed to purge record: %w", err)
	}
	return nil
}
