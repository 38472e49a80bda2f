// Package queue provides the SQLite-backed offline sync queue.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	query := `INSERT INTO sync_queue
			(data_type, record_id, operation, payload, nonce, checksum, base_version, status, attempt_count, next_attempt_at, last_error, client_timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '', ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		item.DataType, item.RecordID, item.Operation,
		item.Payload, item.Nonce, item.Checksum, item.BaseVersion,
		models.QueueStatusPending, item.NextAttemptAt, item.ClientTimestamp, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get queue item id: %w", err)
	}
	item.ID = id
	item.Status = models.QueueStatusPending
	item.AttemptCount = 0
	return nil
}

// NextDue claims one item. The queue is processed strictly in enqueue order
// per replica, so the claim picks the smallest id. Single-writer by design:
// one worker goroutine owns the queue.
func (r *SQLiteRepository) NextDue(ctx context.Context, now time.Time) (*models.QueueItem, error) {
	query := `SELECT id, data_type, record_id, operation, payload, nonce, checksum, base_version, status, attempt_count, next_attempt_at, last_error, client_timestamp, created_at
			FROM sync_queue
			WHERE status = ? AND next_attempt_at <= ?
			ORDER BY id LIMIT 1`
	item := &models.QueueItem{}
	err := r.db.QueryRowContext(ctx, query, models.QueueStatusPending, now).Scan(
		&item.ID, &item.DataType, &item.RecordID, &item.Operation,
		&item.Payload, &item.Nonce, &item.Checksum, &item.BaseVersion,
		&item.Status, &item.AttemptCount, &item.NextAttemptAt, &item.LastError,
		&item.ClientTimestamp, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select due item: %w", err)
	}

	if err := r.setStatus(ctx, item.ID, models.QueueStatusProcessing); err != nil {
		return nil, err
	}
	item.Status = models.QueueStatusProcessing
	return item, nil
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, models.QueueStatusCompleted)
}

func (r *SQLiteRepository) Reschedule(ctx context.Context, id int64, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	query := `UPDATE sync_queue
			SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?
			WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, models.QueueStatusPending, attemptCount, nextAttemptAt, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule item: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string) error {
	query := `UPDATE sync_queue SET status = ?, attempt_count = ?, last_error = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, models.QueueStatusFailed, attemptCount, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}
	return requireOneRow(res)
}

// Retry resets the attempt counter and makes the item immediately due again.
func (r *SQLiteRepository) Retry(ctx context.Context, id int64) error {
	query := `UPDATE sync_queue
			SET status = ?, attempt_count = 0, next_attempt_at = ?, last_error = ''
			WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.QueueStatusPending, time.Unix(0, 0).UTC(), id, models.QueueStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to retry item: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status string) ([]models.QueueItem, error) {
	query := `SELECT id, data_type, record_id, operation, payload, nonce, checksum, base_version, status, attempt_count, next_attempt_at, last_error, client_timestamp, created_at
			FROM sync_queue WHERE status = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var result []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		if err := rows.Scan(
			&item.ID, &item.DataType, &item.RecordID, &item.Operation,
			&item.Payload, &item.Nonce, &item.Checksum, &item.BaseVersion,
			&item.Status, &item.AttemptCount, &item.NextAttemptAt, &item.LastError,
			&item.ClientTimestamp, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sync_queue WHERE status = ? AND created_at < ?`
	res, err := r.db.ExecContext(ctx, query, models.QueueStatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) setStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}
