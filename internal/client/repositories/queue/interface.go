package queue

import (
	"context"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
)

// Repository persists deferred sync operations across restarts.
type Repository interface {
	// Enqueue appends a new pending item and populates its ID.
	Enqueue(ctx context.Context, item *models.QueueItem) error

	// NextDue claims the oldest pending item whose backoff has elapsed,
	// moving it to processing. Returns common.ErrNotFound when nothing is
	// due.
	NextDue(ctx context.Context, now time.Time) (*models.QueueItem, error)

	// MarkCompleted finishes an item successfully.
	MarkCompleted(ctx context.Context, id int64) error

	// Reschedule returns a processing item to pending after a transient
	// failure, recording the attempt, the error, and the next allowed
	// attempt time.
	Reschedule(ctx context.Context, id int64, attemptCount int, nextAttemptAt time.Time, lastError string) error

	// MarkFailed parks an item after its attempts are exhausted or on a
	// permanent error. Failed items are never auto-discarded.
	MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string) error

	// Retry resets a failed item for another round of attempts.
	Retry(ctx context.Context, id int64) error

	// ListByStatus returns items with the given status, oldest first.
	ListByStatus(ctx context.Context, status string) ([]models.QueueItem, error)

	// DeleteCompleted removes completed items older than cutoff.
	DeleteCompleted(ctx context.Context, cutoff time.Time) (int64, error)
}
