package sync

import (
	"context"
	"errors"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
)

const (
	// maxAttempts bounds delivery retries per queue item. After the last
	// attempt the item is parked as failed and kept for manual retry.
	maxAttempts = 5

	backoffBase = 10 * time.Second
	backoffCap  = 15 * time.Minute

	// completedRetention is how long finished queue items are kept before
	// cleanup.
	completedRetention = 24 * time.Hour
)

// Worker runs the periodic sync cycle: drain the offline queue, then pull
// deltas for every data type. A single goroutine owns the queue, so items
// are delivered strictly in enqueue order.
type Worker struct {
	service  *Service
	logger   logging.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWorker(service *Service, interval time.Duration, logger logging.Logger) *Worker {
	return &Worker{
		service:  service,
		logger:   logger.With("module", "sync-worker"),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the cycle loop. One immediate cycle runs on startup so a
// freshly started agent converges without waiting a full interval.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.doneCh)

		w.runCycle(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.runCycle(ctx)
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the in-flight cycle to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) runCycle(ctx context.Context) {
	w.drainQueue(ctx)

	for _, dt := range common.DataTypes {
		if err := w.service.Pull(ctx, string(dt)); err != nil {
			if errors.Is(err, common.ErrStaleWindow) {
				if err := w.service.Resync(ctx, string(dt)); err != nil {
					w.logger.Error(ctx, "resync failed", "data_type", dt, "error", err)
				}
				continue
			}
			w.logger.Error(ctx, "pull failed", "data_type", dt, "error", err)
		}
	}

	if _, err := w.service.queue.DeleteCompleted(ctx, w.service.now().Add(-completedRetention)); err != nil {
		w.logger.Error(ctx, "queue cleanup failed", "error", err)
	}
}

// drainQueue delivers due items until the queue is empty or an item hits a
// transient failure. Stopping at the first retryable error preserves
// delivery order: a later change must not overtake an earlier one.
func (w *Worker) drainQueue(ctx context.Context) {
	for {
		item, err := w.service.queue.NextDue(ctx, w.service.now())
		if errors.Is(err, common.ErrNotFound) {
			return
		}
		if err != nil {
			w.logger.Error(ctx, "queue claim failed", "error", err)
			return
		}

		if err := w.service.PushItem(ctx, item); err != nil {
			if errors.Is(err, common.ErrRetryable) {
				w.reschedule(ctx, item, err)
			} else {
				w.logger.Error(ctx, "queue item failed", "id", item.ID, "error", err)
			}
			return
		}
	}
}

// reschedule applies the persisted backoff schedule to a transiently failed
// item, or parks it once its attempts are exhausted.
func (w *Worker) reschedule(ctx context.Context, item *models.QueueItem, cause error) {
	attempts := item.AttemptCount + 1
	if attempts >= maxAttempts {
		w.logger.Warn(ctx, "queue item exhausted its attempts", "id", item.ID, "error", cause)
		if err := w.service.queue.MarkFailed(ctx, item.ID, attempts, common.ErrRetryExhausted.Error()); err != nil {
			w.logger.Error(ctx, "failed to park queue item", "id", item.ID, "error", err)
		}
		return
	}

	next := w.service.now().Add(backoffFor(attempts))
	if err := w.service.queue.Reschedule(ctx, item.ID, attempts, next, cause.Error()); err != nil {
		w.logger.Error(ctx, "failed to reschedule queue item", "id", item.ID, "error", err)
	}
}

// backoffFor doubles the delay per attempt up to a cap: 10s, 20s, 40s, ...
func backoffFor(attempts int) time.Duration {
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
