package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
)

// Sweep removes ledger rows past the 30-day retention window and tombstones
// past their expiry. Both deletes are plain delete-if-older-than statements,
// so the sweep is idempotent and safe to run concurrently with reads and
// writes.
func (s *Service) Sweep(ctx context.Context) (ledgerRemoved, tombstonesRemoved int64, err error) {
	now := s.now()

	ledgerRemoved, err = s.repos.Changes(s.db).SweepOlderThan(ctx, now.Add(-common.LedgerRetention))
	if err != nil {
		return 0, 0, err
	}
	tombstonesRemoved, err = s.repos.Tombstones(s.db).SweepExpired(ctx, now)
	if err != nil {
		return ledgerRemoved, 0, err
	}
	return ledgerRemoved, tombstonesRemoved, nil
}

// Sweeper runs Service.Sweep on a fixed interval. It is an explicit task
// with Start/Stop so the lifecycle is testable without a scheduler.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper builds a Sweeper ticking every interval.
func NewSweeper(service *Service, interval time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger.With("module", "sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; the loop ends when
// Stop is called or ctx is cancelled.
func (w *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for a running sweep to finish.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Sweeper) runOnce(ctx context.Context) {
	ledger, stones, err := w.service.Sweep(ctx)
	if err != nil {
		w.logger.Error(ctx, "retention sweep failed", "error", err)
		return
	}
	if ledger > 0 || stones > 0 {
		w.logger.Info(ctx, "retention sweep completed", "ledger_removed", ledger, "tombstones_removed", stones)
	}
}
