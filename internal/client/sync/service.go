package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/queue"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/records"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/syncstate"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/cryptox"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
)

// pageSize is the delta window requested per download call.
const pageSize = 500

// Service runs push and pull cycles between the local replica and the
// server. Local edits go through QueueUpload/QueueDelete so they survive
// restarts; the worker later delivers them via PushItem.
type Service struct {
	transport Transport
	records   records.Repository
	queue     queue.Repository
	state     syncstate.Repository
	logger    logging.Logger
	deviceID  string

	now func() time.Time
}

func NewService(t Transport, r records.Repository, q queue.Repository, s syncstate.Repository, deviceID string, logger logging.Logger) *Service {
	return &Service{
		transport: t,
		records:   r,
		queue:     q,
		state:     s,
		logger:    logger.With("module", "sync"),
		deviceID:  deviceID,
		now:       time.Now,
	}
}

// QueueUpload applies an edit to the local replica and enqueues it for
// delivery. The queue item snapshots the payload, so later local edits do
// not change what this item uploads.
func (s *Service) QueueUpload(ctx context.Context, dataType, recordID string, payload, nonce []byte) error {
	now := s.now().UTC()

	var baseVersion int64
	if existing, err := s.records.GetByID(ctx, dataType, recordID); err == nil {
		baseVersion = existing.Version
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	checksum := cryptox.Checksum(payload)

	rec := &models.Record{
		ID:        recordID,
		DataType:  dataType,
		Payload:   payload,
		Nonce:     nonce,
		Checksum:  checksum,
		Version:   baseVersion,
		UpdatedAt: now,
	}
	if err := s.records.Upsert(ctx, rec); err != nil {
		return err
	}

	item := &models.QueueItem{
		DataType:        dataType,
		RecordID:        recordID,
		Operation:       models.OpUpload,
		Payload:         payload,
		Nonce:           nonce,
		Checksum:        checksum,
		BaseVersion:     baseVersion,
		NextAttemptAt:   now,
		ClientTimestamp: now,
		CreatedAt:       now,
	}
	return s.queue.Enqueue(ctx, item)
}

// QueueDelete soft-deletes a record locally and enqueues the deletion.
func (s *Service) QueueDelete(ctx context.Context, dataType, recordID string) error {
	now := s.now().UTC()

	existing, err := s.records.GetByID(ctx, dataType, recordID)
	if err != nil {
		return err
	}
	if err := s.records.MarkDeleted(ctx, dataType, recordID); err != nil {
		return err
	}

	item := &models.QueueItem{
		DataType:        dataType,
		RecordID:        recordID,
		Operation:       models.OpDelete,
		BaseVersion:     existing.Version,
		NextAttemptAt:   now,
		ClientTimestamp: now,
		CreatedAt:       now,
	}
	return s.queue.Enqueue(ctx, item)
}

// PushItem delivers one claimed queue item to the server and settles its
// outcome. A transport error is returned to the caller, which owns the
// retry schedule; every other outcome finishes the item here.
func (s *Service) PushItem(ctx context.Context, item *models.QueueItem) error {
	ts := item.ClientTimestamp
	req := &api.UploadRequest{
		DeviceID:        s.deviceID,
		ClientTimestamp: &ts,
		Changes:         []api.ChangeSubmission{submissionFor(item)},
	}

	resp, err := s.transport.Upload(ctx, item.DataType, req)
	if err != nil {
		if errors.Is(err, common.ErrRetryable) {
			return err
		}
		// Permanent errors park the item for manual inspection.
		s.logger.Error(ctx, "upload rejected", "record_id", item.RecordID, "error", err)
		if mErr := s.queue.MarkFailed(ctx, item.ID, item.AttemptCount+1, err.Error()); mErr != nil {
			return mErr
		}
		return nil
	}

	if len(resp.Results) != 1 {
		return fmt.Errorf("%w: expected one result, got %d", common.ErrInternal, len(resp.Results))
	}
	return s.settleResult(ctx, item, resp.Results[0])
}

func (s *Service) settleResult(ctx context.Context, item *models.QueueItem, result api.UploadItemResult) error {
	switch result.Status {
	case api.ItemCommitted:
		if item.Operation == models.OpDelete {
			if err := s.records.Purge(ctx, item.DataType, item.RecordID); err != nil {
				return err
			}
		} else {
			rec := &models.Record{
				ID:        item.RecordID,
				DataType:  item.DataType,
				Payload:   item.Payload,
				Nonce:     item.Nonce,
				Checksum:  item.Checksum,
				Version:   result.Version,
				UpdatedAt: s.now().UTC(),
			}
			if err := s.records.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return s.queue.MarkCompleted(ctx, item.ID)

	case api.ItemConflict:
		return s.settleConflict(ctx, item, result.Conflict)

	case api.ItemRejected:
		s.logger.Warn(ctx, "server rejected change", "record_id", item.RecordID, "reason", result.Reason)
		return s.queue.MarkFailed(ctx, item.ID, item.AttemptCount+1, result.Reason)

	default:
		return fmt.Errorf("%w: unknown item status %q", common.ErrInternal, result.Status)
	}
}

// settleConflict resolves a divergence the server reported. When the server
// side won, its state replaces the local copy and the item is done. Anything
// needing a human stays in the queue as failed, never discarded.
func (s *Service) settleConflict(ctx context.Context, item *models.QueueItem, info *api.ConflictInfo) error {
	if info != nil && info.Strategy == "use_server" {
		s.logger.Info(ctx, "conflict resolved in server's favor", "record_id", item.RecordID, "server_version", info.ServerVersion)

		if info.ServerPayload == nil {
			// The record was deleted server-side.
			if err := s.records.Purge(ctx, item.DataType, item.RecordID); err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		} else {
			rec := &models.Record{
				ID:        item.RecordID,
				DataType:  item.DataType,
				Payload:   info.ServerPayload,
				Nonce:     info.ServerNonce,
				Checksum:  info.ServerChecksum,
				Version:   info.ServerVersion,
				UpdatedAt: info.ServerUpdatedAt,
			}
			if err := s.records.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return s.queue.MarkCompleted(ctx, item.ID)
	}

	s.logger.Warn(ctx, "conflict requires manual resolution", "record_id", item.RecordID)
	return s.queue.MarkFailed(ctx, item.ID, item.AttemptCount+1, common.ErrConflict.Error())
}

// Pull downloads and applies the delta window since the last checkpoint.
// A checkpoint older than the server's ledger retention returns
// ErrStaleWindow; the caller must run Resync instead.
func (s *Service) Pull(ctx context.Context, dataType string) error {
	since := time.Time{}
	if state, err := s.state.Get(ctx, dataType); err == nil {
		since = state.LastSyncAt
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	if !since.IsZero() && s.now().Sub(since) > common.LedgerRetention {
		return fmt.Errorf("%w: last sync at %s", common.ErrStaleWindow, since.Format(time.RFC3339))
	}

	return s.pull(ctx, dataType, since)
}

// Resync rebuilds the replica from the full window the server still holds.
// Upserts converge on top of existing rows, and records the full window no
// longer mentions are purged afterwards.
func (s *Service) Resync(ctx context.Context, dataType string) error {
	s.logger.Warn(ctx, "running full resync", "data_type", dataType)
	return s.pull(ctx, dataType, time.Time{})
}

func (s *Service) pull(ctx context.Context, dataType string, since time.Time) error {
	var (
		applied, deleted int64
		maxVersion       int64
		checkpoint       = since
	)

	// A full window enumerates every record still alive server-side, so a
	// local record it never mentions is a ghost whose tombstone already
	// expired.
	fullWindow := since.IsZero()
	seen := make(map[string]struct{})

	offset := 0
	for {
		page, err := s.transport.Download(ctx, dataType, since, pageSize, offset)
		if err != nil {
			return err
		}

		for _, ch := range page.Changes {
			if err := s.applyChange(ctx, dataType, ch); err != nil {
				return err
			}
			applied++
			if ch.Version > maxVersion {
				maxVersion = ch.Version
			}
			if ch.ChangedAt.After(checkpoint) {
				checkpoint = ch.ChangedAt
			}
			if fullWindow {
				if ch.ChangeType == api.ChangeDelete {
					delete(seen, ch.RecordID)
				} else {
					seen[ch.RecordID] = struct{}{}
				}
			}
		}

		for _, d := range page.Deletions {
			if err := s.records.Purge(ctx, dataType, d.RecordID); err != nil {
				return err
			}
			deleted++
			if d.DeletedAt.After(checkpoint) {
				checkpoint = d.DeletedAt
			}
			if fullWindow {
				delete(seen, d.RecordID)
			}
		}

		if !page.HasMore {
			break
		}
		offset = page.NextOffset
	}

	if fullWindow {
		if err := s.purgeGhosts(ctx, dataType, seen); err != nil {
			return err
		}
	}

	if applied == 0 && deleted == 0 {
		// Empty window: the existing checkpoint stays valid, and until the
		// server reports a timestamp there is nothing safe to advance to.
		return nil
	}

	now := s.now().UTC()

	ack := &api.AckRequest{
		Version:      maxVersion,
		SyncedAt:     now,
		ItemsApplied: applied,
		ItemsDeleted: deleted,
	}
	if err := s.transport.Ack(ctx, dataType, ack); err != nil {
		return err
	}

	return s.state.Set(ctx, &models.SyncState{
		DataType:      dataType,
		LastSyncAt:    checkpoint,
		ServerVersion: maxVersion,
		UpdatedAt:     now,
	})
}

// purgeGhosts removes records a full window did not mention. Records that
// never reached the server keep version 0 and are left alone; their upload
// is still queued.
func (s *Service) purgeGhosts(ctx context.Context, dataType string, seen map[string]struct{}) error {
	local, err := s.records.GetAll(ctx, dataType)
	if err != nil {
		return err
	}
	for _, rec := range local {
		if _, ok := seen[rec.ID]; ok || rec.Version == 0 {
			continue
		}
		s.logger.Info(ctx, "purging record absent from full window", "data_type", dataType, "record_id", rec.ID)
		if err := s.records.Purge(ctx, dataType, rec.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
	}
	return nil
}

// applyChange folds one downloaded ledger entry into the replica. Both
// branches are idempotent, so re-delivered windows are harmless.
func (s *Service) applyChange(ctx context.Context, dataType string, ch api.Change) error {
	if ch.ChangeType == api.ChangeDelete {
		if err := s.records.Purge(ctx, dataType, ch.RecordID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return nil
	}

	rec := &models.Record{
		ID:        ch.RecordID,
		DataType:  dataType,
		Payload:   ch.Payload,
		Nonce:     ch.Nonce,
		Checksum:  ch.Checksum,
		Version:   ch.Version,
		UpdatedAt: ch.ChangedAt,
	}
	return s.records.Upsert(ctx, rec)
}

func submissionFor(item *models.QueueItem) api.ChangeSubmission {
	ts := item.ClientTimestamp
	sub := api.ChangeSubmission{
		RecordID:        item.RecordID,
		BaseVersion:     item.BaseVersion,
		ClientTimestamp: &ts,
	}

	switch item.Operation {
	case models.OpDelete:
		sub.ChangeType = api.ChangeDelete
	default:
		if item.BaseVersion == 0 {
			sub.ChangeType = api.ChangeInsert
		} else {
			sub.ChangeType = api.ChangeUpdate
		}
		sub.Payload = item.Payload
		sub.Nonce = item.Nonce
		sub.Checksum = item.Checksum
	}
	return sub
}
