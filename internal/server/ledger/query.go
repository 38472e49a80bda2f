package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/cache"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
)

// defaultPageSize is used when the caller leaves limit unset.
const defaultPageSize = 100

// validatePage clamps/validates pagination inputs. A zero limit selects the
// default page size; anything out of the 1..MaxBatchSize range or a negative
// offset is a validation error.
func validatePage(limit, offset int) (int, error) {
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 1 || limit > common.MaxBatchSize {
		return 0, fmt.Errorf("%w: limit %d out of range 1..%d", common.ErrValidation, limit, common.MaxBatchSize)
	}
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative offset", common.ErrValidation)
	}
	return limit, nil
}

// Changes returns one page of ledger rows and tombstones after since,
// ordered by their timestamps ascending, plus the totals a client needs to
// plan pagination. A since in the future (clock skew) yields an empty page,
// not an error; a since past the retention window silently omits expired
// data, and callers detect the gap via their own checkpoint age.
func (s *Service) Changes(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) (*api.DownloadResponse, error) {
	if !common.ValidDataType(dataType) {
		return nil, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, dataType)
	}
	limit, err := validatePage(limit, offset)
	if err != nil {
		return nil, err
	}

	changesRepo := s.repos.Changes(s.db)
	tombRepo := s.repos.Tombstones(s.db)

	recs, err := changesRepo.SelectSince(ctx, userID, dataType, since, limit, offset)
	if err != nil {
		return nil, err
	}
	stones, err := tombRepo.SelectSince(ctx, userID, dataType, since, limit, offset)
	if err != nil {
		return nil, err
	}
	totalChanges, err := changesRepo.CountSince(ctx, userID, dataType, since)
	if err != nil {
		return nil, err
	}
	totalDeletes, err := tombRepo.CountSince(ctx, userID, dataType, since)
	if err != nil {
		return nil, err
	}

	next := offset + limit
	resp := &api.DownloadResponse{
		Changes:          make([]api.Change, 0, len(recs)),
		Deletions:        make([]api.Deletion, 0, len(stones)),
		HasMore:          int64(next) < totalChanges || int64(next) < totalDeletes,
		NextOffset:       next,
		TotalChangeCount: totalChanges,
		TotalDeleteCount: totalDeletes,
	}
	for _, rec := range recs {
		resp.Changes = append(resp.Changes, toWireChange(rec))
	}
	for _, ts := range stones {
		resp.Deletions = append(resp.Deletions, toWireDeletion(ts))
	}
	return resp, nil
}

// Deleted returns one page of the tombstone sequence only.
func (s *Service) Deleted(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) (*api.DeletedResponse, error) {
	if !common.ValidDataType(dataType) {
		return nil, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, dataType)
	}
	limit, err := validatePage(limit, offset)
	if err != nil {
		return nil, err
	}

	tombRepo := s.repos.Tombstones(s.db)
	stones, err := tombRepo.SelectSince(ctx, userID, dataType, since, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := tombRepo.CountSince(ctx, userID, dataType, since)
	if err != nil {
		return nil, err
	}

	next := offset + limit
	resp := &api.DeletedResponse{
		Deletions:        make([]api.Deletion, 0, len(stones)),
		HasMore:          int64(next) < total,
		NextOffset:       next,
		TotalDeleteCount: total,
	}
	for _, ts := range stones {
		resp.Deletions = append(resp.Deletions, toWireDeletion(ts))
	}
	return resp, nil
}

// PendingCounts reports how many changes and deletions accumulated since the
// partition's last acknowledged sync. Served from the TTL cache when warm.
func (s *Service) PendingCounts(ctx context.Context, userID, dataType string) (int64, int64, error) {
	if !common.ValidDataType(dataType) {
		return 0, 0, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, dataType)
	}

	if s.counts != nil {
		cached, err := s.counts.Get(ctx, userID, dataType)
		if err != nil {
			s.logger.Warn(ctx, "counts cache read failed", "error", err)
		} else if cached != nil {
			return cached.Changes, cached.Deletes, nil
		}
	}

	since := time.Time{}
	meta, err := s.repos.SyncMeta(s.db).Get(ctx, userID, dataType)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return 0, 0, err
	}
	if meta != nil {
		since = meta.LastSyncAt
	}

	changes, err := s.repos.Changes(s.db).CountSince(ctx, userID, dataType, since)
	if err != nil {
		return 0, 0, err
	}
	deletes, err := s.repos.Tombstones(s.db).CountSince(ctx, userID, dataType, since)
	if err != nil {
		return 0, 0, err
	}

	if s.counts != nil {
		if err := s.counts.Set(ctx, userID, dataType, cache.PendingCounts{Changes: changes, Deletes: deletes}); err != nil {
			s.logger.Warn(ctx, "counts cache write failed", "error", err)
		}
	}
	return changes, deletes, nil
}

// Status assembles the sync bookkeeping view for one data type.
func (s *Service) Status(ctx context.Context, userID, dataType string) (*api.StatusResponse, error) {
	if !common.ValidDataType(dataType) {
		return nil, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, dataType)
	}

	resp := &api.StatusResponse{DataType: dataType, Status: models.SyncStatusIdle}

	meta, err := s.repos.SyncMeta(s.db).Get(ctx, userID, dataType)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if meta != nil {
		resp.LastSyncAt = meta.LastSyncAt
		resp.Version = meta.Version
		resp.Status = meta.Status
	}

	resp.PendingChanges, resp.PendingDeletes, err = s.PendingCounts(ctx, userID, dataType)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Advance moves the server-side checkpoint after the client durably applied
// a downloaded window. Called only then: a client crash mid-apply leaves the
// checkpoint alone so the next delta re-delivers the same window.
func (s *Service) Advance(ctx context.Context, userID, dataType string, req api.AckRequest) error {
	if !common.ValidDataType(dataType) {
		return fmt.Errorf("%w: unknown data type %q", common.ErrValidation, dataType)
	}
	if req.SyncedAt.IsZero() {
		return fmt.Errorf("%w: synced_at is required", common.ErrValidation)
	}
	if req.SyncedAt.After(s.now().Add(time.Minute)) {
		return fmt.Errorf("%w: synced_at is in the future", common.ErrValidation)
	}
	return s.repos.SyncMeta(s.db).Advance(ctx, userID, dataType, req.Version, req.SyncedAt, req.ItemsApplied, req.ItemsDeleted)
}

func toWireChange(rec *models.ChangeRecord) api.Change {
	return api.Change{
		RecordID:        rec.RecordID,
		ChangeType:      rec.ChangeType,
		Payload:         rec.Payload,
		Nonce:           rec.Nonce,
		Checksum:        rec.Checksum,
		Version:         rec.Version,
		DeviceID:        rec.DeviceID,
		ChangedAt:       rec.ChangedAt,
		ClientTimestamp: rec.ClientTimestamp,
	}
}

func toWireDeletion(ts *models.Tombstone) api.Deletion {
	return api.Deletion{
		RecordID:          ts.RecordID,
		DeletedAt:         ts.DeletedAt,
		DeletedByDeviceID: ts.DeletedByDeviceID,
	}
}
