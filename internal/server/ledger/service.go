// Package ledger implements the delta synchronization core: the append-only
// change ledger, tombstone propagation, conflict-checked batch ingest,
// paginated delta queries, and retention sweeps.
package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/cryptox"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/dbx"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/cache"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/conflict"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/repomanager"
)

// guardRetries bounds how often one item re-runs the resolve/commit cycle
// after losing the conditional insert to a concurrent writer.
const guardRetries = 3

// CountsCache caches pending-change counts. May be nil (cache disabled).
type CountsCache interface {
	Get(ctx context.Context, userID, dataType string) (*cache.PendingCounts, error)
	Set(ctx context.Context, userID, dataType string, counts cache.PendingCounts) error
	Invalidate(ctx context.Context, userID, dataType string) error
}

// Service is the server-side delta sync engine over a RepositoryManager.
type Service struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	resolver *conflict.Resolver
	counts   CountsCache
	logger   logging.Logger
	now      func() time.Time
}

// NewService wires the engine. counts may be nil to disable caching.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, resolver *conflict.Resolver, counts CountsCache, logger logging.Logger) *Service {
	return &Service{
		db:       db,
		repos:    repos,
		resolver: resolver,
		counts:   counts,
		logger:   logger.With("module", "ledger"),
		now:      time.Now,
	}
}

// Ingest validates and commits a batch of client-submitted changes. Each
// item commits or is rejected on its own; one bad item never aborts its
// siblings. The batch size itself is validated before any ledger write.
func (s *Service) Ingest(ctx context.Context, userID, dataType, deviceID string, batchTS *time.Time, batch []api.ChangeSubmission) (*api.UploadResponse, error) {
	if !common.ValidDataType(dataType) {
		return nil, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, dataType)
	}
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", common.ErrValidation)
	}
	if len(batch) == 0 || len(batch) > common.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d out of range 1..%d", common.ErrValidation, len(batch), common.MaxBatchSize)
	}

	resp := &api.UploadResponse{Results: make([]api.UploadItemResult, 0, len(batch))}
	committed := 0
	for _, ch := range batch {
		res := s.ingestOne(ctx, userID, dataType, deviceID, batchTS, ch)
		if res.Status == api.ItemCommitted {
			committed++
			if res.Version > resp.MaxVersion {
				resp.MaxVersion = res.Version
			}
		}
		resp.Results = append(resp.Results, res)
	}

	if committed > 0 && s.counts != nil {
		if err := s.counts.Invalidate(ctx, userID, dataType); err != nil {
			s.logger.Warn(ctx, "failed to invalidate counts cache", "error", err)
		}
	}

	s.logger.Info(ctx, "batch ingested",
		"user_id", userID, "data_type", dataType, "device_id", deviceID,
		"items", len(batch), "committed", committed)

	return resp, nil
}

func (s *Service) ingestOne(ctx context.Context, userID, dataType, deviceID string, batchTS *time.Time, ch api.ChangeSubmission) api.UploadItemResult {
	if err := validateSubmission(ch); err != nil {
		return api.UploadItemResult{RecordID: ch.RecordID, Status: api.ItemRejected, Reason: err.Error()}
	}

	clientTS := ch.ClientTimestamp
	if clientTS == nil {
		clientTS = batchTS
	}

	changesRepo := s.repos.Changes(s.db)

	for attempt := 0; attempt < guardRetries; attempt++ {
		latest, err := changesRepo.GetLatest(ctx, userID, dataType, ch.RecordID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "failed to read latest record state", "record_id", ch.RecordID, "error", err)
			return api.UploadItemResult{RecordID: ch.RecordID, Status: api.ItemRejected, Reason: common.ErrInternal.Error()}
		}

		server := conflict.ServerState{}
		var expected int64
		if latest != nil {
			server = conflict.ServerState{Exists: true, Version: latest.Version, UpdatedAt: latest.ChangedAt}
			expected = latest.Version
		}

		strategy := s.resolver.Resolve(server, conflict.ClientState{BaseVersion: ch.BaseVersion, Timestamp: clientTS})
		switch strategy {
		case conflict.StrategyManual, conflict.StrategyUseServer:
			return api.UploadItemResult{
				RecordID: ch.RecordID,
				Status:   api.ItemConflict,
				Conflict: conflictInfo(ch, latest, strategy, clientTS),
			}
		}

		rec, err := s.commitChange(ctx, userID, dataType, deviceID, clientTS, ch, expected)
		if errors.Is(err, common.ErrVersionConflict) {
			continue // lost the guard to a concurrent writer, re-resolve
		}
		if err != nil {
			s.logger.Error(ctx, "failed to commit change", "record_id", ch.RecordID, "error", err)
			return api.UploadItemResult{RecordID: ch.RecordID, Status: api.ItemRejected, Reason: common.ErrInternal.Error()}
		}

		return api.UploadItemResult{RecordID: ch.RecordID, Status: api.ItemCommitted, Version: rec.Version}
	}

	// Every attempt raced another device. Defer to the caller rather than
	// spin further.
	latest, err := changesRepo.GetLatest(ctx, userID, dataType, ch.RecordID)
	if err != nil {
		latest = nil
	}
	return api.UploadItemResult{
		RecordID: ch.RecordID,
		Status:   api.ItemConflict,
		Conflict: conflictInfo(ch, latest, conflict.StrategyManual, clientTS),
	}
}

// commitChange runs the per-item transaction: take the next partition
// version, append the guarded ledger row, and upsert the tombstone for
// deletes. The guard failing rolls the version increment back with it.
func (s *Service) commitChange(ctx context.Context, userID, dataType, deviceID string, clientTS *time.Time, ch api.ChangeSubmission, expected int64) (*models.ChangeRecord, error) {
	rec := &models.ChangeRecord{
		UserID:          userID,
		DataType:        dataType,
		RecordID:        ch.RecordID,
		ChangeType:      ch.ChangeType,
		Payload:         ch.Payload,
		Nonce:           ch.Nonce,
		Checksum:        ch.Checksum,
		DeviceID:        deviceID,
		ClientTimestamp: clientTS,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		version, err := s.repos.SyncMeta(tx).IncrementVersion(ctx, userID, dataType)
		if err != nil {
			return err
		}
		rec.Version = version

		if err := s.repos.Changes(tx).AppendGuarded(ctx, rec, expected); err != nil {
			return err
		}

		if rec.IsDelete() {
			return s.repos.Tombstones(tx).Upsert(ctx, &models.Tombstone{
				UserID:            userID,
				DataType:          dataType,
				RecordID:          ch.RecordID,
				DeletedAt:         rec.ChangedAt,
				DeletedByDeviceID: deviceID,
				ExpiresAt:         rec.ChangedAt.Add(common.TombstoneRetention),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func validateSubmission(ch api.ChangeSubmission) error {
	if ch.RecordID == "" {
		return fmt.Errorf("%w: record_id is required", common.ErrValidation)
	}

	switch ch.ChangeType {
	case models.ChangeDelete:
		if len(ch.Payload) > 0 || len(ch.Nonce) > 0 || ch.Checksum != "" {
			return fmt.Errorf("%w: delete must not carry a payload", common.ErrValidation)
		}
		return nil
	case models.ChangeInsert, models.ChangeUpdate:
		if len(ch.Payload) == 0 {
			return fmt.Errorf("%w: %s requires a payload", common.ErrValidation, ch.ChangeType)
		}
		if len(ch.Nonce) == 0 {
			return fmt.Errorf("%w: %s requires a nonce", common.ErrValidation, ch.ChangeType)
		}
		if !wellFormedChecksum(ch.Checksum) {
			return fmt.Errorf("%w: malformed checksum", common.ErrValidation)
		}
		if !cryptox.VerifyChecksum(ch.Payload, ch.Checksum) {
			return common.ErrChecksumMismatch
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown change type %q", common.ErrValidation, ch.ChangeType)
	}
}

// wellFormedChecksum requires a hex-encoded SHA-256 digest.
func wellFormedChecksum(sum string) bool {
	if len(sum) != 64 {
		return false
	}
	_, err := hex.DecodeString(sum)
	return err == nil
}

func conflictInfo(ch api.ChangeSubmission, latest *models.ChangeRecord, strategy conflict.Strategy, clientTS *time.Time) *api.ConflictInfo {
	info := &api.ConflictInfo{
		RecordID:        ch.RecordID,
		Strategy:        string(strategy),
		ClientVersion:   ch.BaseVersion,
		ClientTimestamp: clientTS,
	}
	if latest != nil {
		info.ServerVersion = latest.Version
		info.ServerUpdatedAt = latest.ChangedAt
		info.ServerPayload = latest.Payload
		info.ServerNonce = latest.Nonce
		info.ServerChecksum = latest.Checksum
	}
	return info
}
