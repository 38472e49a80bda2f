package models

import "time"

// Sync statuses tracked per (user, data type).
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// SyncMetadata is per-(user, data type) bookkeeping. Version doubles as the
// partition version counter: every committed ledger row takes the next
// value. LastSyncAt only advances after a client acknowledges a durably
// applied window, so a crashed apply re-delivers the same window.
type SyncMetadata struct {
	UserID       string
	DataType     string
	LastSyncAt   time.Time
	Version      int64
	ItemsSynced  int64
	ItemsChanged int64
	ItemsDeleted int64
	Status       string
	UpdatedAt    time.Time
}
