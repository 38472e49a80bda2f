package models

import "time"

// SyncState is the per-data-type checkpoint of the local replica: where the
// last fully applied delta window ended. It only advances after a window is
// durably applied, so a crash mid-apply re-downloads the same window.
type SyncState struct {
	DataType      string
	LastSyncAt    time.Time
	ServerVersion int64
	UpdatedAt     time.Time
}
