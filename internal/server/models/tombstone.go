package models

import "time"

// Tombstone is a deletion marker kept independently of ledger history so
// deletions keep propagating after the live record is gone. Unique per
// (UserID, DataType, RecordID); it vanishes once ExpiresAt passes, after
// which absent clients must fall back to a full resync.
type Tombstone struct {
	UserID            string
	DataType          string
	RecordID          string
	DeletedAt         time.Time
	DeletedByDeviceID string
	ExpiresAt         time.Time
}
