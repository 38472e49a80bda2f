// Package models holds the server-side persistence structs of the sync
// engine.
package models

import "time"

// Change types recorded in the ledger.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// ChangeRecord is one row of the append-only change ledger. The logical key
// is (UserID, DataType, RecordID); every mutation appends a new row, history
// is never overwritten.
//
// Payload, Nonce and Checksum are nil/empty exactly when ChangeType is
// "delete". ChangedAt is assigned by the ledger itself and is the only
// timestamp authoritative for ordering; ClientTimestamp is a client claim
// used solely for conflict heuristics.
type ChangeRecord struct {
	ID              int64
	UserID          string
	DataType        string
	RecordID        string
	ChangeType      string
	Payload         []byte
	Nonce           []byte
	Checksum        string
	Version         int64
	DeviceID        string
	ChangedAt       time.Time
	ClientTimestamp *time.Time
}

// IsDelete reports whether the record marks a deletion.
func (c *ChangeRecord) IsDelete() bool {
	return c.ChangeType == ChangeDelete
}
