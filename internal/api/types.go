// Package api defines the JSON wire types exchanged between the sync client
// and the sync server. Payloads are opaque encrypted blobs; neither side of
// the wire ever needs to interpret them.
package api

import "time"

// ChangeSubmission is one client-side mutation inside an upload batch.
// Payload, Nonce and Checksum must be absent iff ChangeType is "delete".
type ChangeSubmission struct {
	RecordID        string     `json:"record_id"`
	ChangeType      string     `json:"change_type"` // insert | update | delete
	Payload         []byte     `json:"payload,omitempty"`
	Nonce           []byte     `json:"nonce,omitempty"`
	Checksum        string     `json:"checksum,omitempty"`
	BaseVersion     int64      `json:"base_version"` // record version the client last synced
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
}

// UploadRequest carries a batch of 1-1000 changes for one data type.
type UploadRequest struct {
	DeviceID        string             `json:"device_id"`
	ClientTimestamp *time.Time         `json:"client_timestamp,omitempty"`
	Changes         []ChangeSubmission `json:"changes"`
}

// Change types carried in submissions and download pages.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// Item statuses in an upload response.
const (
	ItemCommitted = "committed"
	ItemConflict  = "conflict"
	ItemRejected  = "rejected"
)

// UploadItemResult reports the per-item outcome of an upload. Exactly one of
// Conflict / Reason is set for non-committed items.
type UploadItemResult struct {
	RecordID string        `json:"record_id"`
	Status   string        `json:"status"`
	Version  int64         `json:"version,omitempty"` // assigned server version when committed
	Conflict *ConflictInfo `json:"conflict,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// UploadResponse is the per-item result list plus the highest version
// assigned while committing the batch.
type UploadResponse struct {
	Results    []UploadItemResult `json:"results"`
	MaxVersion int64              `json:"max_version"`
}

// ConflictInfo surfaces both sides of a divergence the server refused to
// resolve automatically. Payloads stay encrypted.
type ConflictInfo struct {
	RecordID        string     `json:"record_id"`
	Strategy        string     `json:"strategy"`
	ServerVersion   int64      `json:"server_version"`
	ServerUpdatedAt time.Time  `json:"server_updated_at"`
	ServerPayload   []byte     `json:"server_payload,omitempty"`
	ServerNonce     []byte     `json:"server_nonce,omitempty"`
	ServerChecksum  string     `json:"server_checksum,omitempty"`
	ClientVersion   int64      `json:"client_version"`
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
}

// Change is one committed ledger entry in a download response.
type Change struct {
	RecordID        string     `json:"record_id"`
	ChangeType      string     `json:"change_type"`
	Payload         []byte     `json:"payload,omitempty"`
	Nonce           []byte     `json:"nonce,omitempty"`
	Checksum        string     `json:"checksum,omitempty"`
	Version         int64      `json:"version"`
	DeviceID        string     `json:"device_id"`
	ChangedAt       time.Time  `json:"changed_at"`
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
}

// Deletion is one tombstone in a download response.
type Deletion struct {
	RecordID          string    `json:"record_id"`
	DeletedAt         time.Time `json:"deleted_at"`
	DeletedByDeviceID string    `json:"deleted_by_device_id"`
}

// DownloadResponse is a page of changes and deletions since a checkpoint.
type DownloadResponse struct {
	Changes          []Change   `json:"changes"`
	Deletions        []Deletion `json:"deletions"`
	HasMore          bool       `json:"has_more"`
	NextOffset       int        `json:"next_offset"`
	TotalChangeCount int64      `json:"total_change_count"`
	TotalDeleteCount int64      `json:"total_delete_count"`
}

// DeletedResponse is a page of the tombstone sequence only.
type DeletedResponse struct {
	Deletions        []Deletion `json:"deletions"`
	HasMore          bool       `json:"has_more"`
	NextOffset       int        `json:"next_offset"`
	TotalDeleteCount int64      `json:"total_delete_count"`
}

// StatusResponse reports sync bookkeeping for one data type.
type StatusResponse struct {
	DataType       string    `json:"data_type"`
	LastSyncAt     time.Time `json:"last_sync_at"`
	Version        int64     `json:"version"`
	PendingChanges int64     `json:"pending_changes"`
	PendingDeletes int64     `json:"pending_deletes"`
	Status         string    `json:"status"`
}

// AckRequest advances the server-side sync checkpoint after the client has
// durably applied a downloaded window.
type AckRequest struct {
	Version      int64     `json:"version"`
	SyncedAt     time.Time `json:"synced_at"`
	ItemsApplied int64     `json:"items_applied"`
	ItemsDeleted int64     `json:"items_deleted"`
}

// PresignResponse carries a presigned URL for attachment blob transfer.
type PresignResponse struct {
	Key string `json:"key,omitempty"`
	URL string `json:"url"`
}

// ErrorResponse is the uniform error body for non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
