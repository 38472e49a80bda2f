package models

import "time"

// Queue item statuses. An item moves pending → processing → completed, back
// to pending on a transient failure, or to failed once its attempts are
// exhausted. Failed items stay in the queue until retried or dismissed.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// Queued operations.
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpDelete   = "delete"
)

// QueueItem is one deferred sync operation persisted while the client is
// offline or the server is unreachable.
type QueueItem struct {
	ID        int64
	DataType  string
	RecordID  string
	Operation string

	// Snapshot of the change at enqueue time, so a later local edit does
	// not alter what this item will upload.
	Payload     []byte
	Nonce       []byte
	Checksum    string
	BaseVersion int64

	Status       string
	AttemptCount int
	// NextAttemptAt implements exponential backoff: the worker skips the
	// item until this instant has passed.
	NextAttemptAt time.Time
	LastError     string

	ClientTimestamp time.Time
	CreatedAt       time.Time
}
