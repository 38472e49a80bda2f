// Package models defines client-side data models for the local replica and
// the offline sync queue.
package models

import "time"

// Record is one encrypted item in the local replica. Payload and Nonce hold
// AEAD ciphertext; the plaintext never reaches the sync layer.
type Record struct {
	// ID is a globally unique identifier for the record.
	ID string

	// DataType partitions the replica (accounts, contacts, preferences,
	// signatures).
	DataType string

	// Payload contains the encrypted record bytes.
	Payload []byte
	// Nonce is the AEAD nonce for Payload.
	Nonce []byte
	// Checksum is the hex SHA-256 of Payload, verified end to end.
	Checksum string

	// Version is the server-assigned version from the last sync; 0 for
	// records never uploaded.
	Version int64

	// Deleted marks the record as locally deleted (kept until the deletion
	// is acknowledged by the server).
	Deleted bool

	// UpdatedAt is the last local modification time in UTC.
	UpdatedAt time.Time
}
