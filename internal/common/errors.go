// Package common defines shared constants and sentinel errors used across
// client and server layers of the sync engine. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by the guarded ledger append when the
	// record was modified between the resolver read and the commit.
	ErrVersionConflict = errors.New("version conflict")

	// Validation errors: malformed batch, bad timestamp, out-of-range size.
	// Items rejected with ErrValidation are never queued for retry.
	ErrValidation = errors.New("validation error")

	// ErrChecksumMismatch marks a payload whose checksum does not match its
	// contents. The item is rejected, never silently accepted.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrConflict marks an item deferred to manual resolution. This is a
	// normal outcome requiring caller action, not a failure.
	ErrConflict = errors.New("conflict requires manual resolution")

	// ErrRetryable covers transient transport and server failures. Items
	// failing with it enter (or stay in) the offline queue.
	ErrRetryable = errors.New("retryable transport error")

	// ErrRetryExhausted is surfaced once a queue item has used up all its
	// attempts. The item is kept as failed, never auto-discarded.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrStaleWindow means the client's checkpoint predates the server
	// retention window and a full resync is required instead of a delta.
	ErrStaleWindow = errors.New("sync checkpoint older than retention window")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// Generic internal failure.
	ErrInternal = errors.New("internal error")
)
