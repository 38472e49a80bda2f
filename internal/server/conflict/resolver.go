// Package conflict classifies divergence between a record's latest committed
// server state and an incoming client change. Classification only: the
// engine never merges field-level data, because payloads are opaque
// encrypted blobs on the server side.
package conflict

import "time"

// Strategy is the resolution outcome for one record.
type Strategy string

const (
	// StrategyCommit means no intervening server change; apply directly.
	StrategyCommit Strategy = "commit"

	// StrategyUseServer means the client change is stale; reject it and hand
	// back the server's current value so the client can re-apply on top.
	StrategyUseServer Strategy = "use_server"

	// StrategyUseLocal is last-write-wins in the client's favor; commit.
	StrategyUseLocal Strategy = "use_local"

	// StrategyManual means both sides changed too close together to order
	// reliably; surface both payloads to the caller instead of guessing.
	StrategyManual Strategy = "manual"

	// StrategyMerge is reserved for future client-side, plaintext-aware
	// merging. The resolver never returns it.
	StrategyMerge Strategy = "merge"
)

// ServerState is the latest committed ledger state of a record.
type ServerState struct {
	Exists    bool
	Version   int64
	UpdatedAt time.Time
}

// ClientState is the incoming change's claim about its origin.
type ClientState struct {
	// BaseVersion is the record version the client last synced.
	BaseVersion int64
	// Timestamp is the client-claimed mutation time; never trusted for
	// ordering, only for last-write-wins heuristics. May be nil.
	Timestamp *time.Time
}

// DefaultTolerance is the window within which two wall-clock timestamps are
// considered unordered across devices.
const DefaultTolerance = 5 * time.Second

// Resolver applies last-write-wins with surfaced ambiguity.
type Resolver struct {
	tolerance time.Duration
}

// NewResolver builds a Resolver with the given timestamp tolerance window.
// A non-positive tolerance falls back to DefaultTolerance.
func NewResolver(tolerance time.Duration) *Resolver {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Resolver{tolerance: tolerance}
}

// Resolve is a pure function of its inputs: identical states always yield
// the same strategy.
func (r *Resolver) Resolve(server ServerState, client ClientState) Strategy {
	// First write for this record, nothing to conflict with.
	if !server.Exists {
		return StrategyCommit
	}

	// No intervening server change since the client last synced.
	if client.BaseVersion == server.Version {
		return StrategyCommit
	}

	// The server moved on. Without a client timestamp there is nothing to
	// order by, so the committed server state stands.
	if client.Timestamp == nil {
		return StrategyUseServer
	}

	delta := client.Timestamp.Sub(server.UpdatedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta <= r.tolerance {
		return StrategyManual
	}

	if client.Timestamp.After(server.UpdatedAt) {
		return StrategyUseLocal
	}
	return StrategyUseServer
}
