package common

import "time"

// AccessTokenHeaderName is the HTTP header used to carry the access token on
// outbound requests.
const AccessTokenHeaderName = "Authorization"

const (
	// MaxBatchSize bounds the number of changes accepted in a single upload
	// and the page size of delta queries.
	MaxBatchSize = 1000

	// LedgerRetention is how long committed change rows are kept before the
	// sweep removes them. Clients further behind must fall back to a full
	// resync.
	LedgerRetention = 30 * 24 * time.Hour

	// TombstoneRetention is how long deletion markers outlive the delete.
	TombstoneRetention = 90 * 24 * time.Hour
)
