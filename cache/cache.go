// Package cache provides optional token stores for the token provider: an
// in-process L1 backed by ristretto, a shared L2 backed by Redis, and a
// tiered combination of both.
//
// Stores hold already-issued tokens keyed by an opaque string (the provider
// derives it from the scope). An entry lives until its expiry; stores never
// decide freshness, the provider does.
package cache

import (
	"context"
	"time"
)

// Entry is a cached token.
type Entry struct {
	Value  string    `json:"value"`
	Type   string    `json:"type,omitempty"`
	Expiry time.Time `json:"expiry"`
}

// Store is the contract the token provider uses for shared or persistent
// caching. Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the entry for key. The boolean indicates a hit.
	Load(ctx context.Context, key string) (Entry, bool, error)

	// Save stores e under key until e.Expiry. Entries already expired are
	// ignored.
	Save(ctx context.Context, key string, e Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ttlUntil returns the time left until expiry, or zero when it has passed.
func ttlUntil(expiry time.Time) time.Duration {
	if expiry.IsZero() {
		return 0
	}
	d := time.Until(expiry)
	if d < 0 {
		return 0
	}
	return d
}
