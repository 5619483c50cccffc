// Package provider defines the storage abstraction used by dictcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// A present key holding an empty value is reported as a miss. Query families
// never store an empty value for a result they want to keep; an empty legacy
// list entry therefore reads as absent and is refetched.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss or
	// empty value. If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value and applies ttl. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Item is one key/value pair of a multi-key write.
type Item struct {
	Key   string
	Value []byte
}

// Batcher is implemented by providers that can write several keys
// atomically with one TTL (all or nothing).
type Batcher interface {
	SetMany(ctx context.Context, items []Item, ttl time.Duration) error
}
