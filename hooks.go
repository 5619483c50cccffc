package dictcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A lookup was answered from the store.
	CacheHit(function, storageKey string)
	// A lookup found nothing in the store.
	CacheMiss(function, storageKey string)

	// The backend produced records (count, wall time) for a miss.
	Fetched(function string, records int, took time.Duration)

	// Provider failed. op ∈ {"get", "set", "del"}.
	StoreError(storageKey, op string, err error)

	// A cached payload failed to decode (poisoned entry).
	DecodeError(storageKey string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A session token was handed out; reused=true when a live one was returned.
	TokenIssued(userID int64, reused bool)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string, string)            {}
func (NopHooks) CacheMiss(string, string)           {}
func (NopHooks) Fetched(string, int, time.Duration) {}
func (NopHooks) StoreError(string, string, error)   {}
func (NopHooks) DecodeError(string, error)          {}
func (NopHooks) ProviderSetRejected(string)         {}
func (NopHooks) TokenIssued(int64, bool)            {}
