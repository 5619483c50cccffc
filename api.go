package dictcache

import (
	"context"
	"iter"
	"time"

	c "github.com/unkn0wn-root/dictcache/codec"
	pr "github.com/unkn0wn-root/dictcache/provider"
)

type SetCostFunc func(key string, raw []byte) int64

// Fetcher produces the authoritative records for (key, page). The returned
// sequence may be cold and single-use (e.g. a live row cursor); the family
// drains it once. An empty sequence is a valid result, not an error.
type Fetcher[V any] func(ctx context.Context, key string, page int) iter.Seq2[V, error]

// OneFetcher produces a single authoritative record. ok=false means absent.
type OneFetcher[V any] func(ctx context.Context, key string, page int) (v V, ok bool, err error)

// Options configure one query family.
// Only Function and Provider are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Function string // first key segment, e.g. "sentences", "kanji", "users"
	Provider pr.Provider

	Codec          c.Codec[V]     // single records; nil => codec.JSON[V]
	List           c.ListCodec[V] // lists; nil => codec.Framed over Codec
	TTL            time.Duration  // 0 => DefaultTTL (7 days)
	Logger         Logger         // if nil, NopLogger is used
	Hooks          Hooks          // if nil, NopHooks is used
	ComputeSetCost SetCostFunc    // default 1
	Disabled       bool           // skip the cache entirely; every lookup fetches

	// FallbackOnUnavailable lets a provider failure fall through to a direct
	// backend fetch (and skips the write) instead of failing the lookup.
	FallbackOnUnavailable bool
	// Coalesce merges concurrent misses on the same storage key into a single
	// backend fetch. Off: every concurrent miss fetches and the last write wins.
	Coalesce bool
}

func NewFamily[V any](opts Options[V]) (*Family[V], error) {
	return newFamily[V](opts)
}
