// Package dictcache is the cache-aside layer between the jibiki query API and
// its PostgreSQL backend.
//
// Components:
//   - Provider: byte store with TTL (Redis in production; Ristretto, BigCache).
//   - Codec[V] / ListCodec[V]: (de)serializes records and record lists.
//   - Family[V]: one logical query family ("sentences", "kanji", ...) that
//     reads the cache, fetches on miss, and populates the cache.
//
// Keys:
//
//	<function>_<normalized key>_<page>   e.g. sentences_猫_0
//
// Miss path:
//
//	r, err := fam.Lookup(ctx, "猫", 0, fetchSentences)
//	// fetchSentences runs at most once; r is the exact list that was cached
//	for s := range r.All() { ... }
package dictcache
