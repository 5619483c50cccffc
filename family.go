package dictcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/dictcache/codec"
	pr "github.com/unkn0wn-root/dictcache/provider"
)

// Family is one logical query family over a shared provider. It is safe for
// concurrent use and holds no lock across provider or backend calls.
type Family[V any] struct {
	fn             string
	provider       pr.Provider
	codec          c.Codec[V]
	list           c.ListCodec[V]
	ttl            time.Duration
	log            Logger
	hooks          Hooks
	enabled        bool
	fallback       bool
	computeSetCost SetCostFunc
	group          *singleflight.Group // nil unless Coalesce
}

type oneResult[V any] struct {
	v  V
	ok bool
}

func newFamily[V any](opts Options[V]) (*Family[V], error) {
	if opts.Function == "" {
		return nil, fmt.Errorf("dictcache: function name is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("dictcache: provider is required")
	}

	f := &Family[V]{
		fn:       opts.Function,
		provider: opts.Provider,
		enabled:  !opts.Disabled,
		fallback: opts.FallbackOnUnavailable,
	}

	// defaults
	if opts.Codec != nil {
		f.codec = opts.Codec
	} else {
		f.codec = c.JSON[V]{}
	}
	if opts.List != nil {
		f.list = opts.List
	} else {
		f.list = c.Framed[V]{Item: f.codec}
	}
	f.ttl = coalesce[time.Duration](opts.TTL, DefaultTTL)
	f.log = coalesce[Logger](opts.Logger, NopLogger{})
	f.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.ComputeSetCost != nil {
		f.computeSetCost = opts.ComputeSetCost
	} else {
		f.computeSetCost = func(string, []byte) int64 { return 1 }
	}
	if opts.Coalesce {
		f.group = &singleflight.Group{}
	}
	return f, nil
}

func (f *Family[V]) Function() string   { return f.fn }
func (f *Family[V]) TTL() time.Duration { return f.ttl }

// Key returns the storage key for (key, page) in this family.
func (f *Family[V]) Key(key string, page int) string { return BuildKey(f.fn, key, page) }

// Lookup returns the records for (key, page), from the store when present,
// otherwise from fetch. On a miss fetch runs exactly once; its output is
// materialized, encoded, written with the family TTL, and the same
// materialized list is returned. An empty key returns an empty list without
// touching the store or the backend.
func (f *Family[V]) Lookup(ctx context.Context, key string, page int, fetch Fetcher[V]) (*Replay[V], error) {
	if key == "" {
		return Of[V](), nil
	}
	if !f.enabled {
		return f.fetch(ctx, key, page, fetch)
	}

	k := f.Key(key, page)
	raw, ok, err := f.provider.Get(ctx, k)
	if err != nil {
		serr := f.storeFailed(k, "get", err)
		if !f.fallback {
			return nil, serr
		}
		f.log.Warn("cache read failed; fetching from backend", Fields{"key": k, "err": err})
		return f.fetch(ctx, key, page, fetch)
	}
	if ok {
		items, err := f.list.DecodeMany(raw)
		if err != nil {
			f.hooks.DecodeError(k, err)
			return nil, newSerializationError(k, err)
		}
		f.hooks.CacheHit(f.fn, k)
		return &Replay[V]{items: items}, nil
	}

	f.hooks.CacheMiss(f.fn, k)
	if f.group == nil {
		return f.populate(ctx, k, key, page, fetch)
	}
	v, shared, err := f.share(ctx, k, func(ctx context.Context) (any, error) {
		return f.populate(ctx, k, key, page, fetch)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		f.log.Debug("miss coalesced", Fields{"key": k})
	}
	return v.(*Replay[V]), nil
}

// share runs fn once per storage key across concurrent callers. The flight
// is detached from any single caller's cancellation; each caller stops
// waiting when its own ctx is done and gets its own ctx.Err().
func (f *Family[V]) share(ctx context.Context, k string, fn func(context.Context) (any, error)) (any, bool, error) {
	flight := context.WithoutCancel(ctx)
	ch := f.group.DoChan(k, func() (any, error) { return fn(flight) })
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (f *Family[V]) populate(ctx context.Context, k, key string, page int, fetch Fetcher[V]) (*Replay[V], error) {
	r, err := f.fetch(ctx, key, page, fetch)
	if err != nil {
		return nil, err
	}
	raw, err := f.list.EncodeMany(r.items)
	if errors.Is(err, c.ErrDelimiterInPayload) {
		// the legacy list cannot hold this result; serve it uncached
		f.log.Warn("result not cacheable with delimited lists", Fields{"key": k, "err": err})
		return r, nil
	}
	if err != nil {
		return nil, newSerializationError(k, err)
	}
	if err := f.put(ctx, k, raw); err != nil {
		if !f.fallback {
			return nil, err
		}
		f.log.Warn("cache write failed; returning uncached result", Fields{"key": k, "err": err})
	}
	return r, nil
}

func (f *Family[V]) fetch(ctx context.Context, key string, page int, fetch Fetcher[V]) (*Replay[V], error) {
	if fetch == nil {
		return Of[V](), nil
	}
	start := time.Now()
	r, err := Collect(fetch(ctx, key, page))
	if err != nil {
		return nil, &BackendError{Function: f.fn, Err: err}
	}
	took := time.Since(start)
	f.hooks.Fetched(f.fn, r.Len(), took)
	f.log.Debug("fetched from backend", Fields{"function": f.fn, "key": key, "page": page, "records": r.Len(), "took": took})
	return r, nil
}

// LookupOne is the single-record variant of Lookup. Absence is not an error
// at any stage and absent results are not cached. A nil fetch makes it a
// cache-only read.
func (f *Family[V]) LookupOne(ctx context.Context, key string, page int, fetch OneFetcher[V]) (V, bool, error) {
	var zero V
	if key == "" {
		return zero, false, nil
	}
	if !f.enabled {
		return f.fetchOne(ctx, key, page, fetch)
	}

	k := f.Key(key, page)
	raw, ok, err := f.provider.Get(ctx, k)
	if err != nil {
		serr := f.storeFailed(k, "get", err)
		if !f.fallback {
			return zero, false, serr
		}
		f.log.Warn("cache read failed; fetching from backend", Fields{"key": k, "err": err})
		return f.fetchOne(ctx, key, page, fetch)
	}
	if ok {
		v, err := f.codec.Decode(raw)
		if err != nil {
			f.hooks.DecodeError(k, err)
			return zero, false, newSerializationError(k, err)
		}
		f.hooks.CacheHit(f.fn, k)
		return v, true, nil
	}

	f.hooks.CacheMiss(f.fn, k)
	if fetch == nil {
		return zero, false, nil
	}
	if f.group == nil {
		return f.populateOne(ctx, k, key, page, fetch)
	}
	res, _, err := f.share(ctx, k, func(ctx context.Context) (any, error) {
		v, ok, err := f.populateOne(ctx, k, key, page, fetch)
		return oneResult[V]{v: v, ok: ok}, err
	})
	if err != nil {
		return zero, false, err
	}
	one := res.(oneResult[V])
	return one.v, one.ok, nil
}

func (f *Family[V]) populateOne(ctx context.Context, k, key string, page int, fetch OneFetcher[V]) (V, bool, error) {
	var zero V
	v, ok, err := f.fetchOne(ctx, key, page, fetch)
	if err != nil || !ok {
		return zero, false, err
	}
	raw, err := f.codec.Encode(v)
	if err != nil {
		return zero, false, newSerializationError(k, err)
	}
	if err := f.put(ctx, k, raw); err != nil {
		if !f.fallback {
			return zero, false, err
		}
		f.log.Warn("cache write failed; returning uncached result", Fields{"key": k, "err": err})
	}
	return v, true, nil
}

func (f *Family[V]) fetchOne(ctx context.Context, key string, page int, fetch OneFetcher[V]) (V, bool, error) {
	var zero V
	if fetch == nil {
		return zero, false, nil
	}
	start := time.Now()
	v, ok, err := fetch(ctx, key, page)
	if err != nil {
		return zero, false, &BackendError{Function: f.fn, Err: err}
	}
	n := 0
	if ok {
		n = 1
	}
	f.hooks.Fetched(f.fn, n, time.Since(start))
	return v, ok, nil
}

// Store writes v under (key, page) with the family TTL, replacing any entry.
func (f *Family[V]) Store(ctx context.Context, key string, page int, v V) error {
	it, err := f.Entry(key, page, v)
	if err != nil {
		return err
	}
	return f.put(ctx, it.Key, it.Value)
}

// Entry encodes v for (key, page) without writing it, for multi-key writes.
func (f *Family[V]) Entry(key string, page int, v V) (pr.Item, error) {
	k := f.Key(key, page)
	raw, err := f.codec.Encode(v)
	if err != nil {
		return pr.Item{}, newSerializationError(k, err)
	}
	return pr.Item{Key: k, Value: raw}, nil
}

// Forget deletes the entry for (key, page).
func (f *Family[V]) Forget(ctx context.Context, key string, page int) error {
	k := f.Key(key, page)
	if err := f.provider.Del(ctx, k); err != nil {
		return f.storeFailed(k, "del", err)
	}
	return nil
}

func (f *Family[V]) put(ctx context.Context, k string, raw []byte) error {
	ok, err := f.provider.Set(ctx, k, raw, f.computeSetCost(k, raw), f.ttl)
	if err != nil {
		return f.storeFailed(k, "set", err)
	}
	if !ok {
		f.hooks.ProviderSetRejected(k)
		f.log.Debug("set rejected by provider (pressure)", Fields{"key": k})
	}
	return nil
}

func (f *Family[V]) storeFailed(k, op string, err error) error {
	f.hooks.StoreError(k, op, err)
	f.log.Error("cache "+op+" failed", Fields{"key": k, "err": err})
	return &StoreError{Op: op, Key: k, Err: err}
}
