// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery: 100, // sample: ~every 100th hit
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	fam, _ := dictcache.NewFamily[model.Sentence](dictcache.Options[model.Sentence]{
//	    Function: "sentences",
//	    Provider: provider,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/dictcache"
)

type Hooks struct {
	inner   dictcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ dictcache.Hooks = (*Hooks)(nil)

func New(inner dictcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a queue closed between the check and the send
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(fn, k string)  { h.try(func() { h.inner.CacheHit(fn, k) }) }
func (h *Hooks) CacheMiss(fn, k string) { h.try(func() { h.inner.CacheMiss(fn, k) }) }
func (h *Hooks) Fetched(fn string, n int, took time.Duration) {
	h.try(func() { h.inner.Fetched(fn, n, took) })
}
func (h *Hooks) StoreError(k, op string, err error) {
	h.try(func() { h.inner.StoreError(k, op, err) })
}
func (h *Hooks) DecodeError(k string, err error) { h.try(func() { h.inner.DecodeError(k, err) }) }
func (h *Hooks) ProviderSetRejected(k string)    { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) TokenIssued(id int64, reused bool) {
	h.try(func() { h.inner.TokenIssued(id, reused) })
}
