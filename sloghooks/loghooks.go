package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery  uint64
	MissEvery uint64
	// Fetches slower than this are logged at Warn; 0 disables.
	SlowFetch time.Duration
	// Optional key redactor. Defaults to function + SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
}

var _ dictcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.RedactKey(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheHit(fn, storageKey string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("dictcache.hit",
		"function", fn,
		"key", h.redact(storageKey))
}

func (h *Hooks) CacheMiss(fn, storageKey string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("dictcache.miss",
		"function", fn,
		"key", h.redact(storageKey))
}

func (h *Hooks) Fetched(fn string, records int, took time.Duration) {
	if h.l == nil || h.opts.SlowFetch <= 0 || took < h.opts.SlowFetch {
		return
	}
	h.l.Warn("dictcache.slow_fetch",
		"function", fn,
		"records", records,
		"took", took)
}

func (h *Hooks) StoreError(storageKey, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("dictcache.store_error",
		"key", h.redact(storageKey),
		"op", op,
		"err", err)
}

func (h *Hooks) DecodeError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("dictcache.decode_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("dictcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) TokenIssued(userID int64, reused bool) {
	if h.l == nil {
		return
	}
	h.l.Info("dictcache.token_issued",
		"user", userID,
		"reused", reused)
}
