// Package otelhooks records dictcache events as OpenTelemetry metrics.
//
//	h, err := otelhooks.New(otel.GetMeterProvider().Meter("dictcache"))
//	fam, _ := dictcache.NewFamily[model.Kanji](dictcache.Options[model.Kanji]{
//	    Function: "kanji",
//	    Provider: p,
//	    Hooks:    h,
//	})
//
// Storage keys are never used as attributes (unbounded cardinality); events
// are labelled by function name and store operation only.
package otelhooks

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/dictcache"
)

const scope = "github.com/unkn0wn-root/dictcache"

type Hooks struct {
	lookups     metric.Int64Counter
	fetched     metric.Int64Counter
	fetchTime   metric.Float64Histogram
	storeErrors metric.Int64Counter
	decodeErrs  metric.Int64Counter
	rejected    metric.Int64Counter
	tokens      metric.Int64Counter
}

var _ dictcache.Hooks = (*Hooks)(nil)

// NewGlobal uses the globally registered MeterProvider.
func NewGlobal() (*Hooks, error) { return New(otel.Meter(scope)) }

func New(m metric.Meter) (*Hooks, error) {
	var (
		h   Hooks
		err error
	)
	if h.lookups, err = m.Int64Counter("dictcache.lookups",
		metric.WithDescription("Cache lookups by result (hit|miss)")); err != nil {
		return nil, err
	}
	if h.fetched, err = m.Int64Counter("dictcache.backend.records",
		metric.WithDescription("Records fetched from the backend on a miss")); err != nil {
		return nil, err
	}
	if h.fetchTime, err = m.Float64Histogram("dictcache.backend.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Backend fetch wall time")); err != nil {
		return nil, err
	}
	if h.storeErrors, err = m.Int64Counter("dictcache.store.errors"); err != nil {
		return nil, err
	}
	if h.decodeErrs, err = m.Int64Counter("dictcache.decode.errors"); err != nil {
		return nil, err
	}
	if h.rejected, err = m.Int64Counter("dictcache.store.rejected"); err != nil {
		return nil, err
	}
	if h.tokens, err = m.Int64Counter("dictcache.tokens.issued"); err != nil {
		return nil, err
	}
	return &h, nil
}

func fnAttr(fn string) attribute.KeyValue { return attribute.String("function", fn) }

// function segment of a storage key
func keyFunction(storageKey string) string {
	fn, _, _ := strings.Cut(storageKey, "_")
	return fn
}

func (h *Hooks) CacheHit(fn, _ string) {
	h.lookups.Add(context.Background(), 1,
		metric.WithAttributes(fnAttr(fn), attribute.String("result", "hit")))
}

func (h *Hooks) CacheMiss(fn, _ string) {
	h.lookups.Add(context.Background(), 1,
		metric.WithAttributes(fnAttr(fn), attribute.String("result", "miss")))
}

func (h *Hooks) Fetched(fn string, records int, took time.Duration) {
	ctx := context.Background()
	h.fetched.Add(ctx, int64(records), metric.WithAttributes(fnAttr(fn)))
	h.fetchTime.Record(ctx, took.Seconds(), metric.WithAttributes(fnAttr(fn)))
}

func (h *Hooks) StoreError(storageKey, op string, _ error) {
	h.storeErrors.Add(context.Background(), 1,
		metric.WithAttributes(fnAttr(keyFunction(storageKey)), attribute.String("op", op)))
}

func (h *Hooks) DecodeError(storageKey string, _ error) {
	h.decodeErrs.Add(context.Background(), 1,
		metric.WithAttributes(fnAttr(keyFunction(storageKey))))
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	h.rejected.Add(context.Background(), 1,
		metric.WithAttributes(fnAttr(keyFunction(storageKey))))
}

func (h *Hooks) TokenIssued(_ int64, reused bool) {
	h.tokens.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("reused", reused)))
}
