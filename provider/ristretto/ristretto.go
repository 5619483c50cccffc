// Package ristretto keeps cache entries in-process with dgraph-io/ristretto.
// It suits a single API replica or local development without Redis.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/dictcache/provider"
)

// ErrRejected is returned by SetMany when the cache refused one of the
// items; none of the batch is left behind.
var ErrRejected = errors.New("ristretto: write rejected")

type Provider struct {
	c *rc.Cache
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Batcher  = (*Provider)(nil)
)

// Config sizes the cache. Cost is payload bytes when the caller passes
// len(raw) as cost, which is what the service does.
type Config struct {
	MaxCost     int64 // required
	NumCounters int64 // 0 => ten counters per expected 1 KiB entry
	BufferItems int64 // 0 => 64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto: MaxCost must be positive")
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = max(cfg.MaxCost/1024*10, 1000)
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if len(b) == 0 {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the write buffer so a Get right after Set observes the
// value. Token issuance reads its own writes.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	ok := p.c.SetWithTTL(key, value, cost, max(ttl, 0))
	p.c.Wait()
	return ok, nil
}

// SetMany stores every item or none. Ristretto admits writes
// asynchronously and has no transactions, so the batch is checked after the
// buffer drains and rolled back when any item did not make it in.
func (p *Provider) SetMany(_ context.Context, items []pr.Item, ttl time.Duration) error {
	ttl = max(ttl, 0)
	for _, it := range items {
		p.c.SetWithTTL(it.Key, it.Value, int64(len(it.Value)), ttl)
	}
	p.c.Wait()
	for _, it := range items {
		if _, ok := p.c.Get(it.Key); !ok {
			for _, done := range items {
				p.c.Del(done.Key)
			}
			p.c.Wait()
			return fmt.Errorf("%w: %s", ErrRejected, it.Key)
		}
	}
	return nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Stats is a snapshot of the cache counters. All zero unless the provider
// was built with Config.Metrics.
type Stats struct {
	Hits, Misses   uint64
	Added, Evicted uint64
	Rejected       uint64
	CostAdded      uint64
	HitRatio       float64
}

func (p *Provider) Stats() Stats {
	m := p.c.Metrics
	if m == nil {
		return Stats{}
	}
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		Added:     m.KeysAdded(),
		Evicted:   m.KeysEvicted(),
		Rejected:  m.SetsRejected(),
		CostAdded: m.CostAdded(),
		HitRatio:  m.Ratio(),
	}
}
