package dictcache

import (
	"iter"
	"slices"
)

// Replay is a fully materialized, immutable result list. Any number of
// readers can range over it; none of them re-runs the fetch that produced it.
// A nil *Replay behaves as an empty list.
type Replay[V any] struct {
	items []V
}

// Collect drains a cold sequence exactly once. The first error stops the
// drain and is returned; partial results are discarded.
func Collect[V any](seq iter.Seq2[V, error]) (*Replay[V], error) {
	r := &Replay[V]{}
	if seq == nil {
		return r, nil
	}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		r.items = append(r.items, v)
	}
	return r, nil
}

// Of wraps items without copying.
func Of[V any](items ...V) *Replay[V] { return &Replay[V]{items: items} }

// All yields the records in order.
func (r *Replay[V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		if r == nil {
			return
		}
		for _, v := range r.items {
			if !yield(v) {
				return
			}
		}
	}
}

// Items returns a copy of the records.
func (r *Replay[V]) Items() []V {
	if r == nil {
		return nil
	}
	return slices.Clone(r.items)
}

func (r *Replay[V]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}

// First returns the first record, if any.
func (r *Replay[V]) First() (V, bool) {
	var zero V
	if r.Len() == 0 {
		return zero, false
	}
	return r.items[0], true
}

// Filter returns a new Replay holding the records keep accepts.
func (r *Replay[V]) Filter(keep func(V) bool) *Replay[V] {
	out := &Replay[V]{}
	for v := range r.All() {
		if keep(v) {
			out.items = append(out.items, v)
		}
	}
	return out
}
