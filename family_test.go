package dictcache

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/dictcache/codec"
	pr "github.com/unkn0wn-root/dictcache/provider"
)

type memEntry struct {
	v   []byte
	ttl time.Duration
}

type memProvider struct {
	mu     sync.Mutex
	m      map[string]memEntry
	gets   atomic.Int64
	sets   atomic.Int64
	getErr error
	setErr error
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.gets.Add(1)
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok || len(e.v) == 0 {
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.sets.Add(1)
	if p.setErr != nil {
		return false, p.setErr
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: append([]byte(nil), value...), ttl: ttl}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

// expire simulates the store dropping a key at the end of its TTL.
func (p *memProvider) expire(key string) { _ = p.Del(context.Background(), key) }

func (p *memProvider) raw(key string) (memEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	return e, ok
}

type sentence struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// countingSource is a cold backend: every range over the returned sequence
// counts as one backend execution.
type countingSource struct {
	calls atomic.Int64
	rows  []sentence
	err   error
}

func (s *countingSource) fetch(_ context.Context, _ string, _ int) iter.Seq2[sentence, error] {
	return func(yield func(sentence, error) bool) {
		s.calls.Add(1)
		if s.err != nil {
			yield(sentence{}, s.err)
			return
		}
		for _, r := range s.rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func newTestFamily(t *testing.T, fn string, mp pr.Provider, optsOpt func(*Options[sentence])) *Family[sentence] {
	t.Helper()
	opts := Options[sentence]{
		Function: fn,
		Provider: mp,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	f, err := NewFamily[sentence](opts)
	if err != nil {
		t.Fatalf("NewFamily: %v", err)
	}
	return f
}

func legacyList(o *Options[sentence]) {
	o.List = c.Delimited[sentence]{Item: c.JSON[sentence]{}}
}

func TestNewFamilyValidation(t *testing.T) {
	if _, err := NewFamily[sentence](Options[sentence]{Provider: newMemProvider()}); err == nil {
		t.Fatalf("expected error without function name")
	}
	if _, err := NewFamily[sentence](Options[sentence]{Function: "sentences"}); err == nil {
		t.Fatalf("expected error without provider")
	}
}

// TestLookupMissThenHit walks the cache-aside flow for a single sentence
// query, using the legacy list encoding so the stored bytes are plain JSON.
func TestLookupMissThenHit(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{rows: []sentence{{ID: 1, Text: "猫が好きです"}}}
	fam := newTestFamily(t, "sentences", mp, legacyList)

	r, err := fam.Lookup(ctx, "猫", 0, src.fetch)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := r.Items(); !reflect.DeepEqual(got, src.rows) {
		t.Fatalf("first lookup = %+v", got)
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("backend calls after miss = %d, want 1", n)
	}

	e, ok := mp.raw("sentences_猫_0")
	if !ok {
		t.Fatalf("entry not written under sentences_猫_0")
	}
	if want := `{"id":1,"text":"猫が好きです"}`; string(e.v) != want {
		t.Fatalf("cached payload = %q, want %q", e.v, want)
	}
	if e.ttl != DefaultTTL {
		t.Fatalf("ttl = %v, want %v", e.ttl, DefaultTTL)
	}

	r2, err := fam.Lookup(ctx, "猫", 0, src.fetch)
	if err != nil {
		t.Fatalf("Lookup (hit): %v", err)
	}
	if !reflect.DeepEqual(r2.Items(), src.rows) {
		t.Fatalf("second lookup = %+v", r2.Items())
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("backend calls after hit = %d, want 1", n)
	}
}

// TestMissFetchesOnceForAllConsumers: the caller can range the result any
// number of times and the cached bytes match what the caller sees.
func TestMissFetchesOnceForAllConsumers(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{rows: []sentence{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}, {ID: 3, Text: "c"}}}
	fam := newTestFamily(t, "sentences", mp, nil)

	r, err := fam.Lookup(ctx, "abc", 2, src.fetch)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	for i := 0; i < 3; i++ {
		n := 0
		for range r.All() {
			n++
		}
		if n != 3 {
			t.Fatalf("pass %d saw %d records", i, n)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("backend executed %d times, want 1", n)
	}

	e, ok := mp.raw("sentences_abc_2")
	if !ok {
		t.Fatalf("entry missing")
	}
	want, _ := c.Framed[sentence]{Item: c.JSON[sentence]{}}.EncodeMany(r.Items())
	if string(e.v) != string(want) {
		t.Fatalf("cached bytes differ from returned records")
	}
}

func TestEmptyKeyShortCircuits(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, nil)

	r, err := fam.Lookup(ctx, "", 0, src.fetch)
	if err != nil || r.Len() != 0 {
		t.Fatalf("Lookup(\"\") = %d records, err=%v", r.Len(), err)
	}
	if _, ok, err := fam.LookupOne(ctx, "", 0, func(context.Context, string, int) (sentence, bool, error) {
		src.calls.Add(1)
		return sentence{}, true, nil
	}); ok || err != nil {
		t.Fatalf("LookupOne(\"\") ok=%v err=%v", ok, err)
	}
	if g, s, f := mp.gets.Load(), mp.sets.Load(), src.calls.Load(); g != 0 || s != 0 || f != 0 {
		t.Fatalf("empty key touched store/backend: gets=%d sets=%d fetches=%d", g, s, f)
	}
}

func TestKeysIsolateFamilies(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	a := &countingSource{rows: []sentence{{ID: 1, Text: "sentence"}}}
	b := &countingSource{rows: []sentence{{ID: 2, Text: "word"}}}
	sentences := newTestFamily(t, "sentences", mp, nil)
	words := newTestFamily(t, "words", mp, nil)

	if _, err := sentences.Lookup(ctx, "cat", 0, a.fetch); err != nil {
		t.Fatal(err)
	}
	r, err := words.Lookup(ctx, "cat", 0, b.fetch)
	if err != nil {
		t.Fatal(err)
	}
	if first, _ := r.First(); first.ID != 2 {
		t.Fatalf("words lookup served another family's entry: %+v", first)
	}
	if b.calls.Load() != 1 {
		t.Fatalf("words family should have fetched")
	}
	// other pages are distinct entries too
	if _, err := sentences.Lookup(ctx, "cat", 1, a.fetch); err != nil {
		t.Fatal(err)
	}
	if a.calls.Load() != 2 {
		t.Fatalf("page 1 should miss, calls=%d", a.calls.Load())
	}
}

func TestPoisonedEntryIsHardFailure(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, legacyList)

	_, _ = mp.Set(ctx, "sentences_cat_0", []byte(`{"id":1,"text":"ok"}`+c.Delimiter+`{broken`), 1, time.Minute)

	_, err := fam.Lookup(ctx, "cat", 0, src.fetch)
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("want ErrSerialization, got %v", err)
	}
	var se *SerializationError
	if !errors.As(err, &se) || se.Segment != 1 || se.Key != "sentences_cat_0" {
		t.Fatalf("unexpected error detail: %+v", se)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("poisoned entry must not fall back to the backend")
	}
}

func TestEmptyResultIsCached(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{}
	fam := newTestFamily(t, "kanji", mp, nil)

	for i := 0; i < 2; i++ {
		r, err := fam.Lookup(ctx, "zzz", 0, src.fetch)
		if err != nil || r.Len() != 0 {
			t.Fatalf("Lookup = %d records, err=%v", r.Len(), err)
		}
	}
	if src.calls.Load() != 1 {
		t.Fatalf("empty result should be cached, backend calls=%d", src.calls.Load())
	}
}

func TestLegacyEmptyResultIsRefetched(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{}
	fam := newTestFamily(t, "kanji", mp, legacyList)

	for i := 0; i < 2; i++ {
		if _, err := fam.Lookup(ctx, "zzz", 0, src.fetch); err != nil {
			t.Fatal(err)
		}
	}
	if src.calls.Load() != 2 {
		t.Fatalf("legacy empty entries read as absent, backend calls=%d want 2", src.calls.Load())
	}
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.getErr = errors.New("connection refused")
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, nil)

	_, err := fam.Lookup(ctx, "cat", 0, src.fetch)
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("want ErrCacheUnavailable, got %v", err)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("no fallback expected by default")
	}
}

func TestFallbackOnUnavailable(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.getErr = errors.New("i/o timeout")
	mp.setErr = errors.New("i/o timeout")
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, func(o *Options[sentence]) {
		o.FallbackOnUnavailable = true
	})

	r, err := fam.Lookup(ctx, "cat", 0, src.fetch)
	if err != nil || r.Len() != 1 {
		t.Fatalf("fallback lookup = %d records, err=%v", r.Len(), err)
	}

	mp.getErr = nil
	r, err = fam.Lookup(ctx, "dog", 0, src.fetch)
	if err != nil || r.Len() != 1 {
		t.Fatalf("failed write should still return records, got %d err=%v", r.Len(), err)
	}
}

func TestWriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.setErr = errors.New("READONLY")
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, nil)

	_, err := fam.Lookup(ctx, "cat", 0, src.fetch)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "set" {
		t.Fatalf("want set StoreError, got %v", err)
	}
}

func TestBackendErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	boom := errors.New("relation mv_kanji does not exist")
	src := &countingSource{err: boom}
	fam := newTestFamily(t, "kanji", mp, nil)

	_, err := fam.Lookup(ctx, "cat", 0, src.fetch)
	if !errors.Is(err, ErrBackend) || !errors.Is(err, boom) {
		t.Fatalf("want backend error wrapping %v, got %v", boom, err)
	}
	if _, ok := mp.raw("kanji_cat_0"); ok {
		t.Fatalf("failed fetch must not be cached")
	}
}

func TestExpiredEntryIsRefetched(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, nil)

	if _, err := fam.Lookup(ctx, "cat", 0, src.fetch); err != nil {
		t.Fatal(err)
	}
	mp.expire("sentences_cat_0")
	if _, err := fam.Lookup(ctx, "cat", 0, src.fetch); err != nil {
		t.Fatal(err)
	}
	if src.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", src.calls.Load())
	}
}

func TestDisabledPassesThrough(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &countingSource{rows: []sentence{{ID: 1}}}
	fam := newTestFamily(t, "sentences", mp, func(o *Options[sentence]) { o.Disabled = true })

	for i := 0; i < 2; i++ {
		if r, err := fam.Lookup(ctx, "cat", 0, src.fetch); err != nil || r.Len() != 1 {
			t.Fatalf("Lookup: %d records err=%v", r.Len(), err)
		}
	}
	if mp.gets.Load() != 0 || mp.sets.Load() != 0 || src.calls.Load() != 2 {
		t.Fatalf("disabled family touched the store")
	}
}

func TestLookupOne(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	fam := newTestFamily(t, "entry", mp, nil)

	var calls atomic.Int64
	fetch := func(_ context.Context, key string, _ int) (sentence, bool, error) {
		calls.Add(1)
		if key == "404" {
			return sentence{}, false, nil
		}
		return sentence{ID: 42, Text: "word"}, true, nil
	}

	for i := 0; i < 2; i++ {
		v, ok, err := fam.LookupOne(ctx, "42", 0, fetch)
		if err != nil || !ok || v.ID != 42 {
			t.Fatalf("LookupOne = %+v ok=%v err=%v", v, ok, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if e, ok := mp.raw("entry_42_0"); !ok || string(e.v) != `{"id":42,"text":"word"}` {
		t.Fatalf("single record should be stored as one JSON value, got %q", e.v)
	}

	// absent is not an error and is not cached
	for i := 0; i < 2; i++ {
		if _, ok, err := fam.LookupOne(ctx, "404", 0, fetch); ok || err != nil {
			t.Fatalf("absent: ok=%v err=%v", ok, err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("absent results must not be cached, calls=%d", calls.Load())
	}

	// nil fetcher is a cache-only read
	if _, ok, err := fam.LookupOne(ctx, "7", 0, nil); ok || err != nil {
		t.Fatalf("cache-only miss: ok=%v err=%v", ok, err)
	}
}

func TestStoreEntryForget(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	fam := newTestFamily(t, "tokens", mp, func(o *Options[sentence]) { o.TTL = time.Minute })

	it, err := fam.Entry("abc", 0, sentence{ID: 1})
	if err != nil || it.Key != "tokens_abc_0" {
		t.Fatalf("Entry = %+v err=%v", it, err)
	}
	if err := fam.Store(ctx, "abc", 0, sentence{ID: 1}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if e, _ := mp.raw("tokens_abc_0"); e.ttl != time.Minute {
		t.Fatalf("ttl = %v", e.ttl)
	}
	if v, ok, _ := fam.LookupOne(ctx, "abc", 0, nil); !ok || v.ID != 1 {
		t.Fatalf("stored value not readable")
	}
	if err := fam.Forget(ctx, "abc", 0); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok, _ := fam.LookupOne(ctx, "abc", 0, nil); ok {
		t.Fatalf("value still present after Forget")
	}
}

// blockingSource holds every fetch until release is closed.
type blockingSource struct {
	started atomic.Int64
	release chan struct{}
}

func (s *blockingSource) fetch(_ context.Context, _ string, _ int) iter.Seq2[sentence, error] {
	return func(yield func(sentence, error) bool) {
		s.started.Add(1)
		<-s.release
		yield(sentence{ID: 1}, nil)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestConcurrentMissesEachFetch documents the stampede gap: without
// coalescing every concurrent miss hits the backend.
func TestConcurrentMissesEachFetch(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &blockingSource{release: make(chan struct{})}
	fam := newTestFamily(t, "sentences", mp, nil)

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fam.Lookup(ctx, "cat", 0, src.fetch); err != nil {
				t.Errorf("Lookup: %v", err)
			}
		}()
	}
	waitFor(t, func() bool { return src.started.Load() == n })
	close(src.release)
	wg.Wait()
}

func TestCoalescedMissesFetchOnce(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	src := &blockingSource{release: make(chan struct{})}
	fam := newTestFamily(t, "sentences", mp, func(o *Options[sentence]) { o.Coalesce = true })

	const n = 4
	var wg sync.WaitGroup
	results := make([]*Replay[sentence], n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := fam.Lookup(ctx, "cat", 0, src.fetch)
			if err != nil {
				t.Errorf("Lookup: %v", err)
			}
			results[i] = r
		}(i)
	}
	waitFor(t, func() bool { return mp.gets.Load() == n && src.started.Load() == 1 })
	time.Sleep(50 * time.Millisecond) // let the followers join the flight
	close(src.release)
	wg.Wait()

	if got := src.started.Load(); got != 1 {
		t.Fatalf("backend executed %d times, want 1", got)
	}
	for i, r := range results {
		if r.Len() != 1 {
			t.Fatalf("result %d has %d records", i, r.Len())
		}
	}
}

func TestCoalescedLeaderCancelDoesNotFailFollowers(t *testing.T) {
	mp := newMemProvider()
	var started atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context, _ string, _ int) iter.Seq2[sentence, error] {
		return func(yield func(sentence, error) bool) {
			started.Add(1)
			<-release
			if err := ctx.Err(); err != nil {
				yield(sentence{}, err)
				return
			}
			yield(sentence{ID: 1, Text: "猫が好きです"}, nil)
		}
	}
	fam := newTestFamily(t, "sentences", mp, func(o *Options[sentence]) { o.Coalesce = true })

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := fam.Lookup(leaderCtx, "cat", 0, fetch)
		leaderErr <- err
	}()
	waitFor(t, func() bool { return started.Load() == 1 })

	type result struct {
		r   *Replay[sentence]
		err error
	}
	follower := make(chan result, 1)
	go func() {
		r, err := fam.Lookup(context.Background(), "cat", 0, fetch)
		follower <- result{r, err}
	}()
	waitFor(t, func() bool { return mp.gets.Load() == 2 })
	time.Sleep(50 * time.Millisecond) // let the follower join the flight

	cancel()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("leader err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("leader did not return after cancel")
	}

	close(release)
	got := <-follower
	if got.err != nil {
		t.Fatalf("follower err = %v", got.err)
	}
	if got.r.Len() != 1 {
		t.Fatalf("follower got %d records", got.r.Len())
	}
	if started.Load() != 1 {
		t.Fatalf("backend executed %d times, want 1", started.Load())
	}
	if _, ok := mp.raw("sentences_cat_0"); !ok {
		t.Fatalf("shared result was not cached")
	}
}

func TestLegacyDelimiterCollisionServesUncached(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	fam := newTestFamily(t, "sentences", mp, func(o *Options[sentence]) {
		o.List = c.Delimited[sentence]{Item: c.JSON[sentence]{}}
	})
	var calls atomic.Int64
	fetch := func(context.Context, string, int) iter.Seq2[sentence, error] {
		return func(yield func(sentence, error) bool) {
			calls.Add(1)
			yield(sentence{ID: 9, Text: "a #*#~#*# b"}, nil)
		}
	}

	for i := 0; i < 2; i++ {
		r, err := fam.Lookup(ctx, "odd", 0, fetch)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if v, _ := r.First(); v.Text != "a #*#~#*# b" {
			t.Fatalf("got %+v", v)
		}
	}
	if mp.sets.Load() != 0 {
		t.Fatalf("sets = %d, want 0", mp.sets.Load())
	}
	if calls.Load() != 2 {
		t.Fatalf("backend calls = %d, want 2", calls.Load())
	}
}
