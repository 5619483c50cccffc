package dictionary

import (
	"context"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/model"
)

// SearchSentences filters cached sentence results by sentence length in
// characters. maxLen 0 means no upper bound. The filter runs after the
// cache, so every length range shares one entry per (query, page).
func (a *Accessor) SearchSentences(ctx context.Context, query string, page, minLen, maxLen int) (*dictcache.Replay[model.SentenceBundle], error) {
	if query == "" {
		return dictcache.Of[model.SentenceBundle](), nil
	}
	r, err := a.Sentences(ctx, query, page)
	if err != nil {
		return nil, err
	}
	if minLen <= 0 && maxLen <= 0 {
		return r, nil
	}
	return r.Filter(func(b model.SentenceBundle) bool {
		n := utf8.RuneCountInString(b.Sentence.Sentence)
		return n >= minLen && (maxLen == 0 || n <= maxLen)
	}), nil
}

// SearchWords resolves a word query to full entries, in the order the
// backend ranked them. Entries are loaded concurrently; ids whose entry has
// disappeared are skipped.
func (a *Accessor) SearchWords(ctx context.Context, query string, page int) (*dictcache.Replay[model.Word], error) {
	if query == "" {
		return dictcache.Of[model.Word](), nil
	}
	ids, err := a.EntriesForWord(ctx, query, page)
	if err != nil {
		return nil, err
	}

	type slot struct {
		w  model.Word
		ok bool
	}
	slots := make([]slot, ids.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fetchers)
	next := 0
	for id := range ids.All() {
		i := next
		next++
		g.Go(func() error {
			w, ok, err := a.Entry(gctx, id)
			if err != nil {
				return err
			}
			slots[i] = slot{w, ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	words := make([]model.Word, 0, len(slots))
	for _, s := range slots {
		if s.ok {
			words = append(words, s.w)
		}
	}
	return dictcache.Of(words...), nil
}
