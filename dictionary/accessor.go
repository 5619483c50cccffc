// Package dictionary is the caching accessor the API layer talks to. Each
// read goes through a cache family keyed by function name; user and token
// operations go through the backend and the session store.
package dictionary

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/backend"
	"github.com/unkn0wn-root/dictcache/model"
	pr "github.com/unkn0wn-root/dictcache/provider"
	"github.com/unkn0wn-root/dictcache/session"
)

// Function names; the first segment of every storage key.
const (
	FnSentences    = "sentences"
	FnTranslations = "translations"
	FnKanji        = "kanji"
	FnWordEntries  = "wordentries"
	FnEntry        = "entry"
	FnKanjiEntry   = "kanjientry"
	FnSenses       = "senses"
	FnUsers        = "users"
)

var (
	ErrUserExists   = backend.ErrUserExists
	ErrInvalidToken = errors.New("invalid or expired token")
)

type Config struct {
	Source   backend.Source
	Provider pr.Provider
	// Sessions defaults to a store on Provider with dictcache.SessionTTL.
	Sessions *session.Store

	Encoding       Encoding
	TTL            time.Duration // content TTL; 0 => dictcache.DefaultTTL
	Logger         dictcache.Logger
	Hooks          dictcache.Hooks
	ComputeSetCost dictcache.SetCostFunc
	Disabled       bool

	FallbackOnUnavailable bool
	Coalesce              bool

	// EntryFetchers bounds concurrent entry loads in SearchWords; 0 => 8.
	EntryFetchers int
}

type Accessor struct {
	src      backend.Source
	sessions *session.Store
	log      dictcache.Logger
	fetchers int

	sentences    *dictcache.Family[model.SentenceBundle]
	translations *dictcache.Family[model.Sentence]
	kanji        *dictcache.Family[model.Kanji]
	wordEntries  *dictcache.Family[model.WordEntry]
	entry        *dictcache.Family[model.Word]
	kanjiEntry   *dictcache.Family[model.Form]
	senses       *dictcache.Family[model.Sense]
	users        *dictcache.Family[model.User]
}

func family[V any](cfg Config, fn string) (*dictcache.Family[V], error) {
	item := recordCodec[V](cfg.Encoding)
	return dictcache.NewFamily[V](dictcache.Options[V]{
		Function:              fn,
		Provider:              cfg.Provider,
		Codec:                 item,
		List:                  listCodec[V](cfg.Encoding, item),
		TTL:                   cfg.TTL,
		Logger:                cfg.Logger,
		Hooks:                 cfg.Hooks,
		ComputeSetCost:        cfg.ComputeSetCost,
		Disabled:              cfg.Disabled,
		FallbackOnUnavailable: cfg.FallbackOnUnavailable,
		Coalesce:              cfg.Coalesce,
	})
}

func New(cfg Config) (*Accessor, error) {
	if cfg.Source == nil {
		return nil, errors.New("dictionary: source is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("dictionary: provider is required")
	}
	if err := cfg.Encoding.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = dictcache.NopLogger{}
	}

	a := &Accessor{src: cfg.Source, sessions: cfg.Sessions, log: cfg.Logger, fetchers: cfg.EntryFetchers}
	if a.fetchers <= 0 {
		a.fetchers = 8
	}
	if a.sessions == nil {
		s, err := session.New(session.Config{Provider: cfg.Provider, Logger: cfg.Logger, Hooks: cfg.Hooks})
		if err != nil {
			return nil, err
		}
		a.sessions = s
	}

	var err error
	if a.sentences, err = family[model.SentenceBundle](cfg, FnSentences); err != nil {
		return nil, err
	}
	if a.translations, err = family[model.Sentence](cfg, FnTranslations); err != nil {
		return nil, err
	}
	if a.kanji, err = family[model.Kanji](cfg, FnKanji); err != nil {
		return nil, err
	}
	if a.wordEntries, err = family[model.WordEntry](cfg, FnWordEntries); err != nil {
		return nil, err
	}
	if a.entry, err = family[model.Word](cfg, FnEntry); err != nil {
		return nil, err
	}
	if a.kanjiEntry, err = family[model.Form](cfg, FnKanjiEntry); err != nil {
		return nil, err
	}
	if a.senses, err = family[model.Sense](cfg, FnSenses); err != nil {
		return nil, err
	}
	if a.users, err = family[model.User](cfg, FnUsers); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Accessor) Sessions() *session.Store { return a.sessions }

// Sentences caches under the normalized query; the backend receives the
// query as given.
func (a *Accessor) Sentences(ctx context.Context, query string, page int) (*dictcache.Replay[model.SentenceBundle], error) {
	return a.sentences.Lookup(ctx, dictcache.NormalizeQuery(query), page,
		func(ctx context.Context, _ string, page int) backend.Rows[model.SentenceBundle] {
			return a.src.Sentences(ctx, query, page)
		})
}

// Translations caches under "<language>_<id>_<id>..." (lower-cased).
func (a *Accessor) Translations(ctx context.Context, ids []int, language string) (*dictcache.Replay[model.Sentence], error) {
	if len(ids) == 0 {
		return dictcache.Of[model.Sentence](), nil
	}
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, language)
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	key := dictcache.NormalizeQuery(dictcache.JoinKey(parts...))
	return a.translations.Lookup(ctx, key, 0,
		func(ctx context.Context, _ string, _ int) backend.Rows[model.Sentence] {
			return a.src.Translations(ctx, ids, language)
		})
}

func (a *Accessor) Kanji(ctx context.Context, query string) (*dictcache.Replay[model.Kanji], error) {
	return a.kanji.Lookup(ctx, dictcache.NormalizeQuery(query), 0,
		func(ctx context.Context, _ string, _ int) backend.Rows[model.Kanji] {
			return a.src.Kanji(ctx, query)
		})
}

// EntriesForWord returns entry ids in backend order.
func (a *Accessor) EntriesForWord(ctx context.Context, word string, page int) (*dictcache.Replay[int], error) {
	r, err := a.wordEntries.Lookup(ctx, dictcache.NormalizeQuery(word), page,
		func(ctx context.Context, _ string, page int) backend.Rows[model.WordEntry] {
			return backend.Map(a.src.EntriesForWord(ctx, word, page), func(id int) model.WordEntry {
				return model.WordEntry{ID: id}
			})
		})
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, r.Len())
	for e := range r.All() {
		ids = append(ids, e.ID)
	}
	return dictcache.Of(ids...), nil
}

// Entry caches one word under entry_<id>_0. Absent entries are not cached.
func (a *Accessor) Entry(ctx context.Context, id int) (model.Word, bool, error) {
	return a.entry.LookupOne(ctx, strconv.Itoa(id), 0,
		func(ctx context.Context, _ string, _ int) (model.Word, bool, error) {
			return a.src.Entry(ctx, id)
		})
}

func (a *Accessor) KanjisForEntry(ctx context.Context, id int) (*dictcache.Replay[model.Form], error) {
	return a.kanjiEntry.Lookup(ctx, strconv.Itoa(id), 0,
		func(ctx context.Context, _ string, _ int) backend.Rows[model.Form] {
			return a.src.KanjisForEntry(ctx, id)
		})
}

func (a *Accessor) SensesForEntry(ctx context.Context, id int) (*dictcache.Replay[model.Sense], error) {
	return a.senses.Lookup(ctx, strconv.Itoa(id), 0,
		func(ctx context.Context, _ string, _ int) backend.Rows[model.Sense] {
			return a.src.SensesForEntry(ctx, id)
		})
}
