package dictionary

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/dictcache/backend"
	"github.com/unkn0wn-root/dictcache/model"
	rp "github.com/unkn0wn-root/dictcache/provider/redis"
)

// fakeSource is an in-memory backend that counts calls per method and
// records the raw query it was given.
type fakeSource struct {
	mu        sync.Mutex
	calls     map[string]*atomic.Int64
	lastQuery string

	sentences []model.SentenceBundle
	kanji     []model.Kanji
	entries   map[string][]int
	words     map[int]model.Word
	users     map[model.Snowflake]model.User
	passwords map[string]string // email -> password
	nextID    model.Snowflake
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:     map[string]*atomic.Int64{},
		entries:   map[string][]int{},
		words:     map[int]model.Word{},
		users:     map[model.Snowflake]model.User{},
		passwords: map[string]string{},
		nextID:    1000,
	}
}

var _ backend.Source = (*fakeSource)(nil)

func (f *fakeSource) hit(name string) {
	f.mu.Lock()
	c, ok := f.calls[name]
	if !ok {
		c = &atomic.Int64{}
		f.calls[name] = c
	}
	f.mu.Unlock()
	c.Add(1)
}

func (f *fakeSource) count(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.calls[name]; ok {
		return c.Load()
	}
	return 0
}

// counted defers the call count until the rows are consumed, like a real
// cursor.
func counted[V any](f *fakeSource, name string, items func() []V) backend.Rows[V] {
	return func(yield func(V, error) bool) {
		f.hit(name)
		for _, v := range items() {
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (f *fakeSource) Sentences(_ context.Context, q string, _ int) backend.Rows[model.SentenceBundle] {
	return counted(f, "Sentences", func() []model.SentenceBundle {
		f.mu.Lock()
		f.lastQuery = q
		f.mu.Unlock()
		return f.sentences
	})
}

func (f *fakeSource) Translations(_ context.Context, ids []int, lang string) backend.Rows[model.Sentence] {
	return counted(f, "Translations", func() []model.Sentence {
		out := make([]model.Sentence, 0, len(ids))
		for _, id := range ids {
			out = append(out, model.Sentence{ID: id, Language: lang, Sentence: "translation"})
		}
		return out
	})
}

func (f *fakeSource) Kanji(_ context.Context, q string) backend.Rows[model.Kanji] {
	return counted(f, "Kanji", func() []model.Kanji { return f.kanji })
}

func (f *fakeSource) EntriesForWord(_ context.Context, w string, _ int) backend.Rows[int] {
	return counted(f, "EntriesForWord", func() []int { return f.entries[w] })
}

func (f *fakeSource) Entry(_ context.Context, id int) (model.Word, bool, error) {
	f.hit("Entry")
	w, ok := f.words[id]
	return w, ok, nil
}

func (f *fakeSource) KanjisForEntry(_ context.Context, id int) backend.Rows[model.Form] {
	return counted(f, "KanjisForEntry", func() []model.Form { return f.words[id].Forms })
}

func (f *fakeSource) SensesForEntry(_ context.Context, id int) backend.Rows[model.Sense] {
	return counted(f, "SensesForEntry", func() []model.Sense { return f.words[id].Senses })
}

func (f *fakeSource) User(_ context.Context, id model.Snowflake) (model.User, bool, error) {
	f.hit("User")
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeSource) UserExists(_ context.Context, email string) (bool, error) {
	f.hit("UserExists")
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.passwords[email]
	return ok, nil
}

func (f *fakeSource) CreateUser(_ context.Context, spec model.CreateUserSpec) (model.Snowflake, error) {
	f.hit("CreateUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.passwords[spec.Email] = spec.Password
	f.users[id] = model.User{Snowflake: id, Email: spec.Email, Username: spec.Username}
	return id, nil
}

func (f *fakeSource) CheckCredentials(_ context.Context, email, password string) (model.User, bool, error) {
	f.hit("CheckCredentials")
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.passwords[email]; !ok || pw != password {
		return model.User{}, false, nil
	}
	for _, u := range f.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (f *fakeSource) AddBookmark(_ context.Context, user model.Snowflake, kind model.BookmarkKind, id int) error {
	f.hit("AddBookmark")
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[user]
	switch kind {
	case model.BookmarkWord:
		u.Bookmarks.Words = append(u.Bookmarks.Words, id)
	case model.BookmarkKanji:
		u.Bookmarks.Kanji = append(u.Bookmarks.Kanji, id)
	case model.BookmarkSentence:
		u.Bookmarks.Sentences = append(u.Bookmarks.Sentences, id)
	}
	f.users[user] = u
	return nil
}

func (f *fakeSource) RemoveBookmark(_ context.Context, user model.Snowflake, kind model.BookmarkKind, id int) error {
	f.hit("RemoveBookmark")
	return nil
}

func newAccessor(t *testing.T, src *fakeSource, enc Encoding) (*miniredis.Miniredis, *Accessor) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := rp.New(rp.Config{Client: client, CloseClient: true, OpTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	a, err := New(Config{Source: src, Provider: p, Encoding: enc})
	if err != nil {
		t.Fatal(err)
	}
	return mr, a
}
