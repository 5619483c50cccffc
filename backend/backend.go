// Package backend defines what the cache layer needs from the relational
// store. Query design lives behind Source; the cache only sees record
// sequences.
package backend

import (
	"context"
	"errors"
	"iter"

	"github.com/unkn0wn-root/dictcache/model"
)

// PageSize is the number of rows per page for every paged query.
const PageSize = 50

// ErrUserExists is returned by CreateUser when the email is already taken.
var ErrUserExists = errors.New("user already exists")

// Rows is a cold, single-use sequence of records. Nothing is queried until
// it is ranged over, and ranging over it twice runs the query twice. An
// empty sequence means "no results"; errors are yielded, never panicked.
type Rows[V any] = iter.Seq2[V, error]

// Source is the backend consumed by the dictionary accessor. Single-record
// lookups report absence with ok=false and a nil error.
type Source interface {
	Sentences(ctx context.Context, query string, page int) Rows[model.SentenceBundle]
	Translations(ctx context.Context, ids []int, language string) Rows[model.Sentence]
	Kanji(ctx context.Context, query string) Rows[model.Kanji]
	EntriesForWord(ctx context.Context, word string, page int) Rows[int]
	Entry(ctx context.Context, id int) (model.Word, bool, error)
	KanjisForEntry(ctx context.Context, id int) Rows[model.Form]
	SensesForEntry(ctx context.Context, id int) Rows[model.Sense]

	User(ctx context.Context, id model.Snowflake) (model.User, bool, error)
	UserExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, spec model.CreateUserSpec) (model.Snowflake, error)
	// CheckCredentials verifies email/password in the backend. A mismatch is
	// ok=false, not an error.
	CheckCredentials(ctx context.Context, email, password string) (model.User, bool, error)

	AddBookmark(ctx context.Context, user model.Snowflake, kind model.BookmarkKind, id int) error
	RemoveBookmark(ctx context.Context, user model.Snowflake, kind model.BookmarkKind, id int) error
}

// FromSlice adapts an in-memory result to Rows.
func FromSlice[V any](items []V) Rows[V] {
	return func(yield func(V, error) bool) {
		for _, v := range items {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Fail returns Rows that yields err once.
func Fail[V any](err error) Rows[V] {
	return func(yield func(V, error) bool) {
		var zero V
		yield(zero, err)
	}
}

// Map converts each record of rows with fn. Errors pass through.
func Map[V, W any](rows Rows[V], fn func(V) W) Rows[W] {
	return func(yield func(W, error) bool) {
		for v, err := range rows {
			if err != nil {
				var zero W
				yield(zero, err)
				return
			}
			if !yield(fn(v), nil) {
				return
			}
		}
	}
}
