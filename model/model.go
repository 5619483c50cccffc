// Package model holds the records served by the dictionary API. JSON field
// names match the payloads already present in the cache.
package model

import (
	"fmt"
	"strconv"
)

type Sentence struct {
	ID       int    `json:"id"`
	Language string `json:"language"`
	Sentence string `json:"sentence"`
}

// SentenceBundle is a sentence together with its translations. The sentence
// fields are inlined at the top level of the JSON object.
type SentenceBundle struct {
	Sentence
	Translations []Sentence `json:"translations"`
}

type Kanji struct {
	ID        int      `json:"id"`
	Literal   string   `json:"literal"`
	Meanings  []string `json:"meanings"`
	On        []string `json:"on"`
	Kun       []string `json:"kun"`
	Strokes   int      `json:"strokes"`
	Grade     int      `json:"grade,omitempty"`
	Frequency int      `json:"frequency,omitempty"`
	JLPT      int      `json:"jlpt,omitempty"`
}

type Text struct {
	Literal string `json:"literal"`
	Info    string `json:"info,omitempty"`
}

type Form struct {
	Kanji   Text `json:"kanji"`
	Reading Text `json:"reading"`
}

type Sense struct {
	Glosses []string `json:"glosses"`
	POS     []string `json:"pos"`
	Misc    []string `json:"misc,omitempty"`
	Notes   string   `json:"notes,omitempty"`
}

type Word struct {
	ID     int     `json:"id"`
	Forms  []Form  `json:"forms"`
	Senses []Sense `json:"senses"`
}

// WordEntry is the cached element of an entries-for-word lookup.
type WordEntry struct {
	ID int `json:"id"`
}

// Snowflake identifies a user.
type Snowflake int64

func (s Snowflake) String() string { return strconv.FormatInt(int64(s), 10) }

func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Snowflake(v), err
}

type Bookmarks struct {
	Words     []int `json:"words"`
	Kanji     []int `json:"kanji"`
	Sentences []int `json:"sentences"`
}

// BookmarkKind selects the Bookmarks list an id belongs to. Values match the
// backend's bookmark type column.
type BookmarkKind int

const (
	BookmarkWord BookmarkKind = iota
	BookmarkKanji
	BookmarkSentence
)

func (k BookmarkKind) Valid() bool { return k >= BookmarkWord && k <= BookmarkSentence }

var bookmarkNames = [...]string{"word", "kanji", "sentence"}

func (k BookmarkKind) String() string {
	if !k.Valid() {
		return "BookmarkKind(" + strconv.Itoa(int(k)) + ")"
	}
	return bookmarkNames[k]
}

// ParseBookmarkKind accepts the names printed by String.
func ParseBookmarkKind(s string) (BookmarkKind, error) {
	for i, n := range bookmarkNames {
		if s == n {
			return BookmarkKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bookmark kind %q", s)
}

type User struct {
	Snowflake Snowflake `json:"snowflake"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	Bookmarks Bookmarks `json:"bookmarks"`
}

// Token is an opaque session credential. Expiry is the lifetime in seconds.
type Token struct {
	Snowflake int64  `json:"snowflake"`
	Token     string `json:"token"`
	Expiry    int64  `json:"expiry"`
}

type CreateUserSpec struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
