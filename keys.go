package dictcache

import (
	"strconv"
	"strings"
)

// BuildKey composes the storage key for one lookup:
//
//	<function>_<key>_<page>
//
// Non-paged families pass page 0. Textual keys must be normalized by the
// caller (see NormalizeQuery); ids are passed as their decimal form.
func BuildKey(function, key string, page int) string {
	var b strings.Builder
	b.Grow(len(function) + len(key) + 2 + 4)
	b.WriteString(function)
	b.WriteByte('_')
	b.WriteString(key)
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(page))
	return b.String()
}

// NormalizeQuery trims and lower-cases a human text query so "Query" and
// "query " share an entry.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// JoinKey joins the parts of a composite lookup key with '_'.
func JoinKey(parts ...string) string { return strings.Join(parts, "_") }
