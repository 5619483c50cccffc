package dictcache

import "time"

const (
	// DefaultTTL is the lifetime of content entries.
	DefaultTTL = 7 * 24 * time.Hour
	// SessionTTL is the lifetime of a session token (600000 seconds).
	SessionTTL = 600000 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
