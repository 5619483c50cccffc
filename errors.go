package dictcache

import (
	"errors"
	"fmt"

	c "github.com/unkn0wn-root/dictcache/codec"
)

var (
	// ErrSerialization: a cached payload could not be decoded, or a record
	// could not be encoded. Never treated as a miss.
	ErrSerialization = errors.New("dictcache: serialization failed")
	// ErrCacheUnavailable: the provider failed (refused, timed out).
	ErrCacheUnavailable = errors.New("dictcache: cache unavailable")
	// ErrBackend: the backend fetch failed. errors.Is also reaches the
	// backend's own error.
	ErrBackend = errors.New("dictcache: backend failed")
	// ErrTokenIssuance: a token was only partially written.
	ErrTokenIssuance = errors.New("dictcache: token issuance incomplete")
)

type SerializationError struct {
	Key     string
	Segment int // index of the failing list element, -1 for single records
	Err     error
}

func newSerializationError(key string, err error) *SerializationError {
	e := &SerializationError{Key: key, Segment: -1, Err: err}
	var se *c.SegmentError
	if errors.As(err, &se) {
		e.Segment = se.Index
	}
	return e
}

func (e *SerializationError) Error() string {
	if e.Segment >= 0 {
		return fmt.Sprintf("serialization %q (segment %d): %v", e.Key, e.Segment, e.Err)
	}
	return fmt.Sprintf("serialization %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }
func (e *SerializationError) Unwrap() error        { return e.Err }

// StoreError wraps a provider failure.
type StoreError struct {
	Op  string // "get", "set", "del"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Is(target error) bool { return target == ErrCacheUnavailable }
func (e *StoreError) Unwrap() error        { return e.Err }

type BackendError struct {
	Function string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Function, e.Err)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
func (e *BackendError) Unwrap() error        { return e.Err }

// TokenIssuanceError reports a token whose forward entry was written but
// whose owner pointer was not.
type TokenIssuanceError struct {
	UserID int64
	Key    string // key that failed to write
	Err    error
}

func (e *TokenIssuanceError) Error() string {
	return fmt.Sprintf("issue token for %d: write %q: %v", e.UserID, e.Key, e.Err)
}

func (e *TokenIssuanceError) Is(target error) bool { return target == ErrTokenIssuance }
func (e *TokenIssuanceError) Unwrap() error        { return e.Err }
