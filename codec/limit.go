package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge marks a cached payload rejected by Limit before decoding.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit refuses to decode payloads longer than MaxDecode bytes, so a
// corrupted or foreign entry in a shared store cannot force a huge
// allocation. Encode is not limited. MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
