package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/dictcache/internal/wire"
)

// Delimiter joins records in the legacy list encoding.
const Delimiter = "#*#~#*#"

var ErrDelimiterInPayload = errors.New("codec: encoded record contains the list delimiter")

// SegmentError reports which list element failed to encode or decode.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// Delimited is the list encoding the service has always written: every
// record encoded on its own and joined with Delimiter. An empty list encodes
// to an empty value. Empty segments are discarded on decode.
//
// Keep it only where entries written by older deployments must stay
// readable; Framed has no delimiter to collide with.
type Delimited[V any] struct {
	Item Codec[V]
}

var _ ListCodec[struct{}] = Delimited[struct{}]{}

func (c Delimited[V]) EncodeMany(vs []V) ([]byte, error) {
	if len(vs) == 0 {
		return []byte{}, nil
	}
	delim := []byte(Delimiter)
	var buf bytes.Buffer
	for i, v := range vs {
		b, err := c.Item.Encode(v)
		if err != nil {
			return nil, &SegmentError{Index: i, Err: err}
		}
		if bytes.Contains(b, delim) {
			return nil, &SegmentError{Index: i, Err: ErrDelimiterInPayload}
		}
		if i > 0 {
			buf.Write(delim)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func (c Delimited[V]) DecodeMany(b []byte) ([]V, error) {
	parts := bytes.Split(b, []byte(Delimiter))
	out := make([]V, 0, len(parts))
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		v, err := c.Item.Decode(p)
		if err != nil {
			return nil, &SegmentError{Index: i, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

// Framed stores a list as length-prefixed records (see internal/wire).
// Any payload round-trips, and an empty list is a present value.
type Framed[V any] struct {
	Item Codec[V]
}

var _ ListCodec[struct{}] = Framed[struct{}]{}

func (c Framed[V]) EncodeMany(vs []V) ([]byte, error) {
	payloads := make([][]byte, 0, len(vs))
	for i, v := range vs {
		b, err := c.Item.Encode(v)
		if err != nil {
			return nil, &SegmentError{Index: i, Err: err}
		}
		payloads = append(payloads, b)
	}
	return wire.EncodeList(payloads)
}

func (c Framed[V]) DecodeMany(b []byte) ([]V, error) {
	payloads, err := wire.DecodeList(b)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(payloads))
	for i, p := range payloads {
		v, err := c.Item.Decode(p)
		if err != nil {
			return nil, &SegmentError{Index: i, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}
