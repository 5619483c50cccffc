package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOROptions tune the CBOR codec. The zero value gives preferred
// (unsorted) encoding and the library's default decode limits.
type CBOROptions struct {
	// Deterministic selects RFC 8949 core deterministic encoding, so two
	// instances caching the same rows write byte-identical entries.
	Deterministic bool
	// MaxArrayElements and MaxNestedLevels bound what Decode will accept
	// from the store. 0 keeps the library default.
	MaxArrayElements int
	MaxNestedLevels  int
}

// CBOR serializes records with fxamacker/cbor. Struct fields fall back to
// their `json` tags, so a sentence cached as CBOR carries the same field
// names as its JSON form. Build one with NewCBOR or MustCBOR.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](opts CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if opts.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}

	do := cbor.DecOptions{
		MaxArrayElements: opts.MaxArrayElements,
		MaxNestedLevels:  opts.MaxNestedLevels,
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func MustCBOR[V any](opts CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if err := c.dec.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
