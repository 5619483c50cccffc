// Package codec turns records into the bytes a cache provider stores.
//
// Codec[V] handles one record. ListCodec[V] handles an ordered list of
// records and is what query families cache.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ListCodec encodes an ordered list of V into a single stored value.
// DecodeMany(EncodeMany(vs)) must preserve order and count, including
// the empty list.
type ListCodec[V any] interface {
	EncodeMany([]V) ([]byte, error)
	DecodeMany([]byte) ([]V, error)
}
