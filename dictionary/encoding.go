package dictionary

import (
	"fmt"

	"github.com/unkn0wn-root/dictcache/codec"
)

const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
	FormatCBOR    = "cbor"

	ListFramed    = "framed"
	ListDelimited = "delimited"
)

// Encoding selects how every family serializes its records.
type Encoding struct {
	Format    string // json (default), msgpack, cbor
	List      string // framed (default), delimited
	MaxDecode int    // reject cached payloads larger than this; 0 = no limit
}

// Validate rejects unknown names and the delimited list with a binary
// format, whose payloads can contain the delimiter bytes.
func (e Encoding) Validate() error {
	switch e.Format {
	case "", FormatJSON, FormatMsgpack, FormatCBOR:
	default:
		return fmt.Errorf("unknown record format %q", e.Format)
	}
	switch e.List {
	case "", ListFramed:
	case ListDelimited:
		if e.Format != "" && e.Format != FormatJSON {
			return fmt.Errorf("delimited lists require json records, got %q", e.Format)
		}
	default:
		return fmt.Errorf("unknown list encoding %q", e.List)
	}
	return nil
}

func recordCodec[V any](e Encoding) codec.Codec[V] {
	var c codec.Codec[V]
	switch e.Format {
	case FormatMsgpack:
		c = codec.Msgpack[V]{}
	case FormatCBOR:
		c = codec.MustCBOR[V](codec.CBOROptions{Deterministic: true})
	default:
		c = codec.JSON[V]{}
	}
	if e.MaxDecode > 0 {
		c = codec.Limit[V]{Inner: c, MaxDecode: e.MaxDecode}
	}
	return c
}

func listCodec[V any](e Encoding, item codec.Codec[V]) codec.ListCodec[V] {
	if e.List == ListDelimited {
		return codec.Delimited[V]{Item: item}
	}
	return codec.Framed[V]{Item: item}
}
