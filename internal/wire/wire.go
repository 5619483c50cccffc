package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const version byte = 1

var (
	ErrCorrupt  = errors.New("dictcache: corrupt list entry")
	ErrTooLarge = errors.New("dictcache: list item too large")
	magic4      = [...]byte{'D', 'C', 'L', 'S'}
)

const header = 4 + 1 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// IsList reports whether b carries the list framing header.
func IsList(b []byte) bool {
	return len(b) >= header && hasMagic(b) && b[4] == version
}

// EncodeList frames payloads as:
//
//	magic(4) | ver(1) | n(u32 be) | vlen(u32 be) | payload(vlen) * n
//
// An empty list still produces the full header, so a cached empty result
// is a present value and never confused with a miss.
func EncodeList(payloads [][]byte) ([]byte, error) {
	total := header
	for _, p := range payloads {
		if uint64(len(p)) > math.MaxUint32 {
			return nil, ErrTooLarge
		}
		total += 4 + len(p)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payloads)))
	buf.Write(u4[:])

	for _, p := range payloads {
		binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
		buf.Write(u4[:])
		buf.Write(p)
	}
	return buf.Bytes(), nil
}

// DecodeList returns the framed payloads. Returned slices alias b.
func DecodeList(b []byte) ([][]byte, error) {
	if !IsList(b) {
		return nil, ErrCorrupt
	}
	off := 5

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every item needs at least its 4 byte length prefix
	if n < 0 || n > (len(b)-off)/4 {
		return nil, ErrCorrupt
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
			return nil, ErrCorrupt
		}
		out = append(out, b[off:off+vlen])
		off += vlen
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return out, nil
}
