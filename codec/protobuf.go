package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf stores generated messages. T is a pointer type such as
// *pb.Sentence and ctor returns an empty message for Decode to fill.
type Protobuf[T proto.Message] struct {
	ctor func() T
}

func NewProtobuf[T proto.Message](ctor func() T) (Protobuf[T], error) {
	if ctor == nil {
		return Protobuf[T]{}, errors.New("codec: protobuf constructor is required")
	}
	return Protobuf[T]{ctor: ctor}, nil
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.ctor()
	if err := proto.Unmarshal(b, m); err != nil {
		return m, fmt.Errorf("decode %s: %w", m.ProtoReflect().Descriptor().FullName(), err)
	}
	return m, nil
}
