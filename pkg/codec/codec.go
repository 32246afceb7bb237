// Package codec converts queue elements to and from the byte records stored
// in a durable queue.
//
// Byte slices and strings have passthrough codecs. Other element types use an
// explicit codec (Gob, JSON, Proto) or [Default], which falls back to gob.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/proto"
)

// Codec encodes and decodes a single element.
//
// Implementations must be safe for concurrent use.
type Codec[E any] interface {
	Encode(v E) ([]byte, error)
	Decode(data []byte) (E, error)
}

// Default picks the codec for E: passthrough for []byte and string, gob for
// everything else.
func Default[E any]() Codec[E] {
	var zero E
	switch any(zero).(type) {
	case []byte:
		return any(Bytes()).(Codec[E])
	case string:
		return any(String()).(Codec[E])
	}
	return Gob[E]()
}

type bytesCodec struct{}

// Bytes returns the passthrough codec for raw records.
func Bytes() Codec[[]byte] { return bytesCodec{} }

func (bytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

func (bytesCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type stringCodec struct{}

// String returns the UTF-8 codec for text records.
func String() Codec[string] { return stringCodec{} }

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (stringCodec) Decode(data []byte) (string, error) { return string(data), nil }

type gobCodec[E any] struct{}

// Gob returns a codec using encoding/gob. Every record carries its own type
// description so records can be decoded independently of each other.
func Gob[E any]() Codec[E] { return gobCodec[E]{} }

func (gobCodec[E]) Encode(v E) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec[E]) Decode(data []byte) (E, error) {
	var v E
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("gob decode: %w", err)
	}
	return v, nil
}

type jsonCodec[E any] struct {
	api jsoniter.API
}

// JSON returns a codec producing standard-library compatible JSON.
func JSON[E any]() Codec[E] {
	return jsonCodec[E]{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

func (c jsonCodec[E]) Encode(v E) ([]byte, error) {
	b, err := c.api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return b, nil
}

func (c jsonCodec[E]) Decode(data []byte) (E, error) {
	var v E
	if err := c.api.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}

type protoCodec[M proto.Message] struct {
	newFn func() M
}

// Proto returns a codec for protobuf messages. newFn allocates an empty
// message to decode into.
func Proto[M proto.Message](newFn func() M) Codec[M] {
	return protoCodec[M]{newFn: newFn}
}

func (c protoCodec[M]) Encode(v M) ([]byte, error) {
	b, err := proto.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("proto encode: %w", err)
	}
	return b, nil
}

func (c protoCodec[M]) Decode(data []byte) (M, error) {
	m := c.newFn()
	if err := proto.Unmarshal(data, m); err != nil {
		var zero M
		return zero, fmt.Errorf("proto decode: %w", err)
	}
	return m, nil
}
