package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type event struct {
	ID   int
	Name string
	Tags []string
}

func TestDefault_PicksFastPaths(t *testing.T) {
	assert.IsType(t, bytesCodec{}, Default[[]byte]())
	assert.IsType(t, stringCodec{}, Default[string]())
	assert.IsType(t, gobCodec[event]{}, Default[event]())
	assert.IsType(t, gobCodec[int64]{}, Default[int64]())
}

func TestString_IsUTF8(t *testing.T) {
	c := String()
	b, err := c.Encode("héllo")
	require.NoError(t, err)
	assert.Equal(t, []byte("héllo"), b)

	s, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)
}

func TestBytes_Passthrough(t *testing.T) {
	c := Bytes()
	in := []byte{0, 1, 2, 255}
	b, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, in, b)
}

func TestStructCodecs(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec[event]
	}{
		{"gob", Gob[event]()},
		{"json", JSON[event]()},
	}

	in := event{ID: 7, Name: "seven", Tags: []string{"a", "b"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.codec.Encode(in)
			require.NoError(t, err)

			out, err := tt.codec.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestStructCodecs_RejectGarbage(t *testing.T) {
	_, err := Gob[event]().Decode([]byte("not gob"))
	assert.Error(t, err)

	_, err = JSON[event]().Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestProto(t *testing.T) {
	c := Proto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })

	b, err := c.Encode(wrapperspb.String("payload"))
	require.NoError(t, err)

	out, err := c.Decode(b)
	require.NoError(t, err)
	assert.True(t, proto.Equal(wrapperspb.String("payload"), out))

	_, err = c.Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
