package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 2, 127, 128, 255, 2097151, 2147483647, -1}
	for _, v := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, v))
		got, n, err := ReadVarInt(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, buf.Len(), n)
		require.Equal(t, v, got)
	}
}

func TestVarIntKnownEncodings(t *testing.T) {
	// Known byte sequences from the Minecraft protocol documentation.
	cases := map[int32][]byte{
		0:          {0x00},
		1:          {0x01},
		127:        {0x7f},
		128:        {0x80, 0x01},
		255:        {0xff, 0x01},
		2147483647: {0xff, 0xff, 0xff, 0xff, 0x07},
		-1:         {0xff, 0xff, 0xff, 0xff, 0x0f},
	}
	for v, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, v))
		require.Equal(t, want, buf.Bytes(), "encoding of %d", v)
	}
}

func TestReadVarIntTooBig(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	_, _, err := ReadVarInt(bytes.NewReader(data))
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "hello, é"))
	got, err := ReadString(&buf)
	require.NoError(t, err)
	require.Equal(t, "hello, é", got)
}

func TestStringTooLong(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVarInt(&buf, 32767*4+1))
	_, err := ReadString(&buf)
	require.Error(t, err)
}

func TestUintRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUint16(&buf, 25565))
	v, err := ReadUint16(&buf)
	require.NoError(t, err)
	require.Equal(t, uint16(25565), v)

	buf.Reset()
	require.NoError(t, WriteUint64(&buf, 0xdeadbeefcafef00d))
	u, err := ReadUint64(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafef00d), u)
}

func TestUUIDRoundTrip(t *testing.T) {
	var id [16]byte
	for i := range id {
		id[i] = byte(i)
	}
	var buf bytes.Buffer
	require.NoError(t, WriteUUID(&buf, id))
	got, err := ReadUUID(&buf)
	require.NoError(t, err)
	require.Equal(t, id, got)
}
