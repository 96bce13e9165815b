package codec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"go.lazytran.dev/lazytran/internal/errs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello world")
	frame := EncodeToBytes(0x02, payload)

	br := bufio.NewReader(bytes.NewReader(frame))
	id, got, n, err := Decode(br)
	require.NoError(t, err)
	require.Equal(t, int32(0x02), id)
	require.Equal(t, payload, got)
	require.Equal(t, len(frame), n)
}

func TestDecodeIncompleteDoesNotConsume(t *testing.T) {
	payload := []byte("a longer payload than the short read below")
	frame := EncodeToBytes(0x00, payload)

	// Only the first few bytes are available; Decode must report
	// Incomplete without discarding anything so a later retry with the
	// full stream still succeeds.
	br := bufio.NewReader(bytes.NewReader(frame[:3]))
	_, _, _, err := Decode(br)
	require.ErrorIs(t, err, errs.Incomplete)
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVarInt(&buf, MaxPacketLen+1))
	buf.Write(make([]byte, 16)) // some trailing garbage

	br := bufio.NewReaderSize(bytes.NewReader(buf.Bytes()), buf.Len())
	_, _, _, err := Decode(br)
	require.True(t, errs.Is(err, errs.KindMalformed))
}

func TestDecodeMultiplePacketsSequentially(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(EncodeToBytes(0x00, []byte("first")))
	stream.Write(EncodeToBytes(0x01, []byte("second")))

	br := bufio.NewReader(&stream)

	id, payload, _, err := Decode(br)
	require.NoError(t, err)
	require.Equal(t, int32(0x00), id)
	require.Equal(t, []byte("first"), payload)

	id, payload, _, err = Decode(br)
	require.NoError(t, err)
	require.Equal(t, int32(0x01), id)
	require.Equal(t, []byte("second"), payload)
}
