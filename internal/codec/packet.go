package codec

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"go.lazytran.dev/lazytran/internal/errs"
)

// Decode reads one length-prefixed packet from br: a VarInt length, a
// VarInt packet ID, and length-sizeOf(packetID) bytes of payload. It
// returns the packet ID, the payload (sliced from an internal buffer, safe
// until the next Decode call on the same reader), and the total number of
// bytes consumed from the stream.
//
// Decode never consumes bytes it cannot fully account for: if br doesn't
// yet have a full packet buffered, it returns errs.Incomplete and the
// caller is expected to read more into br and retry. This relies on
// bufio.Reader.Peek-style behaviour, so Decode always operates on a
// *bufio.Reader.
func Decode(br *bufio.Reader) (packetID int32, payload []byte, consumed int, err error) {
	length, lengthLen, err := peekVarInt(br)
	if err != nil {
		return 0, nil, 0, err
	}
	if length < 0 || int(length) > MaxPacketLen {
		// Still consume the length VarInt so the stream can't wedge on a
		// poisoned frame; the caller closes the connection on Malformed.
		_, _ = br.Discard(lengthLen)
		return 0, nil, lengthLen, errs.New(errs.KindMalformed, "Decode", errors.New("packet length out of range"))
	}

	total := lengthLen + int(length)
	if br.Buffered() < total {
		// Not enough data buffered yet; don't consume anything.
		return 0, nil, 0, errs.Incomplete
	}

	if _, err := br.Discard(lengthLen); err != nil {
		return 0, nil, 0, err
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(br, frame); err != nil {
		return 0, nil, 0, err
	}

	fr := bytes.NewReader(frame)
	id, idLen, err := ReadVarInt(fr)
	if err != nil {
		return 0, nil, total, errs.New(errs.KindMalformed, "Decode", err)
	}
	return id, frame[idLen:], total, nil
}

// peekVarInt reads a VarInt using only Peek, so on Incomplete the reader's
// position is left untouched.
func peekVarInt(br *bufio.Reader) (int32, int, error) {
	for n := 1; n <= MaxVarIntLen; n++ {
		buf, err := br.Peek(n)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
				return 0, 0, errs.Incomplete
			}
			return 0, 0, err
		}
		if buf[n-1]&0x80 == 0 {
			v, consumed, err := ReadVarInt(bytes.NewReader(buf))
			return v, consumed, err
		}
	}
	return 0, 0, errs.New(errs.KindMalformed, "peekVarInt", errors.New("varint is more than 5 bytes"))
}

// Encode writes a length-prefixed frame containing packetID followed by
// payload to w: VarInt(len(payload)+varIntSize(packetID)), VarInt(packetID),
// payload.
func Encode(w io.Writer, packetID int32, payload []byte) error {
	idSize := VarIntSize(packetID)
	length := int32(idSize + len(payload))
	if err := WriteVarInt(w, length); err != nil {
		return err
	}
	if err := WriteVarInt(w, packetID); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// EncodeToBytes is a convenience wrapper around Encode that returns the
// full frame as a byte slice, used when a caller needs to buffer a packet
// for later replay (e.g. the join dispatcher's pre-splice replay buffer).
func EncodeToBytes(packetID int32, payload []byte) []byte {
	var buf bytes.Buffer
	_ = Encode(&buf, packetID, payload)
	return buf.Bytes()
}
