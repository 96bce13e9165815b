// Package codec implements the Minecraft Java Edition wire format: VarInt
// framing, typed field encoding, and packet length-prefixing. The codec is
// pure — it never touches a socket, only byte slices and io.Reader/Writer
// — so it can be fuzzed and round-trip tested in isolation.
package codec

import (
	"encoding/binary"
	"errors"
	"io"

	"go.lazytran.dev/lazytran/internal/errs"
)

// MaxVarIntLen is the maximum number of bytes a protocol VarInt may occupy.
const MaxVarIntLen = 5

// MaxPacketLen is the maximum permitted decoded packet length, per
// spec.md §4.1: decoding must fail with Malformed above this size.
const MaxPacketLen = 2 * 1024 * 1024

var (
	// errVarIntTooBig is returned when a VarInt exceeds MaxVarIntLen bytes.
	errVarIntTooBig = errors.New("codec: varint is more than 5 bytes")
)

// ReadVarInt decodes a base-128 little-endian VarInt from r, returning the
// decoded value and the number of bytes consumed. It returns
// errs.Incomplete (never consuming any caller-visible state) if r runs out
// of bytes before a terminating byte is seen.
func ReadVarInt(r io.ByteReader) (int32, int, error) {
	var result int32
	var n int
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, 0, errs.Incomplete
			}
			return 0, 0, err
		}
		n++
		result |= int32(b&0x7F) << (7 * (n - 1))
		if n > MaxVarIntLen {
			return 0, 0, errs.New(errs.KindMalformed, "ReadVarInt", errVarIntTooBig)
		}
		if b&0x80 == 0 {
			return result, n, nil
		}
	}
}

// WriteVarInt encodes v as a base-128 little-endian VarInt to w.
func WriteVarInt(w io.Writer, v int32) error {
	var buf [MaxVarIntLen]byte
	n := PutVarInt(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// PutVarInt encodes v into buf (which must have capacity MaxVarIntLen)
// and returns the number of bytes written. It never allocates.
func PutVarInt(buf []byte, v int32) int {
	uv := uint32(v)
	n := 0
	for {
		b := byte(uv & 0x7F)
		uv >>= 7
		if uv != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if uv == 0 {
			return n
		}
	}
}

// VarIntSize returns the number of bytes WriteVarInt would emit for v.
func VarIntSize(v int32) int {
	var buf [MaxVarIntLen]byte
	return PutVarInt(buf[:], v)
}

// ReadString reads a VarInt-prefixed UTF-8 string, rejecting lengths above
// the protocol's 32767 character ceiling (spec.md §4.1).
func ReadString(r io.Reader) (string, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	n, _, err := ReadVarInt(br)
	if err != nil {
		return "", err
	}
	if n < 0 || n > 32767*4 { // UTF-8 worst case 4 bytes/char
		return "", errs.New(errs.KindMalformed, "ReadString", errors.New("string length out of range"))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return "", errs.Incomplete
		}
		return "", err
	}
	return string(buf), nil
}

// WriteString writes s as a VarInt-prefixed UTF-8 string.
func WriteString(w io.Writer, s string) error {
	b := []byte(s)
	if err := WriteVarInt(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadUint16 reads a big-endian u16 (used for the handshake server port).
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, errs.Incomplete
		}
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// WriteUint16 writes a big-endian u16.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a big-endian u32 (entity IDs, packed floats).
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, errs.Incomplete
		}
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes a big-endian u32.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads a big-endian u64 (ping payloads, keep-alive IDs).
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, errs.Incomplete
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes a big-endian u64.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUUID reads a 128-bit UUID as two big-endian u64 halves, the wire
// encoding Minecraft uses for Login Success and player UUIDs.
func ReadUUID(r io.Reader) ([16]byte, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return buf, errs.Incomplete
		}
		return buf, err
	}
	return buf, nil
}

// WriteUUID writes a 128-bit UUID verbatim.
func WriteUUID(w io.Writer, u [16]byte) error {
	_, err := w.Write(u[:])
	return err
}

// byteReader adapts an io.Reader without ReadByte to io.ByteReader, used
// only when a caller hands us a raw io.Reader instead of a *bufio.Reader.
type byteReader struct {
	r   io.Reader
	one [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	_, err := io.ReadFull(b.r, b.one[:])
	return b.one[0], err
}
