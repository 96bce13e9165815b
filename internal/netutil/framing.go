// Package netutil provides a thin framed-connection wrapper shared by the
// Router, Join Dispatcher, Lobby and Status Prober: a bufio.Reader paired
// with codec.Decode, and deadline-aware read/write helpers. It plays the
// same role the teacher's minecraftConn plays in pkg/proxy/connection.go,
// trimmed down to what an unencrypted, uncompressed handshake/status/login
// exchange needs — lazytran never negotiates encryption or compression
// itself (spec.md §1 splices before that point).
package netutil

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"go.lazytran.dev/lazytran/internal/codec"
	"go.lazytran.dev/lazytran/internal/errs"
)

// FrameConn pairs a net.Conn with a buffered reader so codec.Decode's
// "don't consume on Incomplete" contract can be honoured across multiple
// Read syscalls.
type FrameConn struct {
	Conn net.Conn
	br   *bufio.Reader
}

// NewFrameConn wraps c for framed packet I/O.
func NewFrameConn(c net.Conn) *FrameConn {
	return &FrameConn{Conn: c, br: bufio.NewReaderSize(c, 64*1024)}
}

// ReadPacket blocks until one full packet is available or deadline
// elapses, returning its id and payload.
func (f *FrameConn) ReadPacket(deadline time.Duration) (int32, []byte, error) {
	if deadline > 0 {
		_ = f.Conn.SetReadDeadline(time.Now().Add(deadline))
	} else {
		_ = f.Conn.SetReadDeadline(time.Time{})
	}
	defer f.Conn.SetReadDeadline(time.Time{})

	for {
		id, payload, _, err := codec.Decode(f.br)
		if errors.Is(err, errs.Incomplete) {
			// Decode didn't consume anything; force at least one more
			// byte into the buffer before retrying so we don't spin.
			if _, err := f.br.Peek(f.br.Buffered() + 1); err != nil {
				return 0, nil, err
			}
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		return id, payload, nil
	}
}

// WritePacket writes packetID+payload as a single length-prefixed frame.
func (f *FrameConn) WritePacket(deadline time.Duration, packetID int32, payload []byte) error {
	if deadline > 0 {
		_ = f.Conn.SetWriteDeadline(time.Now().Add(deadline))
	} else {
		_ = f.Conn.SetWriteDeadline(time.Time{})
	}
	defer f.Conn.SetWriteDeadline(time.Time{})
	return codec.Encode(f.Conn, packetID, payload)
}

// WriteRaw writes an already-framed packet (e.g. one built by the packet
// package's Encode helpers) verbatim.
func (f *FrameConn) WriteRaw(deadline time.Duration, frame []byte) error {
	if deadline > 0 {
		_ = f.Conn.SetWriteDeadline(time.Now().Add(deadline))
	} else {
		_ = f.Conn.SetWriteDeadline(time.Time{})
	}
	defer f.Conn.SetWriteDeadline(time.Time{})
	_, err := f.Conn.Write(frame)
	return err
}

// Buffered reports how many unread bytes remain in the internal buffer
// beyond what's been Decode'd — bytes already pulled off the socket that
// a subsequent raw splice (which reads the net.Conn directly, bypassing
// this buffer) would otherwise silently drop.
func (f *FrameConn) Buffered() int { return f.br.Buffered() }

// DrainBuffered returns and discards any bytes sitting in the internal
// buffer beyond the last decoded packet. Any byte a client sent past the
// buffered Handshake+Login Start still belongs to the post-splice stream
// (spec.md §9 design note: "the proxy must not consume bytes past the
// LoginStart packet before splicing... any byte beyond those packets
// belongs to the post-splice stream") and must be forwarded to the
// backend before raw copying begins, not dropped.
func (f *FrameConn) DrainBuffered() ([]byte, error) {
	n := f.br.Buffered()
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the underlying connection.
func (f *FrameConn) Close() error { return f.Conn.Close() }
