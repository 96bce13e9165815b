// Package rcon implements a minimal Source-RCON client sufficient for
// authenticating against a Minecraft server and issuing commands
// (spec.md §4.3), grounded on the request/response packet shape used by
// jltobler/go-rcon.
package rcon

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Kind enumerates the RCON packet types.
type Kind int32

const (
	KindResponse    Kind = 0
	KindCommand     Kind = 2
	KindAuth        Kind = 3
	KindTermination Kind = 5 // unassigned type; the server echoes back "Unknown request 5"
)

// terminalResponse is the payload the termination packet provokes, used
// to know when a fragmented multi-packet response has finished arriving.
const terminalResponse = "Unknown request 5"

// Packet is the little-endian RCON frame: length, request id, type, a
// null-terminated ASCII body, and a trailing null pad (spec.md §4.3).
type Packet struct {
	ID      int32
	Kind    Kind
	Payload string
}

// Marshal encodes p into the wire frame: i32 length (excluding itself),
// i32 id, i32 type, body, two trailing NUL bytes.
func Marshal(p Packet) ([]byte, error) {
	for i := 0; i < len(p.Payload); i++ {
		if p.Payload[i] > 0x7f {
			return nil, errors.New("rcon: payload must be ASCII")
		}
	}

	body := []byte(p.Payload)
	length := uint32(4 + 4 + len(body) + 2) // id + type + body + 2 NUL

	var buf bytes.Buffer
	var b4 [4]byte

	binary.LittleEndian.PutUint32(b4[:], length)
	buf.Write(b4[:])
	binary.LittleEndian.PutUint32(b4[:], uint32(p.ID))
	buf.Write(b4[:])
	binary.LittleEndian.PutUint32(b4[:], uint32(p.Kind))
	buf.Write(b4[:])
	buf.Write(body)
	buf.Write([]byte{0, 0})

	return buf.Bytes(), nil
}

// Unmarshal decodes a complete RCON frame (length prefix included).
func Unmarshal(data []byte) (Packet, error) {
	if len(data) < 14 {
		return Packet{}, errors.New("rcon: packet too short")
	}
	if data[len(data)-1] != 0 || data[len(data)-2] != 0 {
		return Packet{}, errors.New("rcon: missing terminating NUL bytes")
	}

	length := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)) != length+4 {
		return Packet{}, errors.New("rcon: length mismatch")
	}

	id := int32(binary.LittleEndian.Uint32(data[4:8]))
	kind := Kind(binary.LittleEndian.Uint32(data[8:12]))
	payload := string(data[12 : len(data)-2])

	return Packet{ID: id, Kind: kind, Payload: payload}, nil
}
