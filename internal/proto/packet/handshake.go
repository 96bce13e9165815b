// Package packet defines the typed Minecraft protocol packets lazytran
// needs to understand: the handshake, status and login packets required
// to impersonate a sleeping server (spec.md §4.1-§4.2), plus the
// configuration/play packets the lobby (§4.8) emits.
package packet

import (
	"bytes"
	"errors"

	"go.lazytran.dev/lazytran/internal/codec"
	"go.lazytran.dev/lazytran/internal/errs"
)

// NextState enumerates the handshake's declared intent.
type NextState int32

const (
	NextStateStatus   NextState = 1
	NextStateLogin    NextState = 2
	NextStateTransfer NextState = 3
)

// PacketID values this package encodes or decodes.
const (
	IDHandshake = 0x00

	IDStatusRequest  = 0x00
	IDStatusResponse = 0x00
	IDPing           = 0x01

	IDLoginStart       = 0x00
	IDLoginDisconnect  = 0x00
	IDLoginSuccess     = 0x02
	IDLoginAcknowledged = 0x03

	IDFinishConfiguration        = 0x02
	IDAckFinishConfiguration     = 0x02
	IDRegistryData               = 0x05
	IDFeatureFlags               = 0x0C

	IDLoginPlay           = 0x29
	IDKeepAliveClientbound = 0x24
	IDKeepAliveServerbound = 0x14
	IDSynchronizePlayerPos = 0x3E
	IDSetCenterChunk       = 0x4B
	IDChunkDataAndLight    = 0x25
	IDSystemChat           = 0x6C
	IDDisconnectPlay       = 0x1D
	IDTransfer             = 0x73
)

// Handshake is packet 0x00 in state Handshaking (spec.md §4.1).
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       NextState
}

// DecodeHandshake parses a Handshake from its raw payload.
func DecodeHandshake(payload []byte) (Handshake, error) {
	r := bytes.NewReader(payload)
	var h Handshake

	pv, _, err := codec.ReadVarInt(r)
	if err != nil {
		return h, errs.New(errs.KindMalformed, "DecodeHandshake", err)
	}
	addr, err := codec.ReadString(r)
	if err != nil {
		return h, errs.New(errs.KindMalformed, "DecodeHandshake", err)
	}
	port, err := codec.ReadUint16(r)
	if err != nil {
		return h, errs.New(errs.KindMalformed, "DecodeHandshake", err)
	}
	ns, _, err := codec.ReadVarInt(r)
	if err != nil {
		return h, errs.New(errs.KindMalformed, "DecodeHandshake", err)
	}
	if ns < 1 || ns > 3 {
		return h, errs.New(errs.KindMalformed, "DecodeHandshake", errors.New("next_state out of range"))
	}

	h.ProtocolVersion = pv
	h.ServerAddress = addr
	h.ServerPort = port
	h.NextState = NextState(ns)
	return h, nil
}

// Encode serializes h as a full length-prefixed Handshake frame.
func (h Handshake) Encode() []byte {
	var buf bytes.Buffer
	_ = codec.WriteVarInt(&buf, h.ProtocolVersion)
	_ = codec.WriteString(&buf, h.ServerAddress)
	_ = codec.WriteUint16(&buf, h.ServerPort)
	_ = codec.WriteVarInt(&buf, int32(h.NextState))
	return codec.EncodeToBytes(IDHandshake, buf.Bytes())
}

// WithNextState returns a copy of h with NextState replaced, used by the
// join dispatcher to rewrite a Transfer-intent handshake to Login before
// replaying it into the backend.
func (h Handshake) WithNextState(ns NextState) Handshake {
	h.NextState = ns
	return h
}
