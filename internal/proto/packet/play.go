package packet

import (
	"bytes"
	"encoding/json"
	"math"

	"go.lazytran.dev/lazytran/internal/codec"
)

// EncodeFinishConfiguration builds the server's "Finish Configuration"
// packet (spec.md §4.8 step 3), sent once the lobby's hard-coded registry
// data has been written to the client.
func EncodeFinishConfiguration() []byte {
	return codec.EncodeToBytes(IDFinishConfiguration, nil)
}

// EncodeFeatureFlags advertises the vanilla feature set so the client
// doesn't refuse to continue configuration over an unknown flag.
func EncodeFeatureFlags() []byte {
	var buf bytes.Buffer
	_ = codec.WriteVarInt(&buf, 1)
	_ = codec.WriteString(&buf, "minecraft:vanilla")
	return codec.EncodeToBytes(IDFeatureFlags, buf.Bytes())
}

// LoginPlay carries the subset of the Login (Play) packet's fields the
// lobby needs to place a client into a minimal void dimension
// (spec.md §4.8 step 4).
type LoginPlay struct {
	EntityID         int32
	IsHardcore       bool
	DimensionNames   []string
	Dimension        string
	DimensionName    string
	HashedSeed       int64
	MaxPlayers       int32
	ViewDistance     int32
	SimulationDist   int32
	ReducedDebugInfo bool
	RespawnScreen    bool
	IsDebug          bool
	IsFlat           bool
}

// Encode serializes the Login (Play) packet. Field ordering and presence
// follow the 1.20.5+ protocol shape used by protocol ≥765 clients, which
// is the only range lazytran's lobby supports (spec.md §9 design note).
func (p LoginPlay) Encode() []byte {
	var buf bytes.Buffer
	_ = codec.WriteUint32(&buf, uint32(p.EntityID))
	writeBool(&buf, p.IsHardcore)

	_ = codec.WriteVarInt(&buf, int32(len(p.DimensionNames)))
	for _, d := range p.DimensionNames {
		_ = codec.WriteString(&buf, d)
	}

	_ = codec.WriteVarInt(&buf, 20) // max players (vanilla ignores this field's value)
	_ = codec.WriteVarInt(&buf, p.ViewDistance)
	_ = codec.WriteVarInt(&buf, p.SimulationDist)
	writeBool(&buf, p.ReducedDebugInfo)
	writeBool(&buf, p.RespawnScreen)
	writeBool(&buf, false) // limited crafting

	_ = codec.WriteString(&buf, p.Dimension)
	_ = codec.WriteString(&buf, p.DimensionName)
	_ = codec.WriteUint64(&buf, uint64(p.HashedSeed))
	buf.WriteByte(1) // gamemode: creative, so falling through the void never hurts
	buf.WriteByte(0xFF) // previous gamemode: -1 (none)
	writeBool(&buf, p.IsDebug)
	writeBool(&buf, p.IsFlat)
	writeBool(&buf, false) // has death location
	_ = codec.WriteVarInt(&buf, 0) // portal cooldown
	_ = codec.WriteVarInt(&buf, 0) // sea level
	writeBool(&buf, false)         // enforces secure chat

	return codec.EncodeToBytes(IDLoginPlay, buf.Bytes())
}

// EncodeSynchronizePlayerPosition places the lobby's player at (x,y,z).
func EncodeSynchronizePlayerPosition(x, y, z float64, teleportID int32) []byte {
	var buf bytes.Buffer
	writeDouble(&buf, x)
	writeDouble(&buf, y)
	writeDouble(&buf, z)
	writeFloat(&buf, 0) // yaw
	writeFloat(&buf, 0) // pitch
	buf.WriteByte(0)    // relative-flags: all absolute
	_ = codec.WriteVarInt(&buf, teleportID)
	return codec.EncodeToBytes(IDSynchronizePlayerPos, buf.Bytes())
}

// EncodeSetCenterChunk tells the client which chunk to center loading
// around (spec.md §4.8 step 4).
func EncodeSetCenterChunk(chunkX, chunkZ int32) []byte {
	var buf bytes.Buffer
	_ = codec.WriteVarInt(&buf, chunkX)
	_ = codec.WriteVarInt(&buf, chunkZ)
	return codec.EncodeToBytes(IDSetCenterChunk, buf.Bytes())
}

// EncodeEmptyChunk builds a minimal Chunk Data and Update Light packet
// for the single chunk the lobby keeps the client standing in: an empty
// heightmap and no block sections, light data, or block entities.
func EncodeEmptyChunk(chunkX, chunkZ int32) []byte {
	var buf bytes.Buffer
	_ = codec.WriteVarInt(&buf, chunkX)
	_ = codec.WriteVarInt(&buf, chunkZ)

	// Heightmaps NBT: a single empty TAG_Compound.
	buf.WriteByte(0x0A)
	buf.WriteByte(0x00)

	_ = codec.WriteVarInt(&buf, 0) // data size
	_ = codec.WriteVarInt(&buf, 0) // block entity count
	_ = codec.WriteVarInt(&buf, 0) // sky light mask
	_ = codec.WriteVarInt(&buf, 0) // block light mask
	_ = codec.WriteVarInt(&buf, 0) // empty sky light mask
	_ = codec.WriteVarInt(&buf, 0) // empty block light mask
	_ = codec.WriteVarInt(&buf, 0) // sky light array count
	_ = codec.WriteVarInt(&buf, 0) // block light array count

	return codec.EncodeToBytes(IDChunkDataAndLight, buf.Bytes())
}

// EncodeSystemChat builds a System Chat packet carrying plain text,
// used by the lobby's periodic "Server is starting..." notice.
func EncodeSystemChat(text string, overlay bool) []byte {
	data, _ := json.Marshal(ChatText{Text: text})
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, string(data))
	writeBool(&buf, overlay)
	return codec.EncodeToBytes(IDSystemChat, buf.Bytes())
}

// EncodeKeepAlive builds a clientbound Keep Alive carrying id, which the
// client must echo back on the serverbound Keep Alive.
func EncodeKeepAlive(id int64) []byte {
	var buf bytes.Buffer
	_ = codec.WriteUint64(&buf, uint64(id))
	return codec.EncodeToBytes(IDKeepAliveClientbound, buf.Bytes())
}

// DecodeKeepAlive extracts the echoed ID from a serverbound Keep Alive.
func DecodeKeepAlive(payload []byte) (int64, error) {
	v, err := codec.ReadUint64(bytes.NewReader(payload))
	return int64(v), err
}

// EncodeDisconnectPlay builds a Play-state Disconnect packet, used when
// the lobby's client doesn't support Transfer (spec.md §4.8 step 5).
func EncodeDisconnectPlay(reason string) []byte {
	data, _ := json.Marshal(ChatText{Text: reason})
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, string(data))
	return codec.EncodeToBytes(IDDisconnectPlay, buf.Bytes())
}

// EncodeTransfer builds the Transfer packet (protocol ≥765) that hands
// the client off to the now-ready real server (spec.md §4.8 step 5).
func EncodeTransfer(host string, port int32) []byte {
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, host)
	_ = codec.WriteVarInt(&buf, port)
	return codec.EncodeToBytes(IDTransfer, buf.Bytes())
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeDouble(buf *bytes.Buffer, v float64) {
	_ = codec.WriteUint64(buf, math.Float64bits(v))
}

func writeFloat(buf *bytes.Buffer, v float32) {
	_ = codec.WriteUint32(buf, math.Float32bits(v))
}
