package packet

import (
	"bytes"
	"encoding/binary"
	"math"
)

// nbtWriter is a minimal named-binary-tag encoder covering only the tag
// types lazytran's hard-coded dimension-type and biome registry entries
// need (spec.md §4.8 step 3: "hard-coded minimal dimension type + biome
// registry"). It intentionally does not attempt to be a general-purpose
// NBT library — the lobby never reads NBT, only ever writes these two
// fixed shapes.
type nbtWriter struct {
	buf bytes.Buffer
}

const (
	nbtEnd       = 0x00
	nbtByte      = 0x01
	nbtShort     = 0x02
	nbtInt       = 0x03
	nbtLong      = 0x04
	nbtFloat     = 0x05
	nbtDouble    = 0x06
	nbtString    = 0x08
	nbtCompound  = 0x0A
)

func (w *nbtWriter) name(n string) {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(n)))
	w.buf.Write(lb[:])
	w.buf.WriteString(n)
}

// compoundStart writes the root TAG_Compound header with an empty name,
// the shape Minecraft uses for network NBT (root names are omitted).
func (w *nbtWriter) compoundStart() {
	w.buf.WriteByte(nbtCompound)
	w.name("")
}

func (w *nbtWriter) end() { w.buf.WriteByte(nbtEnd) }

func (w *nbtWriter) byteField(n string, v int8) {
	w.buf.WriteByte(nbtByte)
	w.name(n)
	w.buf.WriteByte(byte(v))
}

func (w *nbtWriter) boolField(n string, v bool) {
	var b int8
	if v {
		b = 1
	}
	w.byteField(n, b)
}

func (w *nbtWriter) intField(n string, v int32) {
	w.buf.WriteByte(nbtInt)
	w.name(n)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *nbtWriter) longField(n string, v int64) {
	w.buf.WriteByte(nbtLong)
	w.name(n)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *nbtWriter) floatField(n string, v float32) {
	w.buf.WriteByte(nbtFloat)
	w.name(n)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

func (w *nbtWriter) doubleField(n string, v float64) {
	w.buf.WriteByte(nbtDouble)
	w.name(n)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

func (w *nbtWriter) stringField(n, v string) {
	w.buf.WriteByte(nbtString)
	w.name(n)
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(v)))
	w.buf.Write(lb[:])
	w.buf.WriteString(v)
}
