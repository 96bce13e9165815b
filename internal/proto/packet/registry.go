package packet

import (
	"bytes"

	"go.lazytran.dev/lazytran/internal/codec"
)

// voidDimensionType is the hard-coded dimension-type NBT the lobby
// advertises for its fake world: no ambient light, no raids, a single
// void world with a generous height range so the player never falls out
// of the loaded area (spec.md §4.8 step 3).
func voidDimensionTypeNBT() []byte {
	w := &nbtWriter{}
	w.compoundStart()
	w.boolField("piglin_safe", false)
	w.boolField("has_raids", false)
	w.boolField("natural", false)
	w.floatField("ambient_light", 0)
	w.stringField("infiniburn", "#minecraft:infiniburn_overworld")
	w.boolField("respawn_anchor_works", false)
	w.boolField("has_skylight", true)
	w.boolField("bed_works", false)
	w.stringField("effects", "minecraft:overworld")
	w.boolField("fixed_time", true)
	w.longField("fixed_time_value", 6000)
	w.intField("min_y", 0)
	w.intField("height", 256)
	w.intField("logical_height", 256)
	w.doubleField("coordinate_scale", 1.0)
	w.boolField("ultrawarm", false)
	w.boolField("has_ceiling", false)
	w.end()
	return w.buf.Bytes()
}

// plainsBiomeNBT is the single hard-coded biome entry (spec.md §4.8 step
// 3); its exact climate values are irrelevant since the lobby never
// spawns weather or mobs.
func plainsBiomeNBT() []byte {
	w := &nbtWriter{}
	w.compoundStart()
	w.boolField("has_precipitation", false)
	w.floatField("temperature", 0.8)
	w.floatField("downfall", 0.4)
	w.end()
	return w.buf.Bytes()
}

// registryEntry is one (id, nbt) pair in a Registry Data packet.
type registryEntry struct {
	id  string
	nbt []byte
}

// EncodeRegistryData builds a Registry Data packet (1.20.5+ configuration
// phase) declaring a single registry and its entries.
func EncodeRegistryData(registryID string, entries []registryEntry) []byte {
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, registryID)
	_ = codec.WriteVarInt(&buf, int32(len(entries)))
	for _, e := range entries {
		_ = codec.WriteString(&buf, e.id)
		writeBool(&buf, true) // has data
		buf.Write(e.nbt)
	}
	return codec.EncodeToBytes(IDRegistryData, buf.Bytes())
}

// LobbyRegistries returns the Registry Data packets the lobby sends during
// the configuration phase (spec.md §4.8 step 3): a minimal dimension_type
// registry and a minimal worldgen/biome registry, each with exactly the
// one entry the lobby's fake world uses.
func LobbyRegistries() [][]byte {
	return [][]byte{
		EncodeRegistryData("minecraft:dimension_type", []registryEntry{
			{id: "minecraft:overworld", nbt: voidDimensionTypeNBT()},
		}),
		EncodeRegistryData("minecraft:worldgen/biome", []registryEntry{
			{id: "minecraft:plains", nbt: plainsBiomeNBT()},
		}),
	}
}
