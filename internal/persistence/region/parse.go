package region

import (
	"errors"
	"fmt"

	"github.com/Tnze/go-mc/nbt"

	"voxelvault.ai/internal/world/blockreg"
	"voxelvault.ai/internal/world/chunk"
)

type chunkNBT struct {
	DataVersion int32         `nbt:"DataVersion"`
	XPos        int32         `nbt:"xPos"`
	ZPos        int32         `nbt:"zPos"`
	Status      string        `nbt:"Status"`
	Sections    []sectionNBT  `nbt:"sections"`
	Heightmaps  heightmapsNBT `nbt:"Heightmaps"`
}

type sectionNBT struct {
	Y           int8           `nbt:"Y"`
	BlockStates blockStatesNBT `nbt:"block_states"`
}

type blockStatesNBT struct {
	Palette []paletteEntryNBT `nbt:"palette"`
	Data    []int64           `nbt:"data"`
}

type paletteEntryNBT struct {
	Name string `nbt:"Name"`
}

type heightmapsNBT struct {
	MotionBlocking []int64 `nbt:"MOTION_BLOCKING"`
	WorldSurface   []int64 `nbt:"WORLD_SURFACE"`
}

var (
	errEmptyPalette = errors.New("section palette is empty")
	errShortData    = errors.New("section data too short for palette")
	errDataIndex    = errors.New("section data index out of palette range")
)

func isFull(status string) bool {
	return status == "full" || status == "minecraft:full"
}

// parseChunk decodes an uncompressed chunk compound into a column at (x, z).
func parseChunk(raw []byte, x, z int32, blocks blockreg.Resolver) (*chunk.Data, error) {
	var n chunkNBT
	if err := nbt.Unmarshal(raw, &n); err != nil {
		return nil, &ParsingError{X: x, Z: z, Err: err}
	}
	if !isFull(n.Status) {
		return nil, fmt.Errorf("%w: chunk %d,%d has status %q", ErrChunkNotGenerated, x, z, n.Status)
	}

	d := chunk.New(x, z)
	if len(n.Heightmaps.MotionBlocking) > 0 {
		d.Heightmaps.MotionBlocking = n.Heightmaps.MotionBlocking
	}
	if len(n.Heightmaps.WorldSurface) > 0 {
		d.Heightmaps.WorldSurface = n.Heightmaps.WorldSurface
	}

	const bottom = chunk.LowestY / 16
	for _, s := range n.Sections {
		i := int(s.Y) - bottom
		if i < 0 || i >= chunk.Subchunks {
			continue
		}
		// Lighting-only sections have no block states.
		if len(s.BlockStates.Palette) == 0 && len(s.BlockStates.Data) == 0 {
			continue
		}
		palette := make([]uint16, len(s.BlockStates.Palette))
		for j, e := range s.BlockStates.Palette {
			id, ok := blocks.StateID(e.Name)
			if !ok {
				id = blockreg.Air
			}
			palette[j] = id
		}
		if err := fillSection(d.Subchunk(i), palette, s.BlockStates.Data); err != nil {
			return nil, &ParsingError{X: x, Z: z, Err: fmt.Errorf("section y=%d: %w", s.Y, err)}
		}
	}
	return d, nil
}

// fillSection unpacks indices that do not span longs: 64/b per long, low bits first.
func fillSection(dst []uint16, palette []uint16, data []int64) error {
	if len(palette) == 0 {
		return errEmptyPalette
	}
	if len(data) == 0 {
		for i := range dst {
			dst[i] = palette[0]
		}
		return nil
	}

	b := chunk.BitsPerEntry(len(palette))
	perLong := 64 / b
	if need := (len(dst) + perLong - 1) / perLong; len(data) < need {
		return fmt.Errorf("%w: %d longs, need %d", errShortData, len(data), need)
	}
	mask := uint64(1)<<uint(b) - 1
	for i := range dst {
		v := uint64(data[i/perLong]) >> (uint(i%perLong) * uint(b)) & mask
		if v >= uint64(len(palette)) {
			return fmt.Errorf("%w: %d >= %d", errDataIndex, v, len(palette))
		}
		dst[i] = palette[v]
	}
	return nil
}
