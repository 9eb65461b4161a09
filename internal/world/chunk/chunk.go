package chunk

const (
	// WorldHeight is the number of block layers in a column.
	WorldHeight = 384
	// LowestY is the absolute y of the bottom layer.
	LowestY = -64

	Width          = 16
	Area           = Width * Width
	SubchunkVolume = Area * 16
	Volume         = Area * WorldHeight
	Subchunks      = Volume / SubchunkVolume

	// HeightmapLongs is the length of a packed heightmap for an empty column.
	HeightmapLongs = 37
)

// Heightmaps carries the packed height data that travels with a column.
type Heightmaps struct {
	MotionBlocking []int64
	WorldSurface   []int64
}

// DefaultHeightmaps returns the heightmaps of a completely empty column.
func DefaultHeightmaps() Heightmaps {
	return Heightmaps{
		MotionBlocking: make([]int64, HeightmapLongs),
		WorldSurface:   make([]int64, HeightmapLongs),
	}
}

// Data is one 16x16xWorldHeight column of block state ids.
// Blocks are ordered y, z, x with y the most significant.
type Data struct {
	X, Z       int32
	Blocks     [Volume]uint16
	Heightmaps Heightmaps
}

// New returns an all-air column at (x, z).
func New(x, z int32) *Data {
	return &Data{X: x, Z: z, Heightmaps: DefaultHeightmaps()}
}

// Index returns the offset of the block at chunk-relative (x, y, z),
// where y is absolute (0 .. WorldHeight-1).
func Index(x, y, z int) int {
	return y*Area + z*Width + x
}

func (d *Data) Block(x, y, z int) uint16 {
	return d.Blocks[Index(x, y, z)]
}

// SetBlock stores id at (x, y, z) and returns the previous id. Heightmaps are not updated.
func (d *Data) SetBlock(x, y, z int, id uint16) uint16 {
	i := Index(x, y, z)
	old := d.Blocks[i]
	d.Blocks[i] = id
	return old
}

// Subchunk returns the 4096 blocks of subchunk i (0 is the bottom).
func (d *Data) Subchunk(i int) []uint16 {
	return d.Blocks[i*SubchunkVolume : (i+1)*SubchunkVolume]
}
