package region

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// ChunksPerAxis is the number of chunks along one side of a region.
	ChunksPerAxis = 32
	ChunksPerFile = ChunksPerAxis * ChunksPerAxis
	SectorSize    = 4096
	HeaderSize    = 2 * SectorSize
)

// Location is one entry of the location table.
type Location struct {
	// Sector is the offset of the payload in 4 KiB sectors.
	Sector uint32
	// Sectors is the payload length in 4 KiB sectors.
	Sectors uint8
}

func (l Location) Empty() bool { return l.Sector == 0 && l.Sectors == 0 }

type Header struct {
	Locations  [ChunksPerFile]Location
	Timestamps [ChunksPerFile]uint32
}

// ReadHeader reads the location and timestamp tables of a region file of the given size.
func ReadHeader(r io.ReaderAt, size int64) (*Header, error) {
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrRegionInvalid, size)
	}
	var buf [HeaderSize]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrRegionInvalid, err)
	}
	h := &Header{}
	for i := 0; i < ChunksPerFile; i++ {
		e := buf[i*4 : i*4+4]
		h.Locations[i] = Location{
			Sector:  uint32(e[0])<<16 | uint32(e[1])<<8 | uint32(e[2]),
			Sectors: e[3],
		}
		h.Timestamps[i] = binary.BigEndian.Uint32(buf[SectorSize+i*4:])
	}
	return h, nil
}

// Index is the table slot of chunk (x, z); negative coordinates wrap.
func Index(x, z int32) int {
	return int(floorMod(x)) + int(floorMod(z))*ChunksPerAxis
}

// Coords returns the chunk coordinates of slot i in region (rx, rz).
func Coords(rx, rz int32, i int) (x, z int32) {
	return rx*ChunksPerAxis + int32(i%ChunksPerAxis), rz*ChunksPerAxis + int32(i/ChunksPerAxis)
}

// RegionCoord is the region containing chunk coordinate c.
func RegionCoord(c int32) int32 { return c >> 5 }

func floorMod(c int32) int32 { return c & (ChunksPerAxis - 1) }
