// Package region reads chunks from legacy anvil region files (.mca).
// It is read-only: it exists to import existing worlds into a chunk store.
package region

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/blockreg"
	"voxelvault.ai/internal/world/chunk"
)

// ChunkPos is an absolute chunk coordinate pair.
type ChunkPos struct{ X, Z int32 }

type Reader struct {
	folder Folder
	blocks blockreg.Resolver
	closed atomic.Bool
}

var _ storage.Storage = (*Reader)(nil)

// NewReader reads the world saved under root. A nil resolver means blockreg.Default().
func NewReader(root string, blocks blockreg.Resolver) *Reader {
	if blocks == nil {
		blocks = blockreg.Default()
	}
	return &Reader{folder: Folder{Root: root}, blocks: blocks}
}

func (r *Reader) Folder() Folder { return r.folder }

// ReadChunk decodes chunk (x, z) of dimension.
func (r *Reader) ReadChunk(x, z int32, dimension string) (*chunk.Data, error) {
	raw, err := r.payload(x, z, dimension)
	if err != nil {
		return nil, err
	}
	return parseChunk(raw, x, z, r.blocks)
}

// payload returns the decompressed NBT of chunk (x, z).
func (r *Reader) payload(x, z int32, dimension string) ([]byte, error) {
	path := r.folder.File(dimension, x, z)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	h, err := ReadHeader(f, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	loc := h.Locations[Index(x, z)]
	if loc.Empty() {
		return nil, fmt.Errorf("%w: %d,%d in %s", ErrChunkNotExist, x, z, path)
	}
	off := int64(loc.Sector) * SectorSize
	run := int64(loc.Sectors) * SectorSize
	if loc.Sector < 2 || off+5 > size {
		return nil, fmt.Errorf("%w: chunk %d,%d points at sector %d of a %d byte file", ErrRegionInvalid, x, z, loc.Sector, size)
	}

	var hdr [5]byte
	if _, err := f.ReadAt(hdr[:], off); err != nil {
		return nil, fmt.Errorf("%w: read chunk header: %v", ErrRegionInvalid, err)
	}
	length := int64(binary.BigEndian.Uint32(hdr[:4]))
	tag := hdr[4]

	// The length counts the tag byte.
	if length < 1 {
		return nil, fmt.Errorf("%w: chunk %d,%d has length %d", ErrRegionInvalid, x, z, length)
	}

	var data []byte
	if tag&externalFlag != 0 {
		comp, err := parseCompression(tag &^ externalFlag)
		if err != nil {
			return nil, err
		}
		ext := r.folder.ExternalFile(dimension, x, z)
		data, err = os.ReadFile(ext)
		if err != nil {
			return nil, fmt.Errorf("%w: external chunk file: %v", ErrRegionInvalid, err)
		}
		return comp.decompress(data)
	}

	comp, err := parseCompression(tag)
	if err != nil {
		return nil, err
	}
	if 4+length > run || off+4+length > size {
		return nil, fmt.Errorf("%w: chunk %d,%d length %d overruns its sectors", ErrRegionInvalid, x, z, length)
	}
	data = make([]byte, length-1)
	if _, err := f.ReadAt(data, off+5); err != nil {
		return nil, fmt.Errorf("%w: read chunk payload: %v", ErrRegionInvalid, err)
	}
	return comp.decompress(data)
}

// Chunks lists the chunks present in region (rx, rz), in table order.
func (r *Reader) Chunks(rx, rz int32, dimension string) ([]ChunkPos, error) {
	path := r.folder.RegionFile(dimension, rx, rz)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	h, err := ReadHeader(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var out []ChunkPos
	for i, loc := range h.Locations {
		if loc.Empty() {
			continue
		}
		x, z := Coords(rx, rz, i)
		out = append(out, ChunkPos{X: x, Z: z})
	}
	return out, nil
}

// Regions lists the region files present for dimension.
func (r *Reader) Regions(dimension string) ([]RegionPos, error) {
	return r.folder.Regions(dimension)
}

// GetChunk reports chunks absent from the folder as (nil, false, nil).
func (r *Reader) GetChunk(ctx context.Context, x, z int32, dimension string) (*chunk.Data, bool, error) {
	if r.closed.Load() {
		return nil, false, storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	d, err := r.ReadChunk(x, z, dimension)
	if IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (r *Reader) InsertChunk(context.Context, int32, int32, string, *chunk.Data) error {
	return storage.ErrReadOnly
}

func (r *Reader) Close() error {
	r.closed.Store(true)
	return nil
}
