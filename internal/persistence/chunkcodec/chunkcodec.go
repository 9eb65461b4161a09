// Package chunkcodec is the value format shared by the chunk stores: a versioned
// header followed by the palette-packed block data, wrapped in a zstd frame.
package chunkcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"voxelvault.ai/internal/world/chunk"
)

const Version byte = 1

// maxDecoded bounds a decompressed value: header plus every subchunk at 12 bits per entry
// with a full palette.
const maxDecoded = 64 + 2*chunk.HeightmapLongs*8*4 + chunk.Subchunks*(2*chunk.SubchunkVolume+4+chunk.SubchunkVolume*12/8)

var (
	ErrVersion = errors.New("chunkcodec: unsupported value version")
	ErrCorrupt = errors.New("chunkcodec: corrupt value")
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(4*maxDecoded))
	if err != nil {
		panic(err)
	}
}

// Marshal serializes d. It never retains d.
func Marshal(d *chunk.Data) ([]byte, error) {
	if len(d.Heightmaps.MotionBlocking) >= nilLongs || len(d.Heightmaps.WorldSurface) >= nilLongs {
		return nil, fmt.Errorf("chunkcodec: heightmap too long")
	}

	raw := make([]byte, 0, 1024)
	raw = append(raw, Version)
	raw = binary.LittleEndian.AppendUint32(raw, uint32(d.X))
	raw = binary.LittleEndian.AppendUint32(raw, uint32(d.Z))
	raw = appendLongs(raw, d.Heightmaps.MotionBlocking)
	raw = appendLongs(raw, d.Heightmaps.WorldSurface)
	raw = binary.LittleEndian.AppendUint16(raw, chunk.Subchunks)

	blocks, err := chunk.Encode(d.Blocks[:])
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: %w", err)
	}
	raw = append(raw, blocks...)
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Unmarshal decodes a value produced by Marshal into a fresh chunk.
func Unmarshal(b []byte) (*chunk.Data, error) {
	raw, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: zstd: %w", err)
	}
	if len(raw) < 1 {
		return nil, ErrCorrupt
	}
	if raw[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, raw[0])
	}
	r := reader{buf: raw, off: 1}

	d := &chunk.Data{}
	d.X = int32(r.u32())
	d.Z = int32(r.u32())
	d.Heightmaps.MotionBlocking = r.longs()
	d.Heightmaps.WorldSurface = r.longs()
	count := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	if count != chunk.Subchunks {
		return nil, fmt.Errorf("%w: %d subchunks, want %d", ErrCorrupt, count, chunk.Subchunks)
	}

	n, err := chunk.Decode(raw[r.off:], d.Blocks[:])
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: %w", err)
	}
	if r.off+n != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(raw)-r.off-n)
	}
	return d, nil
}

// nilLongs is the length prefix of a nil heightmap, so nil and empty decode apart.
const nilLongs = math.MaxUint16

func appendLongs(dst []byte, v []int64) []byte {
	if v == nil {
		return binary.LittleEndian.AppendUint16(dst, nilLongs)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(v)))
	for _, x := range v {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(x))
	}
	return dst
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: header truncated", ErrCorrupt)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) longs() []int64 {
	n := int(r.u16())
	if r.err != nil || n == nilLongs {
		return nil
	}
	b := r.take(8 * n)
	if b == nil {
		return nil
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out
}
