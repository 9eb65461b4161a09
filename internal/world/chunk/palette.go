package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// ReservedBlockID is never a valid block id; two of them terminate a palette table.
const ReservedBlockID uint16 = 0xFFFF

var sentinel = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

var (
	// ErrParsing is the class of every decode failure below.
	ErrParsing = errors.New("chunk: parsing error")

	ErrTruncated        = fmt.Errorf("%w: stream truncated", ErrParsing)
	ErrPaletteIndex     = fmt.Errorf("%w: palette index out of range", ErrParsing)
	ErrMalformedPalette = fmt.Errorf("%w: malformed palette", ErrParsing)

	ErrReservedBlockID = fmt.Errorf("chunk: block id %#x is reserved", ReservedBlockID)
	ErrVolume          = fmt.Errorf("chunk: block count is not a multiple of %d", SubchunkVolume)
)

// BitsPerEntry is the width of one palette index for a palette of n entries:
// max(4, ceil(log2(n))). Encode and decode must agree on it.
func BitsPerEntry(n int) int {
	if n <= 16 {
		return 4
	}
	return bits.Len(uint(n - 1))
}

// streamLen is the byte length of 4096 indices of width b.
func streamLen(b int) int {
	return SubchunkVolume * b / 8
}

// EncodeSubchunk appends the palette table and packed index stream of one
// 4096-block subchunk to dst.
func EncodeSubchunk(dst []byte, blocks []uint16) ([]byte, error) {
	if len(blocks) != SubchunkVolume {
		return dst, ErrVolume
	}

	lookup := make(map[uint16]uint16, 16)
	palette := make([]uint16, 0, 16)
	var indices [SubchunkVolume]uint16
	for i, id := range blocks {
		if id == ReservedBlockID {
			return dst, ErrReservedBlockID
		}
		idx, ok := lookup[id]
		if !ok {
			idx = uint16(len(palette))
			lookup[id] = idx
			palette = append(palette, id)
		}
		indices[i] = idx
	}

	for _, id := range palette {
		dst = binary.LittleEndian.AppendUint16(dst, id)
	}
	dst = append(dst, sentinel[:]...)

	b := uint(BitsPerEntry(len(palette)))
	var acc uint64
	var n uint
	for _, idx := range indices {
		acc |= uint64(idx) << n
		n += b
		for n >= 8 {
			dst = append(dst, byte(acc))
			acc >>= 8
			n -= 8
		}
	}
	if n > 0 {
		dst = append(dst, byte(acc))
	}
	return dst, nil
}

// DecodeSubchunk reads one subchunk record from src into dst (len 4096) and
// returns the number of bytes consumed.
func DecodeSubchunk(src []byte, dst []uint16) (int, error) {
	if len(dst) != SubchunkVolume {
		return 0, ErrVolume
	}

	palette := make([]uint16, 0, 16)
	off := 0
	for {
		if len(src) < off+2 {
			return 0, ErrTruncated
		}
		id := binary.LittleEndian.Uint16(src[off:])
		if id == ReservedBlockID {
			if len(src) < off+4 {
				return 0, ErrTruncated
			}
			if binary.LittleEndian.Uint16(src[off+2:]) != ReservedBlockID {
				return 0, ErrMalformedPalette
			}
			off += 4
			break
		}
		if len(palette) == SubchunkVolume {
			return 0, ErrMalformedPalette
		}
		palette = append(palette, id)
		off += 2
	}
	if len(palette) == 0 {
		return 0, ErrMalformedPalette
	}

	b := BitsPerEntry(len(palette))
	n := streamLen(b)
	if len(src) < off+n {
		return 0, ErrTruncated
	}
	stream := src[off : off+n]

	for i := range dst {
		p := i * b
		idx := 0
		for j := b - 1; j >= 0; j-- {
			bit := int(stream[(p+j)>>3]>>((p+j)&7)) & 1
			idx = idx<<1 | bit
		}
		if idx >= len(palette) {
			return 0, fmt.Errorf("%w: index %d, palette length %d", ErrPaletteIndex, idx, len(palette))
		}
		dst[i] = palette[idx]
	}
	return off + n, nil
}

// Encode packs blocks subchunk by subchunk. len(blocks) must be a multiple of 4096.
func Encode(blocks []uint16) ([]byte, error) {
	if len(blocks)%SubchunkVolume != 0 {
		return nil, ErrVolume
	}
	out := make([]byte, 0, len(blocks)/SubchunkVolume*(streamLen(4)+8))
	var err error
	for i := 0; i < len(blocks); i += SubchunkVolume {
		out, err = EncodeSubchunk(out, blocks[i:i+SubchunkVolume])
		if err != nil {
			return nil, fmt.Errorf("subchunk %d: %w", i/SubchunkVolume, err)
		}
	}
	return out, nil
}

// Decode fills dst (a multiple of 4096 blocks) from src and returns the bytes consumed.
func Decode(src []byte, dst []uint16) (int, error) {
	if len(dst)%SubchunkVolume != 0 {
		return 0, ErrVolume
	}
	off := 0
	for i := 0; i < len(dst); i += SubchunkVolume {
		n, err := DecodeSubchunk(src[off:], dst[i:i+SubchunkVolume])
		if err != nil {
			return 0, fmt.Errorf("subchunk %d: %w", i/SubchunkVolume, err)
		}
		off += n
	}
	return off, nil
}
