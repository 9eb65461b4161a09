package chunk

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

// subchunkWithPalette returns 4096 blocks using exactly n distinct ids in shuffled order.
func subchunkWithPalette(t *testing.T, n int, seed int64) []uint16 {
	t.Helper()
	if n < 1 || n > SubchunkVolume {
		t.Fatalf("bad palette size %d", n)
	}
	r := rand.New(rand.NewSource(seed))
	ids := r.Perm(60000)[:n]
	blocks := make([]uint16, SubchunkVolume)
	for i := range blocks {
		blocks[i] = uint16(ids[i%n])
	}
	r.Shuffle(len(blocks), func(i, j int) { blocks[i], blocks[j] = blocks[j], blocks[i] })
	return blocks
}

func paletteLen(t *testing.T, enc []byte) int {
	t.Helper()
	i := bytes.Index(enc, sentinel[:])
	if i < 0 || i%2 != 0 {
		t.Fatalf("sentinel not found at an entry boundary (i=%d)", i)
	}
	return i / 2
}

func TestBitsPerEntry(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 4}, {2, 4}, {15, 4}, {16, 4}, {17, 5}, {32, 5}, {33, 6}, {256, 8}, {257, 9}, {4096, 12},
	}
	for _, c := range cases {
		if got := BitsPerEntry(c.n); got != c.want {
			t.Fatalf("BitsPerEntry(%d)=%d want %d", c.n, got, c.want)
		}
	}
}

func TestSubchunk_RoundTripPaletteSizes(t *testing.T) {
	for _, n := range []int{1, 2, 15, 16, 17, 256, 4096} {
		blocks := subchunkWithPalette(t, n, int64(n))
		enc, err := EncodeSubchunk(nil, blocks)
		if err != nil {
			t.Fatalf("n=%d encode: %v", n, err)
		}
		if got := paletteLen(t, enc); got != n {
			t.Fatalf("n=%d palette length=%d", n, got)
		}
		wantLen := 2*n + 4 + streamLen(BitsPerEntry(n))
		if len(enc) != wantLen {
			t.Fatalf("n=%d encoded length=%d want %d", n, len(enc), wantLen)
		}

		got := make([]uint16, SubchunkVolume)
		used, err := DecodeSubchunk(enc, got)
		if err != nil {
			t.Fatalf("n=%d decode: %v", n, err)
		}
		if used != len(enc) {
			t.Fatalf("n=%d consumed=%d want %d", n, used, len(enc))
		}
		for i := range blocks {
			if got[i] != blocks[i] {
				t.Fatalf("n=%d mismatch at %d: got=%d want=%d", n, i, got[i], blocks[i])
			}
		}
	}
}

func TestSubchunk_BitWidthBoundary(t *testing.T) {
	cases := []struct{ n, bits int }{{15, 4}, {16, 4}, {17, 5}}
	for _, c := range cases {
		enc, err := EncodeSubchunk(nil, subchunkWithPalette(t, c.n, 7))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		stream := len(enc) - (2*c.n + 4)
		if stream*8/SubchunkVolume != c.bits {
			t.Fatalf("palette %d: %d bits per entry, want %d", c.n, stream*8/SubchunkVolume, c.bits)
		}
	}
}

func TestSubchunk_PaletteIsFirstOccurrenceOrder(t *testing.T) {
	blocks := make([]uint16, SubchunkVolume)
	for i := range blocks {
		blocks[i] = 9
	}
	blocks[10] = 3
	blocks[20] = 7
	enc, err := EncodeSubchunk(nil, blocks)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{9, 0, 3, 0, 7, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(enc[:len(want)], want) {
		t.Fatalf("palette table=%v want %v", enc[:len(want)], want)
	}
	// index 1 at position 10 sits in the low nibble of byte 5 of the stream.
	if enc[len(want)+5] != 0x01 {
		t.Fatalf("stream byte 5=%#x want 0x01", enc[len(want)+5])
	}
}

func TestSubchunk_ReservedIDRejected(t *testing.T) {
	blocks := make([]uint16, SubchunkVolume)
	blocks[100] = ReservedBlockID
	if _, err := EncodeSubchunk(nil, blocks); !errors.Is(err, ErrReservedBlockID) {
		t.Fatalf("err=%v want ErrReservedBlockID", err)
	}

	// A lone 0xFFFF entry in a table is not a terminator and not a valid id.
	src := []byte{1, 0, 0xFF, 0xFF, 2, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	src = append(src, make([]byte, streamLen(4))...)
	if _, err := DecodeSubchunk(src, make([]uint16, SubchunkVolume)); !errors.Is(err, ErrMalformedPalette) {
		t.Fatalf("err=%v want ErrMalformedPalette", err)
	}
}

func TestSubchunk_DecodeFailures(t *testing.T) {
	good, err := EncodeSubchunk(nil, subchunkWithPalette(t, 2, 1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	outOfRange := append([]byte{}, good[:8]...) // two entries + sentinel
	stream := make([]byte, streamLen(4))
	stream[0] = 0x05
	outOfRange = append(outOfRange, stream...)

	cases := []struct {
		name string
		src  []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"no sentinel", good[:4], ErrTruncated},
		{"half sentinel", good[:6], ErrTruncated},
		{"short stream", good[:len(good)-1], ErrTruncated},
		{"empty palette", append([]byte{0xFF, 0xFF, 0xFF, 0xFF}, make([]byte, streamLen(4))...), ErrMalformedPalette},
		{"index out of range", outOfRange, ErrPaletteIndex},
	}
	for _, c := range cases {
		_, err := DecodeSubchunk(c.src, make([]uint16, SubchunkVolume))
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: err=%v want %v", c.name, err, c.want)
		}
		if !errors.Is(err, ErrParsing) {
			t.Fatalf("%s: err=%v is not a parsing error", c.name, err)
		}
	}
}

func TestEncode_WholeColumnRoundTrip(t *testing.T) {
	d := New(3, -9)
	r := rand.New(rand.NewSource(42))
	for y := 0; y < WorldHeight; y++ {
		for z := 0; z < Width; z++ {
			for x := 0; x < Width; x++ {
				switch {
				case y < 60:
					d.SetBlock(x, y, z, uint16(1+r.Intn(40)))
				case y < 64:
					d.SetBlock(x, y, z, 9)
				}
			}
		}
	}

	enc, err := Encode(d.Blocks[:])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got [Volume]uint16
	n, err := Decode(enc, got[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed=%d want %d", n, len(enc))
	}
	if got != d.Blocks {
		t.Fatalf("column mismatch after round trip")
	}
}

func TestEncode_RejectsPartialSubchunk(t *testing.T) {
	if _, err := Encode(make([]uint16, SubchunkVolume+1)); !errors.Is(err, ErrVolume) {
		t.Fatalf("err=%v want ErrVolume", err)
	}
}
