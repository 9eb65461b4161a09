package chunkcodec

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/klauspost/compress/zstd"

	"voxelvault.ai/internal/world/chunk"
)

func sampleChunk(seed int64) *chunk.Data {
	r := rand.New(rand.NewSource(seed))
	d := chunk.New(int32(seed), -int32(seed))
	for i := 0; i < chunk.Area*70; i++ {
		d.Blocks[i] = uint16(1 + r.Intn(30))
	}
	d.Heightmaps.MotionBlocking[3] = 0x0123456789
	d.Heightmaps.WorldSurface[36] = -1
	return d
}

func TestMarshal_RoundTrip(t *testing.T) {
	want := sampleChunk(11)
	b, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: x=%d z=%d", got.X, got.Z)
	}
}

func TestMarshal_HeightmapNilAndEmptyStayApart(t *testing.T) {
	d := chunk.New(1, 2)
	d.Heightmaps.MotionBlocking = []int64{}
	d.Heightmaps.WorldSurface = nil
	b, err := Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Heightmaps.MotionBlocking == nil || len(got.Heightmaps.MotionBlocking) != 0 {
		t.Fatalf("empty heightmap decoded as %#v", got.Heightmaps.MotionBlocking)
	}
	if got.Heightmaps.WorldSurface != nil {
		t.Fatalf("nil heightmap decoded as %#v", got.Heightmaps.WorldSurface)
	}
	if !reflect.DeepEqual(got, d) {
		t.Fatalf("round trip mismatch")
	}
}

func TestMarshal_CompressesUniformChunk(t *testing.T) {
	b, err := Marshal(chunk.New(0, 0))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(b) > 4096 {
		t.Fatalf("empty chunk encoded to %d bytes", len(b))
	}
}

func TestMarshal_RejectsReservedBlock(t *testing.T) {
	d := chunk.New(0, 0)
	d.Blocks[5] = chunk.ReservedBlockID
	if _, err := Marshal(d); !errors.Is(err, chunk.ErrReservedBlockID) {
		t.Fatalf("err=%v want ErrReservedBlockID", err)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	good, err := Marshal(sampleChunk(3))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	raw, err := decoder.DecodeAll(good, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer enc.Close()

	badVersion := append([]byte{}, raw...)
	badVersion[0] = 9
	trailing := append(append([]byte{}, raw...), 0)
	truncated := raw[:len(raw)-10]

	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"version", enc.EncodeAll(badVersion, nil), ErrVersion},
		{"trailing", enc.EncodeAll(trailing, nil), ErrCorrupt},
		{"header", enc.EncodeAll(raw[:5], nil), ErrCorrupt},
		{"blocks", enc.EncodeAll(truncated, nil), chunk.ErrTruncated},
	}
	for _, c := range cases {
		if _, err := Unmarshal(c.in); !errors.Is(err, c.want) {
			t.Fatalf("%s: err=%v want %v", c.name, err, c.want)
		}
	}
	if _, err := Unmarshal([]byte("not zstd")); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
