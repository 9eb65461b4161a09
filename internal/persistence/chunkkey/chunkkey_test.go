package chunkkey

import (
	"encoding/binary"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key(5, -3, "overworld")
	for i := 0; i < 100; i++ {
		if b := Key(5, -3, "overworld"); b != a {
			t.Fatalf("key changed between calls: %x vs %x", a, b)
		}
	}

	// Pin the byte layout so a store written by one process is readable by the next.
	raw := []byte{5, 0, 0, 0, 0xFD, 0xFF, 0xFF, 0xFF}
	raw = append(raw, "overworld"...)
	if want := xxhash.Sum64(raw); a != want {
		t.Fatalf("Key=%x want %x", a, want)
	}
}

func TestKey_DimensionsAndAxesDiffer(t *testing.T) {
	if Key(5, -3, "overworld") == Key(5, -3, "the_end") {
		t.Fatalf("dimensions collide")
	}
	if Key(5, -3, "overworld") == Key(-3, 5, "overworld") {
		t.Fatalf("swapped axes collide")
	}
}

func TestKey_NoCollisionsInPracticalRange(t *testing.T) {
	seen := make(map[uint64][2]int32, 257*257)
	for x := int32(-128); x <= 128; x++ {
		for z := int32(-128); z <= 128; z++ {
			k := Key(x, z, "overworld")
			if prev, ok := seen[k]; ok {
				t.Fatalf("collision: %v and %v", prev, [2]int32{x, z})
			}
			seen[k] = [2]int32{x, z}
		}
	}
}

func TestBytes_LittleEndian(t *testing.T) {
	b := Bytes(0x0102030405060708)
	if got := binary.LittleEndian.Uint64(b[:]); got != 0x0102030405060708 {
		t.Fatalf("got=%x", got)
	}
	if b[0] != 0x08 {
		t.Fatalf("first byte=%#x want 0x08", b[0])
	}
}
