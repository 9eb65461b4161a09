// Package chunkkey maps a chunk position and dimension to the 64-bit key used by the stores.
package chunkkey

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Size is the encoded length of a key.
const Size = 8

// Key hashes x and z (little-endian) followed by the dimension name bytes.
// The result is stable across processes; stores on disk depend on it.
func Key(x, z int32, dimension string) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(x))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(z))

	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(dimension)
	return d.Sum64()
}

// Bytes is the on-disk form of a key.
func Bytes(key uint64) [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return b
}

// For is Bytes(Key(x, z, dimension)).
func For(x, z int32, dimension string) [Size]byte {
	return Bytes(Key(x, z, dimension))
}
