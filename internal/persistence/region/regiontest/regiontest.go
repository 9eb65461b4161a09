// Package regiontest writes small anvil world folders for tests outside the region package.
package regiontest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/zlib"

	"voxelvault.ai/internal/persistence/region"
)

type section struct {
	Y           int8        `nbt:"Y"`
	BlockStates blockStates `nbt:"block_states"`
}

type blockStates struct {
	Palette []paletteEntry `nbt:"palette"`
}

type paletteEntry struct {
	Name string `nbt:"Name"`
}

type column struct {
	DataVersion int32     `nbt:"DataVersion"`
	XPos        int32     `nbt:"xPos"`
	ZPos        int32     `nbt:"zPos"`
	Status      string    `nbt:"Status"`
	Sections    []section `nbt:"sections"`
}

type slot struct {
	tag     byte
	payload []byte
}

// World accumulates chunks and writes them as region files under Root on Flush.
type World struct {
	T      *testing.T
	Root   string
	folder region.Folder
	files  map[string]map[int]slot
}

func NewWorld(t *testing.T) *World {
	t.Helper()
	root := t.TempDir()
	return &World{T: t, Root: root, folder: region.Folder{Root: root}, files: map[string]map[int]slot{}}
}

// UniformChunk is a fully generated column whose section y=0 is filled with block.
func UniformChunk(t *testing.T, x, z int32, block string) []byte {
	t.Helper()
	return marshal(t, column{
		DataVersion: 3953,
		XPos:        x,
		ZPos:        z,
		Status:      "minecraft:full",
		Sections: []section{
			{Y: 0, BlockStates: blockStates{Palette: []paletteEntry{{Name: block}}}},
		},
	})
}

// UngeneratedChunk is a column still in an early generation stage.
func UngeneratedChunk(t *testing.T, x, z int32) []byte {
	t.Helper()
	return marshal(t, column{DataVersion: 3953, XPos: x, ZPos: z, Status: "minecraft:noise"})
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := nbt.Marshal(v)
	if err != nil {
		t.Fatalf("regiontest: marshal: %v", err)
	}
	return b
}

// PutChunk stores uncompressed NBT as a zlib payload.
func (w *World) PutChunk(dimension string, x, z int32, raw []byte) {
	w.T.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		w.T.Fatalf("regiontest: zlib: %v", err)
	}
	if err := zw.Close(); err != nil {
		w.T.Fatalf("regiontest: zlib: %v", err)
	}
	w.PutRaw(dimension, x, z, byte(region.CompressionZlib), buf.Bytes())
}

// PutRaw stores payload with an explicit compression tag.
func (w *World) PutRaw(dimension string, x, z int32, tag byte, payload []byte) {
	path := w.folder.File(dimension, x, z)
	if w.files[path] == nil {
		w.files[path] = map[int]slot{}
	}
	w.files[path][region.Index(x, z)] = slot{tag: tag, payload: payload}
}

// Flush writes every region file touched so far.
func (w *World) Flush() {
	w.T.Helper()
	for path, slots := range w.files {
		header := make([]byte, region.HeaderSize)
		var body []byte
		sector := 2
		for i := 0; i < region.ChunksPerFile; i++ {
			s, ok := slots[i]
			if !ok {
				continue
			}
			run := make([]byte, 5, 5+len(s.payload))
			binary.BigEndian.PutUint32(run, uint32(len(s.payload)+1))
			run[4] = s.tag
			run = append(run, s.payload...)
			n := (len(run) + region.SectorSize - 1) / region.SectorSize
			run = append(run, make([]byte, n*region.SectorSize-len(run))...)
			header[i*4] = byte(sector >> 16)
			header[i*4+1] = byte(sector >> 8)
			header[i*4+2] = byte(sector)
			header[i*4+3] = byte(n)
			body = append(body, run...)
			sector += n
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			w.T.Fatalf("regiontest: mkdir: %v", err)
		}
		if err := os.WriteFile(path, append(header, body...), 0o644); err != nil {
			w.T.Fatalf("regiontest: write: %v", err)
		}
	}
}
