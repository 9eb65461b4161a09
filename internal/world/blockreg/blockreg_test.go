package blockreg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_ResolvesWithAndWithoutNamespace(t *testing.T) {
	r := Default()
	id, ok := r.StateID("minecraft:stone")
	if !ok || id != 1 {
		t.Fatalf("stone=%d,%v want 1,true", id, ok)
	}
	if id2, ok := r.StateID("stone"); !ok || id2 != id {
		t.Fatalf("bare name=%d,%v want %d,true", id2, ok, id)
	}
	if name, ok := r.Name(Air); !ok || name != "minecraft:air" {
		t.Fatalf("Name(Air)=%q,%v", name, ok)
	}
	if _, ok := r.StateID("minecraft:not_a_block"); ok {
		t.Fatalf("unknown name resolved")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.json")
	raw := `{"blocks":[{"name":"minecraft:air","id":0},{"name":"mod:copper_pipe","id":900}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len=%d want 2", r.Len())
	}
	if id, ok := r.StateID("mod:copper_pipe"); !ok || id != 900 {
		t.Fatalf("copper_pipe=%d,%v", id, ok)
	}
}

func TestParse_RejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"missing blocks": `{}`,
		"reserved id":    `{"blocks":[{"name":"minecraft:air","id":65535}]}`,
		"no namespace":   `{"blocks":[{"name":"air","id":0}]}`,
		"extra field":    `{"blocks":[{"name":"minecraft:air","id":0,"solid":false}]}`,
		"duplicate id":   `{"blocks":[{"name":"minecraft:air","id":0},{"name":"minecraft:cave_air","id":0}]}`,
		"duplicate name": `{"blocks":[{"name":"minecraft:air","id":0},{"name":"minecraft:air","id":1}]}`,
		"not json":       `blocks: []`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if strings.TrimSpace(err.Error()) == "" {
			t.Fatalf("%s: empty error", name)
		}
	}
}
