// Package blockreg resolves block state names to the numeric ids stored in chunks.
package blockreg

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Air is the id every unknown block name resolves to.
const Air uint16 = 0

//go:embed blocks.json
var defaultBlocks []byte

//go:embed blocks.schema.json
var schemaText string

// Resolver is the contract the region reader consumes.
type Resolver interface {
	StateID(name string) (uint16, bool)
	Name(id uint16) (string, bool)
}

type Registry struct {
	byName map[string]uint16
	byID   map[uint16]string
}

type fileV1 struct {
	Blocks []entryV1 `json:"blocks"`
}

type entryV1 struct {
	Name string `json:"name"`
	ID   uint16 `json:"id"`
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error

	defaultOnce sync.Once
	defaultReg  *Registry
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = jsonschema.CompileString("blocks.schema.json", schemaText)
	})
	return compiled, compileErr
}

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse validates raw against the registry schema and builds the lookup tables.
func Parse(raw []byte) (*Registry, error) {
	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var f fileV1
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	r := &Registry{
		byName: make(map[string]uint16, len(f.Blocks)),
		byID:   make(map[uint16]string, len(f.Blocks)),
	}
	for _, e := range f.Blocks {
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate block name %q", e.Name)
		}
		if prev, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("block id %d used by %q and %q", e.ID, prev, e.Name)
		}
		r.byName[e.Name] = e.ID
		r.byID[e.ID] = e.Name
	}
	return r, nil
}

// Default is the registry compiled into the binary.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(defaultBlocks)
		if err != nil {
			panic(fmt.Sprintf("blockreg: embedded registry: %v", err))
		}
		defaultReg = r
	})
	return defaultReg
}

// StateID accepts names with or without the minecraft namespace.
func (r *Registry) StateID(name string) (uint16, bool) {
	if !strings.Contains(name, ":") {
		name = "minecraft:" + name
	}
	id, ok := r.byName[name]
	return id, ok
}

func (r *Registry) Name(id uint16) (string, bool) {
	n, ok := r.byID[id]
	return n, ok
}

func (r *Registry) Len() int { return len(r.byName) }
