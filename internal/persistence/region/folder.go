package region

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Folder is a world save directory.
type Folder struct {
	Root string
}

// Dir returns the region directory of a dimension. Names may carry a "minecraft:" prefix;
// other namespaced dimensions live under dimensions/<ns>/<name>.
func (f Folder) Dir(dimension string) string {
	switch strings.TrimPrefix(dimension, "minecraft:") {
	case "", "overworld":
		return filepath.Join(f.Root, "region")
	case "the_nether":
		return filepath.Join(f.Root, "DIM-1", "region")
	case "the_end":
		return filepath.Join(f.Root, "DIM1", "region")
	}
	ns, name, ok := strings.Cut(dimension, ":")
	if !ok {
		ns, name = "minecraft", dimension
	}
	return filepath.Join(f.Root, "dimensions", ns, name, "region")
}

// File is the path of the region file holding chunk (x, z).
func (f Folder) File(dimension string, x, z int32) string {
	return f.RegionFile(dimension, RegionCoord(x), RegionCoord(z))
}

func (f Folder) RegionFile(dimension string, rx, rz int32) string {
	return filepath.Join(f.Dir(dimension), fmt.Sprintf("r.%d.%d.mca", rx, rz))
}

// ExternalFile is the path of an oversized chunk stored outside its region file.
func (f Folder) ExternalFile(dimension string, x, z int32) string {
	return filepath.Join(f.Dir(dimension), fmt.Sprintf("c.%d.%d.mcc", x, z))
}

// RegionPos is a region coordinate pair.
type RegionPos struct{ X, Z int32 }

// Regions lists the region files present for dimension, sorted by (x, z).
// A missing directory yields no regions.
func (f Folder) Regions(dimension string) ([]RegionPos, error) {
	entries, err := os.ReadDir(f.Dir(dimension))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []RegionPos
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var p RegionPos
		var tail string
		if n, _ := fmt.Sscanf(e.Name(), "r.%d.%d.%s", &p.X, &p.Z, &tail); n != 3 || tail != "mca" {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out, nil
}
