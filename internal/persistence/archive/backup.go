// Package archive takes consistent backups of a chunk store into <dataDir>/backups.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Copier writes a consistent copy of a store into an existing, empty directory.
type Copier interface {
	CopyTo(dir string) error
}

type BackupMeta struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Backend   string `json:"backend"`
	Source    string `json:"source"`
	MapSize   int64  `json:"map_size,omitempty"`
	Entries   uint64 `json:"entries"`
	// Dir is filled in by List.
	Dir string `json:"-"`
}

// MetaFile sits next to every backup copy.
const MetaFile = "meta.json"

// Backup copies src into a new directory under dataDir/backups and records meta.json
// next to the copy. ID and CreatedAt are assigned here.
func Backup(dataDir string, src Copier, meta BackupMeta) (string, BackupMeta, error) {
	now := time.Now().UTC()
	meta.ID = uuid.NewString()
	meta.CreatedAt = now.Format(time.RFC3339Nano)

	dir := filepath.Join(dataDir, "backups", fmt.Sprintf("%s-%s", now.Format("20060102T150405Z"), meta.ID[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", meta, err
	}
	if err := src.CopyTo(dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", meta, fmt.Errorf("backup into %s: %w", dir, err)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", meta, err
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), b, 0o644); err != nil {
		return "", meta, err
	}
	meta.Dir = dir
	return dir, meta, nil
}

// List returns the backups under dataDir, oldest first. Directories without a
// readable meta.json are skipped.
func List(dataDir string) ([]BackupMeta, error) {
	root := filepath.Join(dataDir, "backups")
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []BackupMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		b, err := os.ReadFile(filepath.Join(dir, MetaFile))
		if err != nil {
			continue
		}
		var m BackupMeta
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		m.Dir = dir
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}
