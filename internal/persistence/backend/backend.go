// Package backend opens the chunk storage selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"voxelvault.ai/internal/config"
	"voxelvault.ai/internal/persistence/journal"
	"voxelvault.ai/internal/persistence/leveldbstore"
	"voxelvault.ai/internal/persistence/lmdbstore"
	"voxelvault.ai/internal/persistence/region"
	"voxelvault.ai/internal/persistence/sqlitestore"
	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/blockreg"
)

// Open returns the backend named by cfg.Storage.Backend. j may be nil.
func Open(ctx context.Context, cfg config.Config, logger *log.Logger, j *journal.Journal) (storage.Storage, error) {
	var (
		s   storage.Storage
		err error
	)
	switch cfg.Storage.Backend {
	case config.BackendLMDB:
		var st *lmdbstore.Store
		st, err = lmdbstore.Start(ctx, lmdbstore.Options{
			Path:         cfg.Storage.Path,
			MapSize:      cfg.Storage.MapSize(),
			MapIncrement: cfg.Storage.MapIncrement(),
			Readers:      cfg.Storage.Readers,
			Logger:       logger,
			OnResize: func(oldSize, newSize int64) {
				if err := j.Resize(oldSize, newSize); err != nil && logger != nil {
					logger.Printf("journal resize: %v", err)
				}
			},
		})
		s = st
	case config.BackendLevelDB:
		var st *leveldbstore.Store
		st, err = leveldbstore.Open(cfg.Storage.Path, leveldbstore.Options{Sync: cfg.Storage.Sync})
		s = st
	case config.BackendSQLite:
		var st *sqlitestore.Store
		st, err = sqlitestore.Open(filepath.Join(cfg.Storage.Path, sqlitestore.FileName))
		s = st
	case config.BackendRegion:
		var blocks *blockreg.Registry
		blocks, err = Registry(cfg)
		if err == nil {
			s = region.NewReader(cfg.World.Root, blocks)
		}
	default:
		err = fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Registry loads cfg.World.Registry, or the built-in registry when it is empty.
func Registry(cfg config.Config) (*blockreg.Registry, error) {
	if cfg.World.Registry == "" {
		return blockreg.Default(), nil
	}
	return blockreg.Load(cfg.World.Registry)
}

// Info is a backend-independent summary of an open store.
type Info struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Entries uint64 `json:"entries"`

	MapSize      int64  `json:"map_size,omitempty"`
	MapIncrement int64  `json:"map_increment,omitempty"`
	Resizes      uint64 `json:"resizes,omitempty"`
	Reads        uint64 `json:"reads,omitempty"`
	Writes       uint64 `json:"writes,omitempty"`
	QueueDepth   int    `json:"queue_depth,omitempty"`
}

func Describe(s storage.Storage) (Info, error) {
	switch st := s.(type) {
	case *lmdbstore.Store:
		stats, err := st.Stats()
		return Info{
			Backend:      config.BackendLMDB,
			Path:         st.Path(),
			Entries:      stats.Entries,
			MapSize:      stats.MapSize,
			MapIncrement: stats.MapIncrement,
			Resizes:      stats.Resizes,
			Reads:        stats.Reads,
			Writes:       stats.Writes,
			QueueDepth:   stats.ReadQueueDepth + stats.WriteQueueDepth,
		}, err
	case *leveldbstore.Store:
		n, err := st.Entries()
		return Info{Backend: config.BackendLevelDB, Path: st.Path(), Entries: uint64(n)}, err
	case *sqlitestore.Store:
		stats, err := st.Stats()
		return Info{
			Backend:    config.BackendSQLite,
			Path:       st.Path(),
			Entries:    uint64(stats.Entries),
			Writes:     stats.Writes,
			QueueDepth: stats.QueueDepth,
		}, err
	case *region.Reader:
		info := Info{Backend: config.BackendRegion, Path: st.Folder().Root}
		regions, err := st.Regions("overworld")
		if err != nil {
			return info, err
		}
		for _, r := range regions {
			chunks, err := st.Chunks(r.X, r.Z, "overworld")
			if err != nil {
				return info, err
			}
			info.Entries += uint64(len(chunks))
		}
		return info, nil
	default:
		return Info{}, fmt.Errorf("unknown storage type %T", s)
	}
}
