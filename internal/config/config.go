// Package config loads the chunkvault configuration from YAML or TOML, then applies
// CV_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const (
	BackendLMDB    = "lmdb"
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
	BackendRegion  = "region"
)

type Config struct {
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	World   WorldConfig   `yaml:"world" toml:"world"`
	Journal JournalConfig `yaml:"journal" toml:"journal"`
	Import  ImportConfig  `yaml:"import" toml:"import"`
	Mirror  MirrorConfig  `yaml:"mirror" toml:"mirror"`
}

type StorageConfig struct {
	Backend         string `yaml:"backend" toml:"backend"`
	Path            string `yaml:"path" toml:"path"`
	MapSizeMiB      int    `yaml:"map_size_mib" toml:"map_size_mib"`
	MapIncrementMiB int    `yaml:"map_increment_mib" toml:"map_increment_mib"`
	Readers         int    `yaml:"readers" toml:"readers"`
	Sync            bool   `yaml:"sync" toml:"sync"`
}

type WorldConfig struct {
	// Root is a legacy world save folder (the one holding region/).
	Root string `yaml:"root" toml:"root"`
	// Registry is a block registry JSON file; empty means the built-in one.
	Registry string `yaml:"registry" toml:"registry"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Dir     string `yaml:"dir" toml:"dir"`
}

type ImportConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
}

// MirrorConfig points at an S3-compatible bucket that receives finished backups.
// Credentials only come from the environment.
type MirrorConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Bucket   string `yaml:"bucket" toml:"bucket"`
	Region   string `yaml:"region" toml:"region"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
	Workers  int    `yaml:"workers" toml:"workers"`

	AccessKeyID     string `yaml:"-" toml:"-"`
	SecretAccessKey string `yaml:"-" toml:"-"`
}

// Load reads path (by extension: .toml, otherwise YAML) over the defaults.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		name := filepath.Base(path)
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			err = toml.Unmarshal(b, &cfg)
		} else {
			err = yaml.Unmarshal(b, &cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Backend:         BackendLMDB,
			Path:            "data/chunks",
			MapSizeMiB:      300,
			MapIncrementMiB: 300,
			Readers:         8,
		},
		World: WorldConfig{
			Root: "world",
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "data/journal",
		},
		Import: ImportConfig{
			Workers: 4,
		},
		Mirror: MirrorConfig{
			Region:  "auto",
			Workers: 2,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendLMDB
	}
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	c.World.Root = strings.TrimSpace(c.World.Root)
	if c.Journal.Dir == "" {
		c.Journal.Dir = filepath.Join(filepath.Dir(c.Storage.Path), "journal")
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = 1
	}
	c.Mirror.Endpoint = strings.TrimSpace(c.Mirror.Endpoint)
	c.Mirror.Bucket = strings.TrimSpace(c.Mirror.Bucket)
	c.Mirror.Prefix = strings.Trim(strings.ReplaceAll(c.Mirror.Prefix, "\\", "/"), "/")
	if c.Mirror.Region == "" {
		c.Mirror.Region = "auto"
	}
	if c.Mirror.Workers <= 0 {
		c.Mirror.Workers = 1
	}
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLMDB, BackendLevelDB, BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for backend %q", c.Storage.Backend)
		}
	case BackendRegion:
		if c.World.Root == "" {
			return fmt.Errorf("world.root is required for backend %q", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.MapSizeMiB <= 0 {
		return fmt.Errorf("storage.map_size_mib must be > 0")
	}
	if c.Storage.MapIncrementMiB <= 0 {
		return fmt.Errorf("storage.map_increment_mib must be > 0")
	}
	if c.Storage.Readers <= 0 || c.Storage.Readers > 1024 {
		return fmt.Errorf("storage.readers must be in 1..1024")
	}
	if c.Mirror.Enabled {
		if c.Mirror.Endpoint == "" || c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.endpoint and mirror.bucket are required when mirror.enabled")
		}
		if c.Mirror.AccessKeyID == "" || c.Mirror.SecretAccessKey == "" {
			return fmt.Errorf("mirror.enabled but CV_MIRROR_ACCESS_KEY_ID/CV_MIRROR_SECRET_ACCESS_KEY are not set")
		}
	}
	return nil
}

// MapSize and MapIncrement are the storage sizes in bytes.
func (s StorageConfig) MapSize() int64      { return int64(s.MapSizeMiB) << 20 }
func (s StorageConfig) MapIncrement() int64 { return int64(s.MapIncrementMiB) << 20 }

// ApplyEnv overrides fields from CV_* variables. Malformed values are ignored.
func (c *Config) ApplyEnv() {
	c.Storage.Backend = envString("CV_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Path = envString("CV_STORAGE_PATH", c.Storage.Path)
	c.Storage.MapSizeMiB = envInt("CV_MAP_SIZE_MIB", c.Storage.MapSizeMiB)
	c.Storage.MapIncrementMiB = envInt("CV_MAP_INCREMENT_MIB", c.Storage.MapIncrementMiB)
	c.Storage.Readers = envInt("CV_READERS", c.Storage.Readers)
	c.Storage.Sync = envBool("CV_SYNC", c.Storage.Sync)
	c.World.Root = envString("CV_WORLD_ROOT", c.World.Root)
	c.World.Registry = envString("CV_BLOCK_REGISTRY", c.World.Registry)
	c.Journal.Enabled = envBool("CV_JOURNAL", c.Journal.Enabled)
	c.Journal.Dir = envString("CV_JOURNAL_DIR", c.Journal.Dir)
	c.Import.Workers = envInt("CV_IMPORT_WORKERS", c.Import.Workers)
	c.Mirror.Enabled = envBool("CV_MIRROR", c.Mirror.Enabled)
	c.Mirror.Endpoint = envString("CV_MIRROR_ENDPOINT", c.Mirror.Endpoint)
	c.Mirror.Bucket = envString("CV_MIRROR_BUCKET", c.Mirror.Bucket)
	c.Mirror.Prefix = envString("CV_MIRROR_PREFIX", c.Mirror.Prefix)
	c.Mirror.Workers = envInt("CV_MIRROR_WORKERS", c.Mirror.Workers)
	c.Mirror.AccessKeyID = envString("CV_MIRROR_ACCESS_KEY_ID", c.Mirror.AccessKeyID)
	c.Mirror.SecretAccessKey = envString("CV_MIRROR_SECRET_ACCESS_KEY", c.Mirror.SecretAccessKey)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
