package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"voxelvault.ai/internal/config"
	"voxelvault.ai/internal/importer"
	"voxelvault.ai/internal/persistence/archive"
	"voxelvault.ai/internal/persistence/backend"
	"voxelvault.ai/internal/persistence/journal"
	"voxelvault.ai/internal/persistence/region"
	"voxelvault.ai/internal/world/blockreg"
	"voxelvault.ai/internal/world/chunk"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: chunkvault <command> [flags]

commands:
  import   copy a region folder into the configured store
  get      print one chunk from the configured store
  region   print one chunk straight from a region folder
  stats    print store statistics
  backup   copy the store into <data>/backups (or -list them), then mirror it if configured
  journal  print journal events`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "import":
		err = importCmd(args)
	case "get":
		err = getCmd(args)
	case "region":
		err = regionCmd(args)
	case "stats":
		err = statsCmd(args)
	case "backup":
		err = backupCmd(args)
	case "journal":
		err = journalCmd(args)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "[chunkvault] ", log.LstdFlags|log.Lmicroseconds)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func openJournal(cfg config.Config) *journal.Journal {
	if !cfg.Journal.Enabled {
		return nil
	}
	return journal.Open(cfg.Journal.Dir)
}

func importCmd(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.yaml or .toml)")
	dim := fs.String("dim", "overworld", "dimension to import")
	worldRoot := fs.String("world", "", "region folder root (overrides world.root)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *worldRoot != "" {
		cfg.World.Root = *worldRoot
	}
	if cfg.Storage.Backend == config.BackendRegion {
		return fmt.Errorf("cannot import into the read-only %q backend", config.BackendRegion)
	}

	ctx, cancel := signalContext()
	defer cancel()
	logger := newLogger()
	j := openJournal(cfg)
	defer j.Close()

	blocks, err := backend.Registry(cfg)
	if err != nil {
		return err
	}
	dst, err := backend.Open(ctx, cfg, logger, j)
	if err != nil {
		return err
	}
	defer dst.Close()

	src := region.NewReader(cfg.World.Root, blocks)
	res, err := importer.New(src, dst, cfg.Import.Workers, logger, j).Run(ctx, *dim)
	fmt.Printf("import %s: regions=%d imported=%d skipped=%d failed=%d\n", *dim, res.Regions, res.Imported, res.Skipped, res.Failed)
	return err
}

func getCmd(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.yaml or .toml)")
	x := fs.Int("x", 0, "chunk x")
	z := fs.Int("z", 0, "chunk z")
	dim := fs.String("dim", "overworld", "dimension")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	blocks, err := backend.Registry(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	s, err := backend.Open(ctx, cfg, newLogger(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	d, ok, err := s.GetChunk(ctx, int32(*x), int32(*z), *dim)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("chunk %d,%d in %s not found", *x, *z, *dim)
	}
	return printChunk(d, blocks, *dim)
}

func regionCmd(args []string) error {
	fs := flag.NewFlagSet("region", flag.ExitOnError)
	root := fs.String("world", "world", "region folder root")
	registry := fs.String("registry", "", "block registry JSON (default: built-in)")
	x := fs.Int("x", 0, "chunk x")
	z := fs.Int("z", 0, "chunk z")
	dim := fs.String("dim", "overworld", "dimension")
	list := fs.Bool("list", false, "list present chunks of the region holding x,z instead")
	_ = fs.Parse(args)

	blocks := blockreg.Default()
	if *registry != "" {
		var err error
		if blocks, err = blockreg.Load(*registry); err != nil {
			return err
		}
	}
	r := region.NewReader(*root, blocks)
	if *list {
		chunks, err := r.Chunks(region.RegionCoord(int32(*x)), region.RegionCoord(int32(*z)), *dim)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			fmt.Printf("%d %d\n", c.X, c.Z)
		}
		return nil
	}
	d, err := r.ReadChunk(int32(*x), int32(*z), *dim)
	if err != nil {
		return err
	}
	return printChunk(d, blocks, *dim)
}

type chunkSummary struct {
	Dimension  string           `json:"dimension"`
	X          int32            `json:"x"`
	Z          int32            `json:"z"`
	Blocks     map[string]int   `json:"blocks"`
	Subchunks  []int            `json:"non_air_per_subchunk"`
	Heightmaps chunk.Heightmaps `json:"heightmaps"`
}

func printChunk(d *chunk.Data, blocks blockreg.Resolver, dim string) error {
	sum := chunkSummary{
		Dimension:  dim,
		X:          d.X,
		Z:          d.Z,
		Blocks:     map[string]int{},
		Subchunks:  make([]int, chunk.Subchunks),
		Heightmaps: d.Heightmaps,
	}
	for i := 0; i < chunk.Subchunks; i++ {
		for _, id := range d.Subchunk(i) {
			name, ok := blocks.Name(id)
			if !ok {
				name = fmt.Sprintf("#%d", id)
			}
			sum.Blocks[name]++
			if id != blockreg.Air {
				sum.Subchunks[i]++
			}
		}
	}
	return printJSON(sum)
}

func statsCmd(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.yaml or .toml)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	s, err := backend.Open(context.Background(), cfg, newLogger(), nil)
	if err != nil {
		return err
	}
	defer s.Close()
	info, err := backend.Describe(s)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func backupCmd(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.yaml or .toml)")
	dataDir := fs.String("data", "./data", "directory that receives backups/")
	list := fs.Bool("list", false, "list existing backups instead")
	_ = fs.Parse(args)

	if *list {
		metas, err := archive.List(*dataDir)
		if err != nil {
			return err
		}
		for _, m := range metas {
			fmt.Printf("%s %s backend=%s entries=%d %s\n", m.CreatedAt, m.ID, m.Backend, m.Entries, m.Dir)
		}
		return nil
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	j := openJournal(cfg)
	defer j.Close()
	s, err := backend.Open(context.Background(), cfg, newLogger(), j)
	if err != nil {
		return err
	}
	defer s.Close()

	src, ok := s.(archive.Copier)
	if !ok {
		return fmt.Errorf("backend %q cannot be backed up", cfg.Storage.Backend)
	}
	info, err := backend.Describe(s)
	if err != nil {
		return err
	}
	dir, meta, err := archive.Backup(*dataDir, src, archive.BackupMeta{
		Backend: info.Backend,
		Source:  info.Path,
		MapSize: info.MapSize,
		Entries: info.Entries,
	})
	if err != nil {
		return err
	}
	logger := newLogger()
	if err := j.Backup(dir); err != nil {
		logger.Printf("journal backup: %v", err)
	}
	fmt.Printf("backup ok: id=%s entries=%d dir=%s\n", meta.ID, meta.Entries, dir)

	ctx, cancel := signalContext()
	defer cancel()
	n, err := mirrorBackup(ctx, cfg.Mirror, dir, logger, j)
	if err != nil {
		return fmt.Errorf("mirror %s: %w", dir, err)
	}
	if n > 0 {
		fmt.Printf("mirror ok: objects=%d bucket=%s\n", n, cfg.Mirror.Bucket)
	}
	return nil
}

func journalCmd(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (.yaml or .toml)")
	kind := fs.String("kind", "", "only events of this kind")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	evs, err := journal.ReadAll(cfg.Journal.Dir)
	if err != nil {
		return err
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })
	enc := json.NewEncoder(os.Stdout)
	for _, e := range evs {
		if *kind != "" && e.Kind != *kind {
			continue
		}
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
