// Package importer copies chunks from a legacy region folder into a chunk store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"voxelvault.ai/internal/persistence/journal"
	"voxelvault.ai/internal/persistence/region"
	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/chunk"
)

type Result struct {
	Regions  int
	Imported int
	// Skipped counts chunks that exist but are not fully generated.
	Skipped int
	Failed  int
}

type Importer struct {
	src     *region.Reader
	dst     storage.Storage
	workers int
	logger  *log.Logger
	journal *journal.Journal

	insertAttempts int
	retryBackoff   time.Duration

	imported atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

type job struct {
	x, z int32
}

func New(src *region.Reader, dst storage.Storage, workers int, logger *log.Logger, j *journal.Journal) *Importer {
	if workers <= 0 {
		workers = 1
	}
	return &Importer{
		src:            src,
		dst:            dst,
		workers:        workers,
		logger:         logger,
		journal:        j,
		insertAttempts: 3,
		retryBackoff:   100 * time.Millisecond,
	}
}

// Run imports every present chunk of dimension. Per-chunk failures are logged,
// journaled and counted; only ctx cancellation or an unreadable folder stop the run.
func (im *Importer) Run(ctx context.Context, dimension string) (Result, error) {
	im.imported.Store(0)
	im.skipped.Store(0)
	im.failed.Store(0)

	regions, err := im.src.Regions(dimension)
	if err != nil {
		return Result{}, fmt.Errorf("list regions: %w", err)
	}

	jobs := make(chan job, im.workers*64)
	var wg sync.WaitGroup
	for i := 0; i < im.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range jobs {
				im.importOne(ctx, jb, dimension)
			}
		}()
	}

	var runErr error
feed:
	for _, r := range regions {
		chunks, err := im.src.Chunks(r.X, r.Z, dimension)
		if err != nil {
			im.printf("import skip region=%d,%d dim=%s err=%v", r.X, r.Z, dimension, err)
			continue
		}
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				runErr = err
				break feed
			}
			select {
			case jobs <- job{x: c.X, z: c.Z}:
			case <-ctx.Done():
				runErr = ctx.Err()
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	res := Result{
		Regions:  len(regions),
		Imported: int(im.imported.Load()),
		Skipped:  int(im.skipped.Load()),
		Failed:   int(im.failed.Load()),
	}
	if err := im.journal.ImportDone(dimension, res.Imported, res.Failed, res.Skipped); err != nil {
		im.printf("journal import_done: %v", err)
	}
	im.printf("import done dim=%s regions=%d imported=%d skipped=%d failed=%d", dimension, res.Regions, res.Imported, res.Skipped, res.Failed)
	return res, runErr
}

func (im *Importer) importOne(ctx context.Context, jb job, dimension string) {
	if ctx.Err() != nil {
		return
	}
	d, err := im.src.ReadChunk(jb.x, jb.z, dimension)
	if errors.Is(err, region.ErrChunkNotGenerated) {
		im.skipped.Add(1)
		return
	}
	if err == nil {
		err = im.insertWithRetry(ctx, jb, dimension, d)
	}
	if err == nil {
		im.imported.Add(1)
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	im.failed.Add(1)
	im.printf("import failed chunk=%d,%d dim=%s err=%v", jb.x, jb.z, dimension, err)
	if jerr := im.journal.ImportFailed(jb.x, jb.z, dimension, err); jerr != nil {
		im.printf("journal import_failed: %v", jerr)
	}
}

func (im *Importer) insertWithRetry(ctx context.Context, jb job, dimension string, d *chunk.Data) error {
	var lastErr error
	for attempt := 1; attempt <= im.insertAttempts; attempt++ {
		err := im.dst.InsertChunk(ctx, jb.x, jb.z, dimension, d)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, storage.ErrClosed) || errors.Is(err, storage.ErrReadOnly) || ctx.Err() != nil {
			return err
		}
		if attempt < im.insertAttempts {
			backoff := time.Duration(attempt*attempt) * im.retryBackoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (im *Importer) printf(format string, args ...any) {
	if im.logger != nil {
		im.logger.Printf(format, args...)
	}
}
