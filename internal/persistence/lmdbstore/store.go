// Package lmdbstore is the primary chunk store: one LMDB environment with a
// "chunks" table, a fixed pool of reader goroutines, and a single writer goroutine
// that grows the memory map on demand.
package lmdbstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/PowerDNS/lmdb-go/lmdb"

	"voxelvault.ai/internal/persistence/chunkcodec"
	"voxelvault.ai/internal/persistence/chunkkey"
	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/chunk"
)

const (
	TableChunks = "chunks"

	DefaultMapSize      int64 = 300 << 20
	DefaultMapIncrement int64 = 300 << 20
	DefaultReaders            = 8

	dataFile = "data.mdb"
)

type Options struct {
	// Path is the environment directory; it is created if missing.
	Path string
	// MapSize is the minimum initial map size in bytes.
	MapSize int64
	// MapIncrement is added to the map size each time a write finds the map full.
	MapIncrement int64
	// Readers is the size of the reader pool.
	Readers int
	Logger  *log.Logger
	// OnResize observes map growth. It runs on the writer after the resize guard is released.
	OnResize func(oldSize, newSize int64)
}

func (o Options) norm() Options {
	if o.MapSize <= 0 {
		o.MapSize = DefaultMapSize
	}
	if o.MapIncrement <= 0 {
		o.MapIncrement = DefaultMapIncrement
	}
	if o.Readers <= 0 {
		o.Readers = DefaultReaders
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	return o
}

type Store struct {
	env    *lmdb.Env
	dbi    lmdb.DBI
	path   string
	logger *log.Logger

	resize      *ResizeCoordinator
	readers     *workerPool
	writer      *workerPool
	writerShard int

	gate      storage.Gate
	closeOnce sync.Once
	closeErr  error

	reads   atomic.Uint64
	writes  atomic.Uint64
	dropped atomic.Uint64
}

var _ storage.Storage = (*Store)(nil)

type Stats struct {
	MapSize         int64
	MapIncrement    int64
	Resizes         uint64
	Entries         uint64
	Reads           uint64
	Writes          uint64
	Dropped         uint64
	ReadQueueDepth  int
	WriteQueueDepth int
}

// Start opens (or creates) the environment at opts.Path and starts the worker goroutines.
func Start(ctx context.Context, opts Options) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := opts.norm()
	if o.Path == "" {
		return nil, fmt.Errorf("lmdbstore: empty path")
	}
	if err := os.MkdirAll(o.Path, 0o755); err != nil {
		return nil, err
	}
	size, err := initialMapSize(o.Path, o.MapSize, o.MapIncrement)
	if err != nil {
		return nil, fmt.Errorf("lmdbstore: stat data file: %w", err)
	}

	env, err := openEnv(o, size)
	if err != nil {
		return nil, err
	}
	info, err := env.Info()
	if err != nil {
		_ = env.Close()
		return nil, fmt.Errorf("lmdbstore: env info: %w", err)
	}

	var dbi lmdb.DBI
	err = env.Update(func(txn *lmdb.Txn) (err error) {
		dbi, err = txn.OpenDBI(TableChunks, 0)
		if lmdb.IsNotFound(err) {
			o.Logger.Printf("no %s table found in %s, creating it", TableChunks, o.Path)
			dbi, err = txn.OpenDBI(TableChunks, lmdb.Create)
		}
		return err
	})
	if err != nil {
		_ = env.Close()
		return nil, fmt.Errorf("lmdbstore: open %s table: %w", TableChunks, err)
	}

	s := &Store{
		env:         env,
		dbi:         dbi,
		path:        o.Path,
		logger:      o.Logger,
		writerShard: o.Readers,
	}
	s.resize = NewResizeCoordinator(o.Readers+1, info.MapSize, o.MapIncrement, env.SetMapSize, lmdb.IsMapFull)
	s.resize.onResize = func(oldSize, newSize int64) {
		s.logger.Printf("map full, resized %s from %d MiB to %d MiB", o.Path, oldSize>>20, newSize>>20)
		if o.OnResize != nil {
			o.OnResize(oldSize, newSize)
		}
	}
	s.readers = newWorkerPool(o.Readers, o.Readers*64, 0, false)
	s.writer = newWorkerPool(1, 256, s.writerShard, true)
	return s, nil
}

func openEnv(o Options, size int64) (*lmdb.Env, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("lmdbstore: new env: %w", err)
	}
	fail := func(step string, err error) (*lmdb.Env, error) {
		_ = env.Close()
		return nil, fmt.Errorf("lmdbstore: %s: %w", step, err)
	}
	if err := env.SetMaxDBs(1); err != nil {
		return fail("set max dbs", err)
	}
	if err := env.SetMaxReaders(o.Readers + 2); err != nil {
		return fail("set max readers", err)
	}
	if err := env.SetMapSize(size); err != nil {
		return fail("set map size", err)
	}
	// Read transactions are not tied to OS threads: goroutines move between them.
	flags := uint(lmdb.NoTLS)
	if runtime.GOOS != "windows" {
		flags |= lmdb.WriteMap
	}
	if err := env.Open(o.Path, flags, 0o644); err != nil {
		return fail("open "+o.Path, err)
	}
	return env, nil
}

// initialMapSize is the on-disk size rounded up to a whole increment, but at least min.
func initialMapSize(dir string, min, increment int64) (int64, error) {
	st, err := os.Stat(filepath.Join(dir, dataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return min, nil
	}
	if err != nil {
		return 0, err
	}
	size := (st.Size() + increment - 1) / increment * increment
	if size < min {
		size = min
	}
	return size, nil
}

type getResult struct {
	data  *chunk.Data
	found bool
	err   error
}

// GetChunk reads a chunk on the reader pool. A missing chunk is (nil, false, nil).
// If ctx ends first the call returns ctx.Err(); the read still completes and its result is dropped.
func (s *Store) GetChunk(ctx context.Context, x, z int32, dimension string) (*chunk.Data, bool, error) {
	if !s.gate.Enter() {
		return nil, false, storage.ErrClosed
	}
	done := make(chan getResult, 1)
	err := s.readers.submit(ctx, func(shard int) {
		defer s.gate.Leave()
		done <- s.get(shard, x, z, dimension)
	})
	if err != nil {
		s.gate.Leave()
		return nil, false, err
	}
	select {
	case r := <-done:
		return r.data, r.found, r.err
	case <-ctx.Done():
		s.dropped.Add(1)
		return nil, false, ctx.Err()
	}
}

func (s *Store) get(shard int, x, z int32, dimension string) (r getResult) {
	key := chunkkey.For(x, z, dimension)
	err := s.resize.Shared(shard, func() error {
		return s.env.View(func(txn *lmdb.Txn) error {
			txn.RawRead = true
			v, err := txn.Get(s.dbi, key[:])
			if lmdb.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			// v points into the map and is only valid inside this transaction.
			d, err := chunkcodec.Unmarshal(v)
			if err != nil {
				return err
			}
			r.data, r.found = d, true
			return nil
		})
	})
	s.reads.Add(1)
	if err != nil {
		r.err = fmt.Errorf("get chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	return r
}

// InsertChunk serializes c in the calling goroutine, then stores it on the writer.
// Writes are applied in submission order. A full map is grown transparently.
func (s *Store) InsertChunk(ctx context.Context, x, z int32, dimension string, c *chunk.Data) error {
	if c == nil {
		return fmt.Errorf("insert chunk %d,%d in %s: nil chunk", x, z, dimension)
	}
	val, err := chunkcodec.Marshal(c)
	if err != nil {
		return fmt.Errorf("insert chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	key := chunkkey.For(x, z, dimension)
	err = s.write(ctx, func(txn *lmdb.Txn) error {
		return txn.Put(s.dbi, key[:], val, 0)
	})
	if err != nil {
		return fmt.Errorf("insert chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	return nil
}

// DeleteChunk removes a chunk. Deleting a missing chunk is not an error.
func (s *Store) DeleteChunk(ctx context.Context, x, z int32, dimension string) error {
	key := chunkkey.For(x, z, dimension)
	err := s.write(ctx, func(txn *lmdb.Txn) error {
		err := txn.Del(s.dbi, key[:], nil)
		if lmdb.IsNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, fn lmdb.TxnOp) error {
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	done := make(chan error, 1)
	err := s.writer.submit(ctx, func(shard int) {
		defer s.gate.Leave()
		err := s.resize.Write(shard, func() error {
			// The writer goroutine is pinned to its OS thread (see newWorkerPool).
			return s.env.UpdateLocked(fn)
		})
		s.writes.Add(1)
		done <- err
	})
	if err != nil {
		s.gate.Leave()
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.dropped.Add(1)
		s.logger.Printf("caller gave up on a write to %s; it will still be applied", s.path)
		return ctx.Err()
	}
}

func (s *Store) Stats() (Stats, error) {
	st := Stats{
		MapSize:         s.resize.Size(),
		MapIncrement:    s.resize.Increment(),
		Resizes:         s.resize.Resizes(),
		Reads:           s.reads.Load(),
		Writes:          s.writes.Load(),
		Dropped:         s.dropped.Load(),
		ReadQueueDepth:  s.readers.depth(),
		WriteQueueDepth: s.writer.depth(),
	}
	if !s.gate.Enter() {
		return st, storage.ErrClosed
	}
	defer s.gate.Leave()
	err := s.resize.Shared(s.writerShard, func() error {
		return s.env.View(func(txn *lmdb.Txn) error {
			dbs, err := txn.Stat(s.dbi)
			if err != nil {
				return err
			}
			st.Entries = dbs.Entries
			return nil
		})
	})
	return st, err
}

// CopyTo writes a consistent copy of the environment into dir, which must exist and be empty.
func (s *Store) CopyTo(dir string) error {
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	defer s.gate.Leave()
	return s.resize.Shared(s.writerShard, func() error {
		if err := s.env.Copy(dir); err != nil {
			return fmt.Errorf("copy %s to %s: %w", s.path, dir, err)
		}
		return nil
	})
}

func (s *Store) Path() string { return s.path }

// Close rejects new calls, blocks until every in-flight call has finished, then
// stops the workers and closes the environment. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.gate.Shut()
		s.readers.stop()
		s.writer.stop()
		s.closeErr = s.env.Close()
	})
	return s.closeErr
}
