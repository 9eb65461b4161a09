// Package leveldbstore keeps chunks in a LevelDB directory keyed by chunkkey.
package leveldbstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"voxelvault.ai/internal/persistence/chunkcodec"
	"voxelvault.ai/internal/persistence/chunkkey"
	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/chunk"
)

const copyBatch = 1024

type Store struct {
	db   *leveldb.DB
	path string
	gate storage.Gate
	sync bool
}

var _ storage.Storage = (*Store)(nil)

type Options struct {
	// Sync fsyncs every write before InsertChunk returns.
	Sync bool
}

func Open(dir string, o Options) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("leveldbstore: empty path")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{
		// Values are already zstd frames.
		Compression: opt.NoCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("leveldbstore: open %s: %w", dir, err)
	}
	return &Store{db: db, path: dir, sync: o.Sync}, nil
}

func (s *Store) GetChunk(ctx context.Context, x, z int32, dimension string) (*chunk.Data, bool, error) {
	if !s.gate.Enter() {
		return nil, false, storage.ErrClosed
	}
	defer s.gate.Leave()
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	key := chunkkey.For(x, z, dimension)
	raw, err := s.db.Get(key[:], nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	d, err := chunkcodec.Unmarshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("get chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	return d, true, nil
}

func (s *Store) InsertChunk(ctx context.Context, x, z int32, dimension string, c *chunk.Data) error {
	if c == nil {
		return fmt.Errorf("insert chunk %d,%d in %s: nil chunk", x, z, dimension)
	}
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	defer s.gate.Leave()
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := chunkcodec.Marshal(c)
	if err != nil {
		return fmt.Errorf("insert chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	key := chunkkey.For(x, z, dimension)
	if err := s.db.Put(key[:], val, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return fmt.Errorf("insert chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	return nil
}

func (s *Store) DeleteChunk(ctx context.Context, x, z int32, dimension string) error {
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	defer s.gate.Leave()
	key := chunkkey.For(x, z, dimension)
	return s.db.Delete(key[:], &opt.WriteOptions{Sync: s.sync})
}

// Entries counts stored chunks by walking the whole key space.
func (s *Store) Entries() (int, error) {
	if !s.gate.Enter() {
		return 0, storage.ErrClosed
	}
	defer s.gate.Leave()
	it := s.db.NewIterator(nil, nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// CopyTo writes a point-in-time copy into a new LevelDB at dir.
func (s *Store) CopyTo(dir string) error {
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	defer s.gate.Leave()

	snap, err := s.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	dst, err := leveldb.OpenFile(dir, &opt.Options{Compression: opt.NoCompression, ErrorIfExist: true})
	if err != nil {
		return fmt.Errorf("leveldbstore: open copy %s: %w", dir, err)
	}
	it := snap.NewIterator(nil, nil)
	defer it.Release()
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Put(it.Key(), it.Value())
		if batch.Len() >= copyBatch {
			if err := dst.Write(batch, nil); err != nil {
				_ = dst.Close()
				return err
			}
			batch.Reset()
		}
	}
	if err := it.Error(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if !s.gate.Shut() {
		return nil
	}
	return s.db.Close()
}
