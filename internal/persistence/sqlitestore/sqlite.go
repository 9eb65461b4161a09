// Package sqlitestore keeps chunks in a single SQLite file. Reads go straight to the
// database; writes are batched by one writer goroutine.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelvault.ai/internal/persistence/chunkcodec"
	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/chunk"
)

const (
	schemaVersion = 1
	queueCapacity = 4096
	commitEvery   = 256
)

type Store struct {
	db   *sql.DB
	path string

	ch   chan writeReq
	wg   sync.WaitGroup
	once sync.Once
	gate storage.Gate

	writes      atomic.Uint64
	writeErrors atomic.Uint64
}

var _ storage.Storage = (*Store)(nil)

type writeReq struct {
	x, z      int32
	dimension string
	value     []byte
	done      chan error
}

type Stats struct {
	Entries       int64
	Writes        uint64
	WriteErrors   uint64
	QueueDepth    int
	QueueCapacity int
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:   db,
		path: path,
		ch:   make(chan writeReq, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			dimension TEXT NOT NULL,
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (dimension, x, z)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	var v string
	err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)`, strconv.Itoa(schemaVersion))
		return err
	case err != nil:
		return err
	case v != strconv.Itoa(schemaVersion):
		return fmt.Errorf("sqlitestore: schema version %s, want %d", v, schemaVersion)
	}
	return nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.gate.Shut()
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) GetChunk(ctx context.Context, x, z int32, dimension string) (*chunk.Data, bool, error) {
	if !s.gate.Enter() {
		return nil, false, storage.ErrClosed
	}
	defer s.gate.Leave()

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM chunks WHERE dimension=? AND x=? AND z=?`, dimension, x, z).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	d, err := chunkcodec.Unmarshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("get chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	return d, true, nil
}

// InsertChunk returns once the batch holding the chunk has committed.
func (s *Store) InsertChunk(ctx context.Context, x, z int32, dimension string, c *chunk.Data) error {
	if c == nil {
		return fmt.Errorf("insert chunk %d,%d in %s: nil chunk", x, z, dimension)
	}
	val, err := chunkcodec.Marshal(c)
	if err != nil {
		return fmt.Errorf("insert chunk %d,%d in %s: %w", x, z, dimension, err)
	}
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	r := writeReq{x: x, z: z, dimension: dimension, value: val, done: make(chan error, 1)}
	select {
	case s.ch <- r:
	case <-ctx.Done():
		s.gate.Leave()
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Stats() (Stats, error) {
	st := Stats{
		Writes:        s.writes.Load(),
		WriteErrors:   s.writeErrors.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
	if !s.gate.Enter() {
		return st, storage.ErrClosed
	}
	defer s.gate.Leave()
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&st.Entries)
	return st, err
}

// FileName is the database file CopyTo writes inside the target directory.
const FileName = "chunks.sqlite"

// CopyTo writes a compacted, consistent copy of the database into dir.
func (s *Store) CopyTo(dir string) error {
	if !s.gate.Enter() {
		return storage.ErrClosed
	}
	defer s.gate.Leave()
	if _, err := s.db.Exec(`VACUUM INTO ?`, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("sqlitestore: copy to %s: %w", dir, err)
	}
	return nil
}

func (s *Store) loop() {
	ctx := context.Background()

	upsert, err := s.db.Prepare(`INSERT OR REPLACE INTO chunks(dimension,x,z,value,updated_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		for r := range s.ch {
			s.finish([]writeReq{r}, err)
		}
		return
	}
	defer upsert.Close()

	batch := make([]writeReq, 0, commitEvery)
	for first := range s.ch {
		batch = append(batch[:0], first)
	fill:
		for len(batch) < commitEvery {
			select {
			case r, ok := <-s.ch:
				if !ok {
					break fill
				}
				batch = append(batch, r)
			default:
				break fill
			}
		}
		s.finish(batch, s.apply(ctx, upsert, batch))
	}
}

func (s *Store) apply(ctx context.Context, upsert *sql.Stmt, batch []writeReq) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	stmt := tx.Stmt(upsert)
	for _, r := range batch {
		if _, err := stmt.Exec(r.dimension, r.x, r.z, r.value, now); err != nil {
			return fmt.Errorf("insert chunk %d,%d in %s: %w", r.x, r.z, r.dimension, err)
		}
	}
	return tx.Commit()
}

// finish answers every request of a batch with the batch's outcome.
func (s *Store) finish(batch []writeReq, err error) {
	for _, r := range batch {
		if err != nil {
			s.writeErrors.Add(1)
		} else {
			s.writes.Add(1)
		}
		r.done <- err
		s.gate.Leave()
	}
}
