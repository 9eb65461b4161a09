package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/chunk"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "chunks.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_RoundTripAndReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	if _, ok, err := s.GetChunk(ctx, 0, 0, "overworld"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	d := chunk.New(-5, 9)
	d.SetBlock(2, 3, 4, 17)
	if err := s.InsertChunk(ctx, -5, 9, "overworld", d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok, err := s.GetChunk(ctx, -5, 9, "overworld")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Block(2, 3, 4) != 17 {
		t.Fatalf("block=%d want 17", got.Block(2, 3, 4))
	}
	if _, ok, _ := s.GetChunk(ctx, -5, 9, "the_end"); ok {
		t.Fatalf("chunk leaked across dimensions")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, ok, err = s2.GetChunk(ctx, -5, 9, "overworld")
	if err != nil || !ok || got.Block(2, 3, 4) != 17 {
		t.Fatalf("after reopen: ok=%v err=%v", ok, err)
	}
}

func TestStore_ConcurrentWritesAreBatched(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := chunk.New(int32(i), 0)
			d.SetBlock(0, 0, 0, uint16(i))
			if err := s.InsertChunk(ctx, int32(i), 0, "overworld", d); err != nil {
				t.Errorf("insert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Entries != 200 || st.Writes != 200 || st.WriteErrors != 0 {
		t.Fatalf("stats=%+v", st)
	}
	got, _, err := s.GetChunk(ctx, 150, 0, "overworld")
	if err != nil || got.Block(0, 0, 0) != 150 {
		t.Fatalf("chunk 150: err=%v", err)
	}
}

func TestStore_ClosedRejectsCalls(t *testing.T) {
	s, _ := openTemp(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ctx := context.Background()
	if err := s.InsertChunk(ctx, 0, 0, "overworld", chunk.New(0, 0)); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("insert after close: %v", err)
	}
	if _, _, err := s.GetChunk(ctx, 0, 0, "overworld"); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("get after close: %v", err)
	}
}

func TestStore_CopyTo(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	if err := s.InsertChunk(ctx, 3, 3, "overworld", chunk.New(3, 3)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dir := t.TempDir()
	if err := s.CopyTo(dir); err != nil {
		t.Fatalf("copy: %v", err)
	}
	c, err := Open(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("open copy: %v", err)
	}
	defer c.Close()
	if _, ok, err := c.GetChunk(ctx, 3, 3, "overworld"); !ok || err != nil {
		t.Fatalf("copy get: ok=%v err=%v", ok, err)
	}
}
