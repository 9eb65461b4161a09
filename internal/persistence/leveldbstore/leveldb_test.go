package leveldbstore

import (
	"context"
	"errors"
	"testing"

	"voxelvault.ai/internal/persistence/storage"
	"voxelvault.ai/internal/world/chunk"
)

func TestStore_InsertGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := s.GetChunk(ctx, 1, 2, "overworld"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	d := chunk.New(1, 2)
	d.SetBlock(15, 383, 15, 3)
	if err := s.InsertChunk(ctx, 1, 2, "overworld", d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertChunk(ctx, 1, 2, "the_nether", chunk.New(1, 2)); err != nil {
		t.Fatalf("insert nether: %v", err)
	}
	if n, err := s.Entries(); err != nil || n != 2 {
		t.Fatalf("entries=%d err=%v want 2", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dir, Options{Sync: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok, err := s.GetChunk(ctx, 1, 2, "overworld")
	if err != nil || !ok || got.Block(15, 383, 15) != 3 {
		t.Fatalf("after reopen: ok=%v err=%v", ok, err)
	}
	if err := s.DeleteChunk(ctx, 1, 2, "overworld"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetChunk(ctx, 1, 2, "overworld"); ok {
		t.Fatalf("chunk present after delete")
	}
}

func TestStore_ClosedRejectsCalls(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, _, err := s.GetChunk(context.Background(), 0, 0, "overworld"); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("get after close: %v", err)
	}
}

func TestStore_CopyTo(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	for i := int32(0); i < 5; i++ {
		if err := s.InsertChunk(ctx, i, i, "overworld", chunk.New(i, i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	dst := t.TempDir() + "/copy"
	if err := s.CopyTo(dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	c, err := Open(dst, Options{})
	if err != nil {
		t.Fatalf("open copy: %v", err)
	}
	defer c.Close()
	if n, err := c.Entries(); err != nil || n != 5 {
		t.Fatalf("copy entries=%d err=%v", n, err)
	}
}
