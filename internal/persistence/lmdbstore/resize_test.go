package lmdbstore

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errFakeFull = errors.New("fake map full")

func isFakeFull(err error) bool { return err == errFakeFull }

func TestResizeCoordinator_GrowsOneIncrementPerFullResult(t *testing.T) {
	var applied []int64
	c := NewResizeCoordinator(3, 1000, 100, func(n int64) error {
		applied = append(applied, n)
		return nil
	}, isFakeFull)

	fails := 3
	calls := 0
	err := c.Write(2, func() error {
		calls++
		if fails > 0 {
			fails--
			return errFakeFull
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if calls != 4 {
		t.Fatalf("op calls=%d want 4", calls)
	}
	if got := c.Size(); got != 1300 {
		t.Fatalf("size=%d want 1300", got)
	}
	if got := c.Resizes(); got != 3 {
		t.Fatalf("resizes=%d want 3", got)
	}
	want := []int64{1100, 1200, 1300}
	for i := range want {
		if applied[i] != want[i] {
			t.Fatalf("applied=%v want %v", applied, want)
		}
	}
}

func TestResizeCoordinator_ResizeErrorEndsLoop(t *testing.T) {
	boom := errors.New("boom")
	c := NewResizeCoordinator(1, 10, 10, func(int64) error { return boom }, isFakeFull)
	err := c.Write(0, func() error { return errFakeFull })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if c.Size() != 10 || c.Resizes() != 0 {
		t.Fatalf("size=%d resizes=%d after failed resize", c.Size(), c.Resizes())
	}
}

func TestResizeCoordinator_OtherErrorsPassThrough(t *testing.T) {
	other := errors.New("other")
	c := NewResizeCoordinator(1, 10, 10, func(int64) error {
		t.Fatalf("resize called for a non-full error")
		return nil
	}, isFakeFull)
	if err := c.Write(0, func() error { return other }); err != other {
		t.Fatalf("err=%v want other", err)
	}
}

func TestResizeCoordinator_ObserverSeesSizes(t *testing.T) {
	c := NewResizeCoordinator(1, 50, 25, func(int64) error { return nil }, isFakeFull)
	var gotOld, gotNew int64
	c.onResize = func(o, n int64) { gotOld, gotNew = o, n }
	if _, _, err := c.Grow(); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if gotOld != 50 || gotNew != 75 {
		t.Fatalf("observer got %d -> %d want 50 -> 75", gotOld, gotNew)
	}
}

func TestResizeCoordinator_ObserverRunsWithoutGuard(t *testing.T) {
	c := NewResizeCoordinator(2, 10, 10, func(int64) error { return nil }, isFakeFull)
	var blocked atomic.Int64
	c.onResize = func(o, n int64) {
		// A reader must get through while the observer is running.
		done := make(chan struct{})
		go func() {
			_ = c.Shared(1, func() error { return nil })
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			blocked.Add(1)
		}
	}

	if _, _, err := c.Grow(); err != nil {
		t.Fatalf("grow: %v", err)
	}
	full := true
	err := c.Write(0, func() error {
		if full {
			full = false
			return errFakeFull
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if c.Resizes() != 2 {
		t.Fatalf("resizes=%d want 2", c.Resizes())
	}
	if n := blocked.Load(); n != 0 {
		t.Fatalf("observer ran under the exclusive guard %d times", n)
	}
}

func TestResizeCoordinator_ResizeExcludesSharedOps(t *testing.T) {
	var resizing atomic.Bool
	var overlaps atomic.Int64
	c := NewResizeCoordinator(5, 0, 1, func(int64) error {
		resizing.Store(true)
		defer resizing.Store(false)
		for i := 0; i < 10; i++ {
			runtime.Gosched()
		}
		return nil
	}, isFakeFull)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for shard := 0; shard < 4; shard++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = c.Shared(shard, func() error {
					if resizing.Load() {
						overlaps.Add(1)
					}
					return nil
				})
			}
		}(shard)
	}

	full := 50
	err := c.Write(4, func() error {
		if full > 0 {
			full--
			return errFakeFull
		}
		return nil
	})
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n := overlaps.Load(); n != 0 {
		t.Fatalf("%d shared ops overlapped a resize", n)
	}
	if c.Size() != 50 {
		t.Fatalf("size=%d want 50", c.Size())
	}
}
