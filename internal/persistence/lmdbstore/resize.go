package lmdbstore

import (
	"fmt"
	"sync/atomic"
)

// ResizeCoordinator arbitrates between ordinary transactions and growth of the
// memory map. Ordinary operations run under a shared guard; growth takes the
// exclusive guard, so a resize never overlaps a read or write transaction.
type ResizeCoordinator struct {
	lock      *ShardedRWMutex
	size      atomic.Int64
	increment int64

	// resize applies a new map size to the engine. Called only under the exclusive guard.
	resize func(newSize int64) error
	// isFull reports the engine's map-full condition.
	isFull func(error) bool
	// onResize, if set, observes every completed growth after the exclusive guard is released.
	onResize func(oldSize, newSize int64)

	resizes atomic.Uint64
}

func NewResizeCoordinator(shards int, size, increment int64, resize func(int64) error, isFull func(error) bool) *ResizeCoordinator {
	c := &ResizeCoordinator{
		lock:      NewShardedRWMutex(shards),
		increment: increment,
		resize:    resize,
		isFull:    isFull,
	}
	c.size.Store(size)
	return c
}

func (c *ResizeCoordinator) Size() int64      { return c.size.Load() }
func (c *ResizeCoordinator) Increment() int64 { return c.increment }
func (c *ResizeCoordinator) Resizes() uint64  { return c.resizes.Load() }

// Shared runs op under the read guard of shard.
func (c *ResizeCoordinator) Shared(shard int, op func() error) error {
	c.lock.RLock(shard)
	defer c.lock.RUnlock(shard)
	return op()
}

// Write runs op under the read guard and, for as long as op reports the map full,
// grows the map by one increment and retries op under the exclusive guard.
// The loop is unbounded: it ends when op fits or when resizing itself fails.
func (c *ResizeCoordinator) Write(shard int, op func() error) error {
	err := c.Shared(shard, op)
	for c.isFull(err) {
		var g growth
		g, err = c.growAndRetry(op)
		c.notify(g)
	}
	return err
}

// Grow takes the exclusive guard and grows the map by one increment.
func (c *ResizeCoordinator) Grow() (oldSize, newSize int64, err error) {
	c.lock.Lock()
	g, err := c.growLocked()
	c.lock.Unlock()
	c.notify(g)
	return g.oldSize, g.newSize, err
}

type growth struct {
	oldSize, newSize int64
	grown            bool
}

func (c *ResizeCoordinator) growAndRetry(op func() error) (growth, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	g, err := c.growLocked()
	if err != nil {
		return g, err
	}
	return g, op()
}

func (c *ResizeCoordinator) growLocked() (growth, error) {
	oldSize := c.size.Load()
	newSize := oldSize + c.increment
	if err := c.resize(newSize); err != nil {
		return growth{oldSize: oldSize, newSize: oldSize}, fmt.Errorf("resize map %d -> %d: %w", oldSize, newSize, err)
	}
	c.size.Store(newSize)
	c.resizes.Add(1)
	return growth{oldSize: oldSize, newSize: newSize, grown: true}, nil
}

// notify runs the observer with no guard held, so it may block on IO.
func (c *ResizeCoordinator) notify(g growth) {
	if g.grown && c.onResize != nil {
		c.onResize(g.oldSize, g.newSize)
	}
}
