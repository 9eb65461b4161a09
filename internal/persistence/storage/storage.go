// Package storage defines the contract every chunk backend implements.
package storage

import (
	"context"
	"errors"
	"sync"

	"voxelvault.ai/internal/world/chunk"
)

var (
	ErrClosed   = errors.New("storage: closed")
	ErrReadOnly = errors.New("storage: read-only backend")
)

// Storage persists one chunk per (x, z, dimension).
//
// GetChunk reports a missing chunk as (nil, false, nil). Callers should treat any
// error from GetChunk as "regenerate the chunk" and any error from InsertChunk as
// "log and continue"; neither should stop the world.
type Storage interface {
	GetChunk(ctx context.Context, x, z int32, dimension string) (*chunk.Data, bool, error)
	InsertChunk(ctx context.Context, x, z int32, dimension string, c *chunk.Data) error
	Close() error
}

// Gate tracks in-flight operations so that Close can drain them.
// Enter fails once Shut has been called; Shut blocks until every Enter has a matching Leave.
type Gate struct {
	mu       sync.RWMutex
	shutting bool
	inflight sync.WaitGroup
}

func (g *Gate) Enter() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.shutting {
		return false
	}
	g.inflight.Add(1)
	return true
}

func (g *Gate) Leave() { g.inflight.Done() }

// Shut reports false if the gate was already shut.
func (g *Gate) Shut() bool {
	g.mu.Lock()
	already := g.shutting
	g.shutting = true
	g.mu.Unlock()
	if already {
		return false
	}
	g.inflight.Wait()
	return true
}

func (g *Gate) Closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shutting
}
