package lmdbstore

import "sync"

// cacheLine keeps neighbouring shards off the same cache line.
const cacheLine = 64

type paddedRWMutex struct {
	sync.RWMutex
	_ [cacheLine - 24]byte
}

// ShardedRWMutex is a reader/writer lock whose read side is split across shards.
// Readers lock one shard (normally their worker index); a writer locks all of them,
// in order, so it excludes every reader.
type ShardedRWMutex struct {
	shards []paddedRWMutex
}

func NewShardedRWMutex(n int) *ShardedRWMutex {
	if n < 1 {
		n = 1
	}
	return &ShardedRWMutex{shards: make([]paddedRWMutex, n)}
}

func (m *ShardedRWMutex) Shards() int { return len(m.shards) }

func (m *ShardedRWMutex) RLock(shard int) {
	m.shards[m.index(shard)].RLock()
}

func (m *ShardedRWMutex) RUnlock(shard int) {
	m.shards[m.index(shard)].RUnlock()
}

func (m *ShardedRWMutex) Lock() {
	for i := range m.shards {
		m.shards[i].Lock()
	}
}

func (m *ShardedRWMutex) Unlock() {
	for i := len(m.shards) - 1; i >= 0; i-- {
		m.shards[i].Unlock()
	}
}

func (m *ShardedRWMutex) index(shard int) int {
	if shard < 0 {
		shard = -shard
	}
	return shard % len(m.shards)
}
