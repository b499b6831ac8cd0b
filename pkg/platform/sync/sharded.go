package sync

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// KeyedMutex serializes work per key without a global lock. Keys are
// spread over a fixed set of RW shards, so unrelated keys rarely contend.
type KeyedMutex struct {
	shards [shardCount]sync.RWMutex
}

// NewKeyedMutex creates a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the write lock of key's shard.
func (m *KeyedMutex) Lock(key string) { m.shards[m.shardFor(key)].Lock() }

// Unlock releases the write lock of key's shard.
func (m *KeyedMutex) Unlock(key string) { m.shards[m.shardFor(key)].Unlock() }

// RLock acquires the read lock of key's shard.
func (m *KeyedMutex) RLock(key string) { m.shards[m.shardFor(key)].RLock() }

// RUnlock releases the read lock of key's shard.
func (m *KeyedMutex) RUnlock(key string) { m.shards[m.shardFor(key)].RUnlock() }

// Do runs fn while holding the write lock for key.
func (m *KeyedMutex) Do(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

// Empty keys map to shard 0.
func (m *KeyedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
