// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a thread-safe sharded LRU cache.
//
// The runtime uses it to cache compiled compute pipelines per device: the
// key is the kernel identity plus its thread-group variant, the value is
// the live pipeline object. Because cached values may own GPU resources,
// the cache supports an eviction callback so evicted entries can be
// destroyed instead of leaking.
package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const (
	// shardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16

	// DefaultCapacity is the default maximum entries per shard.
	DefaultCapacity = 64

	shardMask = shardCount - 1
)

// Hasher computes a hash for a key, used for shard selection.
type Hasher[K any] func(K) uint64

// StringHasher computes the FNV-1a hash of a string key.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}

// Sharded is a thread-safe, sharded LRU cache.
//
// Each shard has its own mutex, so concurrent access to different keys
// rarely contends. Eviction is LRU per shard with a configurable
// capacity; evicted values are passed to the OnEvict callback (if set)
// with no shard lock held.
type Sharded[K comparable, V any] struct {
	shards   [shardCount]*shard[K, V]
	hasher   Hasher[K]
	capacity int

	// OnEvict, if non-nil, is called for every value dropped by LRU
	// eviction or Clear. It is not called for Delete, whose caller
	// already holds the value.
	OnEvict func(K, V)

	hits   atomic.Uint64
	misses atomic.Uint64
}

type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	lru     *lruList[K]
}

type entry[K comparable, V any] struct {
	value V
	node  *lruNode[K]
}

// NewSharded creates a sharded cache with the given per-shard capacity.
// If capacity <= 0, DefaultCapacity is used.
func NewSharded[K comparable, V any](capacity int, hasher Hasher[K]) *Sharded[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Sharded[K, V]{hasher: hasher, capacity: capacity}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{
			entries: make(map[K]*entry[K, V]),
			lru:     newLRUList[K](),
		}
	}
	return c
}

func (c *Sharded[K, V]) getShard(key K) *shard[K, V] {
	return c.shards[c.hasher(key)&shardMask]
}

// Get retrieves a cached value and marks it most recently used.
func (c *Sharded[K, V]) Get(key K) (V, bool) {
	s := c.getShard(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	s.lru.MoveToFront(e.node)
	v := e.value
	s.mu.Unlock()
	c.hits.Add(1)
	return v, true
}

// GetOrCreate returns the cached value for key, creating it with create
// on a miss. The create function runs with the shard lock held so that
// concurrent callers never build the same value twice; evicted values
// are collected under the lock and passed to OnEvict after release.
//
// If create fails, nothing is cached and the error is returned.
func (c *Sharded[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	s := c.getShard(key)

	var evicted []evictedPair[K, V]
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.lru.MoveToFront(e.node)
		v := e.value
		s.mu.Unlock()
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err := create()
	if err != nil {
		s.mu.Unlock()
		var zero V
		return zero, err
	}
	evicted = s.insert(key, v, c.capacity, evicted)
	s.mu.Unlock()

	c.notifyEvicted(evicted)
	return v, nil
}

// Set stores a value, evicting least recently used entries if the shard
// is over capacity.
func (c *Sharded[K, V]) Set(key K, value V) {
	s := c.getShard(key)

	var evicted []evictedPair[K, V]
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.value = value
		s.lru.MoveToFront(e.node)
		s.mu.Unlock()
		return
	}
	evicted = s.insert(key, value, c.capacity, evicted)
	s.mu.Unlock()

	c.notifyEvicted(evicted)
}

type evictedPair[K comparable, V any] struct {
	key   K
	value V
}

// insert adds a new entry, appending any evicted pairs to out.
// The caller must hold s.mu.
func (s *shard[K, V]) insert(key K, value V, capacity int, out []evictedPair[K, V]) []evictedPair[K, V] {
	for s.lru.Len() >= capacity {
		oldest, ok := s.lru.RemoveOldest()
		if !ok {
			break
		}
		if e, ok := s.entries[oldest]; ok {
			out = append(out, evictedPair[K, V]{oldest, e.value})
			delete(s.entries, oldest)
		}
	}
	node := s.lru.PushFront(key)
	s.entries[key] = &entry[K, V]{value: value, node: node}
	return out
}

func (c *Sharded[K, V]) notifyEvicted(evicted []evictedPair[K, V]) {
	if c.OnEvict == nil {
		return
	}
	for _, p := range evicted {
		c.OnEvict(p.key, p.value)
	}
}

// Delete removes an entry, returning its value if present. OnEvict is
// not called; the returned value transfers ownership to the caller.
func (c *Sharded[K, V]) Delete(key K) (V, bool) {
	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.lru.Remove(e.node)
	delete(s.entries, key)
	return e.value, true
}

// Clear removes all entries, passing each value to OnEvict.
func (c *Sharded[K, V]) Clear() {
	for _, s := range c.shards {
		var evicted []evictedPair[K, V]
		s.mu.Lock()
		for k, e := range s.entries {
			evicted = append(evicted, evictedPair[K, V]{k, e.value})
		}
		s.entries = make(map[K]*entry[K, V])
		s.lru.Clear()
		s.mu.Unlock()
		c.notifyEvicted(evicted)
	}
}

// Len returns the total number of entries across all shards.
func (c *Sharded[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Stats reports cumulative hit/miss counters.
func (c *Sharded[K, V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
