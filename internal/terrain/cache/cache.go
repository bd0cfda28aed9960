// Package cache is the generation cache: a bounded, sharded LRU that
// memoizes expensive fields and coalesces concurrent misses so each key is
// computed once.
package cache

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one cached field slab. Space separates the key sets of
// different owners (graphs, engines) sharing one cache.
type Key struct {
	Space uint64
	Field uint32
	X     int32
	Y     int32
	Z     int32
}

func (k Key) hash() uint64 {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], k.Space)
	binary.LittleEndian.PutUint32(b[8:], k.Field)
	binary.LittleEndian.PutUint32(b[12:], uint32(k.X))
	binary.LittleEndian.PutUint32(b[16:], uint32(k.Y))
	binary.LittleEndian.PutUint32(b[20:], uint32(k.Z))
	return xxhash.Sum64(b[:])
}

type Config struct {
	Capacity int // total entries across shards
	Shards   int
}

type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Computes  int64 `json:"computes"`
	Coalesced int64 `json:"coalesced"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

type entry[V any] struct {
	key   Key
	val   V
	err   error
	ready chan struct{} // closed once val/err are published

	// LRU links; only completed entries are linked.
	prev, next *entry[V]
	linked     bool
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[Key]*entry[V]
	cap   int

	// head is most recently used.
	head, tail *entry[V]
	size       int
}

// Cache is safe for concurrent use. A nil *Cache is valid and computes every
// request directly.
type Cache[V any] struct {
	shards []*shard[V]

	hits      atomic.Int64
	misses    atomic.Int64
	computes  atomic.Int64
	coalesced atomic.Int64
	evictions atomic.Int64
}

func New[V any](cfg Config) *Cache[V] {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.Capacity < cfg.Shards {
		cfg.Capacity = cfg.Shards
	}
	per := (cfg.Capacity + cfg.Shards - 1) / cfg.Shards
	c := &Cache[V]{shards: make([]*shard[V], cfg.Shards)}
	for i := range c.shards {
		c.shards[i] = &shard[V]{items: map[Key]*entry[V]{}, cap: per}
	}
	return c
}

func (c *Cache[V]) shardFor(k Key) *shard[V] {
	return c.shards[k.hash()%uint64(len(c.shards))]
}

// GetOrCompute returns the value for k, computing it with fn on a miss. A
// second caller arriving while fn runs waits for that result instead of
// calling fn again. Errors are returned to every waiter and not cached.
func (c *Cache[V]) GetOrCompute(k Key, fn func() (V, error)) (V, error) {
	if c == nil {
		return fn()
	}
	s := c.shardFor(k)

	s.mu.Lock()
	if e, ok := s.items[k]; ok {
		if e.linked {
			s.moveToFront(e)
			s.mu.Unlock()
			c.hits.Add(1)
			return e.val, nil
		}
		s.mu.Unlock()
		c.coalesced.Add(1)
		<-e.ready
		return e.val, e.err
	}
	e := &entry[V]{key: k, ready: make(chan struct{})}
	s.items[k] = e
	s.mu.Unlock()
	c.misses.Add(1)

	c.computes.Add(1)
	val, err := c.run(fn)

	s.mu.Lock()
	e.val, e.err = val, err
	if err != nil {
		delete(s.items, k)
	} else {
		s.pushFront(e)
		c.evictions.Add(int64(s.evictLocked()))
	}
	close(e.ready)
	s.mu.Unlock()
	return val, err
}

func (c *Cache[V]) run(fn func() (V, error)) (val V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache compute panicked: %v", r)
		}
	}()
	return fn()
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.size
		s.mu.Unlock()
	}
	return n
}

func (c *Cache[V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Coalesced: c.coalesced.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

func (s *shard[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	e.linked = true
	s.size++
}

func (s *shard[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
	e.linked = false
	s.size--
}

func (s *shard[V]) moveToFront(e *entry[V]) {
	if s.head == e {
		return
	}
	s.unlink(e)
	s.pushFront(e)
}

// evictLocked drops least recently used completed entries over capacity.
// In-flight entries are not linked and so never evicted.
func (s *shard[V]) evictLocked() int {
	n := 0
	for s.size > s.cap && s.tail != nil {
		e := s.tail
		s.unlink(e)
		delete(s.items, e.key)
		n++
	}
	return n
}
