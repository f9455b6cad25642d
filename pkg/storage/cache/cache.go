// Package cache implements the per-collection document cache: a
// content-addressed, sharded cache from document key to encoded document
// body, with a blacklist mechanism that prevents stale reads from
// repopulating the cache while a write is in flight under an uncommitted
// transaction.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
)

// Outcome is the result of a cache operation.
type Outcome int

const (
	Hit Outcome = iota
	Miss
	Ok
	LockTimeout
	Shutdown
)

const shardCount = 16

// Cache is a content-addressed, sharded document cache. A handle is created
// lazily per collection when caching is enabled for it.
type Cache struct {
	shards   [shardCount]shard
	shutdown bool
	mu       sync.RWMutex // guards shutdown
}

type shard struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, []byte]
	blacklist map[string]struct{}
}

// New creates a document cache with capacity documents spread evenly across
// its internal shards.
func New(capacity int) *Cache {
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	c := &Cache{}
	for i := range c.shards {
		l, err := lru.New[string, []byte](perShard)
		if err != nil {
			// Only returns an error for a non-positive size, which perShard
			// guards against above.
			panic(err)
		}
		c.shards[i].lru = l
		c.shards[i].blacklist = make(map[string]struct{})
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv32(key)
	return &c.shards[h%shardCount]
}

// Find looks up key. A LockTimeout result means a concurrent writer
// currently holds the bucket's lock; the caller may spin-yield and retry,
// per the one-retry contract of the surrounding physical-collection layer.
func (c *Cache) Find(key string) ([]byte, Outcome) {
	if c.isShutdown() {
		return nil, Shutdown
	}
	s := c.shardFor(key)
	if !s.mu.TryLock() {
		metrics.CacheRequestsTotal.WithLabelValues("lock_timeout").Inc()
		return nil, LockTimeout
	}
	defer s.mu.Unlock()

	v, ok := s.lru.Get(key)
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, Miss
	}
	metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return v, Hit
}

// Insert populates the cache for key with value, unless key is currently
// blacklisted. There is no epoch: a blacklist entry stays until
// ClearBlacklist removes it. On LockTimeout, one spin-yield and one retry
// is the documented caller contract; Insert itself does not retry.
func (c *Cache) Insert(key string, value []byte) Outcome {
	if c.isShutdown() {
		return Shutdown
	}
	s := c.shardFor(key)
	if !s.mu.TryLock() {
		return LockTimeout
	}
	defer s.mu.Unlock()

	if _, blacklisted := s.blacklist[key]; blacklisted {
		return Ok // no-op: already a fresh value or a pending write owns this key
	}
	s.lru.Add(key, value)
	return Ok
}

// Blacklist forbids key from being (re-)inserted until ClearBlacklist(key)
// is called, which a writer does after commit or abort. This prevents a
// concurrent reader from repopulating the cache with a stale body while the
// write that invalidated it is still uncommitted.
func (c *Cache) Blacklist(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
	s.blacklist[key] = struct{}{}
}

// ClearBlacklist lifts the blacklist entry placed by Blacklist, called after
// the writing transaction commits or aborts.
func (c *Cache) ClearBlacklist(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, key)
}

// Shutdown marks the cache closed; every subsequent Find/Insert returns
// Shutdown instead of touching shard state.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
	log.WithComponent("cache").Info().Msg("document cache shut down")
}

func (c *Cache) isShutdown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdown
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
