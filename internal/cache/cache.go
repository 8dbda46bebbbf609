// Package cache provides the in-process TTL cache backing store reads.
// It is sharded by FNV key hash so concurrent requests for different pages
// do not contend on one lock.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/contentd/internal/domain"
)

const (
	defaultShardCount      = 16
	defaultTTL             = 5 * time.Minute
	defaultCleanupInterval = 1 * time.Minute
)

// entry is one cached value with its expiry.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// shard is one lock domain of the cache.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// ShardedCache is a thread-safe TTL cache split across several shards.
type ShardedCache struct {
	shards []*shard
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupRunning  bool
	cleanupMu       sync.Mutex
	cleanupWg       sync.WaitGroup
}

// NewShardedCache creates a cache with the given shard count and entry TTL.
// Zero or negative arguments select the defaults.
func NewShardedCache(shardCount int, ttl time.Duration) *ShardedCache {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return &ShardedCache{
		shards:          shards,
		ttl:             ttl,
		cleanupInterval: defaultCleanupInterval,
		cleanupStop:     make(chan struct{}),
	}
}

func (c *ShardedCache) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get implements domain.Cache.
func (c *ShardedCache) Get(ctx context.Context, key string) (interface{}, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}

	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		// Expired entries stay until the cleanup worker collects them;
		// deleting here would need a write lock on the read path.
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set implements domain.Cache.
func (c *ShardedCache) Set(ctx context.Context, key string, value interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = &entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	s.mu.Unlock()
	return nil
}

// Delete implements domain.Cache.
func (c *ShardedCache) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// CleanExpired implements domain.Cache.
func (c *ShardedCache) CleanExpired(ctx context.Context) error {
	now := time.Now()
	for _, s := range c.shards {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		for key, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// StartCleanupWorker launches the background goroutine collecting expired
// entries. Calling it twice is a no-op.
func (c *ShardedCache) StartCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if c.cleanupRunning {
		return
	}
	c.cleanupRunning = true
	c.cleanupStop = make(chan struct{})

	c.cleanupWg.Add(1)
	go c.cleanupLoop()
}

// StopCleanupWorker stops the cleanup goroutine and waits for it.
func (c *ShardedCache) StopCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if !c.cleanupRunning {
		return
	}
	close(c.cleanupStop)
	c.cleanupWg.Wait()
	c.cleanupRunning = false
}

func (c *ShardedCache) cleanupLoop() {
	defer c.cleanupWg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.cleanupStop:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
		}
	}
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// GetStats returns current cache statistics.
func (c *ShardedCache) GetStats() Stats {
	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	for _, s := range c.shards {
		s.mu.RLock()
		stats.Entries += len(s.entries)
		s.mu.RUnlock()
	}
	return stats
}

// Clear drops every entry, keeping the shards.
func (c *ShardedCache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*entry)
		s.mu.Unlock()
	}
}

// Compile-time interface check.
var _ domain.Cache = (*ShardedCache)(nil)
