// Package permcache memoizes guild-level permission resolution.
//
// Entries live in a ristretto cache keyed by guild, guild generation and user.
// Invalidation is wholesale per guild: bumping the generation makes every older
// key unreachable, and ristretto ages them out on its own.
package permcache

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"discord-entity-cache/internal/flags"

	"github.com/dgraph-io/ristretto"
)

// Config for cache initialization
type Config struct {
	NumCounters int64 // Number of keys to track frequency (default: 100k)
	MaxCost     int64 // Max number of memoized results (default: 65536)
}

// Cache is safe for concurrent use
type Cache struct {
	store *ristretto.Cache

	mu          sync.Mutex
	generations map[uint64]uint64
	next        uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats is a point-in-time hit/miss snapshot
type Stats struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// New creates a permission memo
func New(cfg Config) (*Cache, error) {
	if cfg.NumCounters == 0 {
		cfg.NumCounters = 100000
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = 1 << 16
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
		// Cost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create permission cache: %w", err)
	}

	return &Cache{
		store:       store,
		generations: make(map[uint64]uint64),
	}, nil
}

// Get returns the memoized permissions of userID in guildID
func (c *Cache) Get(guildID, userID uint64) (flags.Permission, bool) {
	if val, found := c.store.Get(c.key(guildID, userID)); found {
		if p, ok := val.(flags.Permission); ok {
			c.hits.Add(1)
			return p, true
		}
	}
	c.misses.Add(1)
	return 0, false
}

// Set memoizes a resolved permission set. Writes are buffered; call Wait when
// a subsequent Get must observe them.
func (c *Cache) Set(guildID, userID uint64, p flags.Permission) {
	c.store.Set(c.key(guildID, userID), p, 1)
}

// Invalidate drops every memoized result of a guild
func (c *Cache) Invalidate(guildID uint64) {
	c.mu.Lock()
	c.next++
	c.generations[guildID] = c.next
	c.mu.Unlock()
}

// Forget invalidates a guild and stops tracking it
func (c *Cache) Forget(guildID uint64) {
	c.mu.Lock()
	delete(c.generations, guildID)
	c.mu.Unlock()
}

// Wait blocks until buffered writes are applied
func (c *Cache) Wait() {
	c.store.Wait()
}

// Close stops ristretto's background goroutines
func (c *Cache) Close() {
	c.store.Close()
}

func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func (c *Cache) key(guildID, userID uint64) string {
	c.mu.Lock()
	gen, ok := c.generations[guildID]
	if !ok {
		// Generations are never reused, so a forgotten guild can't see stale keys
		c.next++
		gen = c.next
		c.generations[guildID] = gen
	}
	c.mu.Unlock()

	buf := make([]byte, 0, 64)
	buf = strconv.AppendUint(buf, guildID, 10)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, gen, 10)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, userID, 10)
	return string(buf)
}
