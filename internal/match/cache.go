package match

import (
	"sync"
	"sync/atomic"
)

type pairKey struct {
	source, target       string
	sourceSig, targetSig string
}

// SimilarityCache memoizes score sets per normalized pair. It is unbounded for the
// lifetime of a run; Clear resets it between runs.
type SimilarityCache struct {
	mu      sync.RWMutex
	entries map[pairKey]ScoreSet

	hits   atomic.Int64
	misses atomic.Int64
}

// NewSimilarityCache creates an empty cache.
func NewSimilarityCache() *SimilarityCache {
	return &SimilarityCache{entries: make(map[pairKey]ScoreSet)}
}

func (c *SimilarityCache) get(key pairKey) (ScoreSet, bool) {
	c.mu.RLock()
	s, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return s, ok
}

func (c *SimilarityCache) put(key pairKey, s ScoreSet) {
	c.mu.Lock()
	c.entries[key] = s
	c.mu.Unlock()
}

// Len returns the number of cached pairs.
func (c *SimilarityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hits returns the number of lookups answered from the cache.
func (c *SimilarityCache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of lookups that had to compute scores.
func (c *SimilarityCache) Misses() int64 { return c.misses.Load() }

// Clear drops all entries and resets the counters.
func (c *SimilarityCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[pairKey]ScoreSet)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}
