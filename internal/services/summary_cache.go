package services

import (
	"time"

	"billing/internal/cache"
	"billing/internal/core"
)

const (
	summaryCacheSize = 64
	summaryCacheTTL  = 5 * time.Minute
)

// SummaryCache memoizes report summaries per date range. Any ledger write
// must call Invalidate.
type SummaryCache struct {
	lru *cache.LRUCache[core.Summary]
}

func NewSummaryCache() *SummaryCache {
	return &SummaryCache{lru: cache.NewLRUCache[core.Summary](summaryCacheSize, summaryCacheTTL)}
}

// LRU exposes the backing cache so it can be registered with a cache.Manager.
func (c *SummaryCache) LRU() *cache.LRUCache[core.Summary] {
	if c == nil {
		return nil
	}
	return c.lru
}

// Get returns the cached summary for the range. The generation it also
// returns must be passed back to Set so a summary computed while a ledger
// write was committing is not cached.
func (c *SummaryCache) Get(from, to core.Date) (core.Summary, uint64, bool) {
	if c == nil {
		return core.Summary{}, 0, false
	}
	gen := c.lru.Generation()
	s, ok := c.lru.Get(summaryKey(from, to))
	return s, gen, ok
}

func (c *SummaryCache) Set(from, to core.Date, s core.Summary, gen uint64) {
	if c == nil {
		return
	}
	c.lru.SetIfGeneration(summaryKey(from, to), s, gen)
}

func (c *SummaryCache) Invalidate() {
	if c == nil {
		return
	}
	c.lru.Clear()
}

func (c *SummaryCache) Stats() cache.Stats {
	if c == nil {
		return cache.Stats{}
	}
	return c.lru.Stats()
}

// Zero dates render as "" so open ranges get their own keys.
func summaryKey(from, to core.Date) string {
	return from.String() + ".." + to.String()
}
