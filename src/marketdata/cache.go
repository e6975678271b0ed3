package marketdata

import (
	"sync"
	"time"
)

type entry struct {
	last      float64
	updatedAt time.Time
}

// PriceCache is a short-TTL advisory cache of last prices. It is fed by the
// websocket ticker stream and read by pipelines to avoid redundant REST
// calls. It is never authoritative: a stale or missing entry simply falls
// back to a REST ticker fetch.
type PriceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Put stores the last price for a symbol. Implements gateway.TickerSink.
func (c *PriceCache) Put(symbol string, last float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = entry{last: last, updatedAt: c.now()}
}

// Get returns the cached price when present and fresh.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.updatedAt) > c.ttl {
		return 0, false
	}
	return e.last, true
}
