package marketdata

import (
	"testing"
	"time"
)

func TestPriceCachePutGet(t *testing.T) {
	cache := NewPriceCache(10 * time.Second)

	cache.Put("BTCUSDT", 50000.5)

	last, ok := cache.Get("BTCUSDT")
	if !ok {
		t.Fatalf("expected a cache hit")
	}
	if last != 50000.5 {
		t.Fatalf("expected 50000.5, got %v", last)
	}
}

func TestPriceCacheMiss(t *testing.T) {
	cache := NewPriceCache(10 * time.Second)

	if _, ok := cache.Get("ETHUSDT"); ok {
		t.Fatalf("expected a miss for an unknown symbol")
	}
}

func TestPriceCacheExpiry(t *testing.T) {
	cache := NewPriceCache(10 * time.Second)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }
	cache.Put("BTCUSDT", 50000)

	cache.now = func() time.Time { return base.Add(9 * time.Second) }
	if _, ok := cache.Get("BTCUSDT"); !ok {
		t.Fatalf("entry should still be fresh at 9s")
	}

	cache.now = func() time.Time { return base.Add(11 * time.Second) }
	if _, ok := cache.Get("BTCUSDT"); ok {
		t.Fatalf("entry should be stale at 11s")
	}
}

func TestPriceCacheOverwrite(t *testing.T) {
	cache := NewPriceCache(10 * time.Second)

	cache.Put("BTCUSDT", 50000)
	cache.Put("BTCUSDT", 50100)

	last, ok := cache.Get("BTCUSDT")
	if !ok || last != 50100 {
		t.Fatalf("expected latest price 50100, got %v (hit=%v)", last, ok)
	}
}
