package quote

import (
	"context"
	"sync"
	"time"

	"github.com/marstr/collection/v2"
	log "github.com/sirupsen/logrus"
)

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// Cache keeps recent successful prices in a bounded LRU. Failures are
// never cached so an unknown symbol is re-checked on every request.
type Cache struct {
	next Fetcher
	ttl  time.Duration
	now  func() time.Time

	mu  sync.Mutex
	lru *collection.LRUCache[string, cachedPrice]
}

// NewCache wraps next. A non-positive ttl or zero capacity disables caching.
func NewCache(next Fetcher, capacity uint, ttl time.Duration) *Cache {
	c := &Cache{next: next, ttl: ttl, now: time.Now}
	if capacity > 0 && ttl > 0 {
		c.lru = collection.NewLRUCache[string, cachedPrice](capacity)
	}
	return c
}

// Price implements Fetcher.
func (c *Cache) Price(ctx context.Context, symbol string) (float64, error) {
	if c.lru == nil {
		return c.next.Price(ctx, symbol)
	}

	c.mu.Lock()
	val, ok := c.lru.Get(symbol)
	c.mu.Unlock()
	if ok && c.now().Sub(val.fetchedAt) < c.ttl {
		log.Tracef("returning cached quote for %s", symbol)
		return val.price, nil
	}

	price, err := c.next.Price(ctx, symbol)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.lru.Put(symbol, cachedPrice{price: price, fetchedAt: c.now()})
	c.mu.Unlock()
	return price, nil
}
