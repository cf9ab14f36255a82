package ipinfo

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedLocator wraps a Locator with an in-memory LRU cache whose entries
// expire after a fixed TTL.
type CachedLocator struct {
	inner   domain.Locator
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedLocator creates a cache decorator around a locator. Pass a nil
// clock to use real time.
func NewCachedLocator(inner domain.Locator, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedLocator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedLocator{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedLocator) Lookup(ctx context.Context, ip netip.Addr) (domain.Attributes, error) {
	if attrs, ok := c.cache.get(ip); ok {
		c.metrics.LookupCache.WithLabelValues("hit").Inc()
		return attrs, nil
	}
	c.metrics.LookupCache.WithLabelValues("miss").Inc()

	attrs, err := c.inner.Lookup(ctx, ip)
	if err != nil {
		return attrs, err
	}
	// Failures are never cached so the next occurrence of the address retries.
	c.cache.put(ip, attrs)
	return attrs, nil
}

// lruCache is a thread-safe LRU cache of attribute bags with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[netip.Addr]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       netip.Addr
	value     domain.Attributes
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[netip.Addr]*entry),
	}
}

func (c *lruCache) get(key netip.Addr) (domain.Attributes, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Attributes{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.remove(e)
		delete(c.entries, key)
		return domain.Attributes{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key netip.Addr, value domain.Attributes) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
