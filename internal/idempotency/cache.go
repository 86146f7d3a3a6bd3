package idempotency

import (
	"sync"
	"time"
)

// Response is a completed reply kept for replay.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	// Fingerprint identifies the request that produced the response; a retry
	// with the same key but a different fingerprint is a conflict.
	Fingerprint string
}

type entry struct {
	resp    Response
	expires time.Time
}

// Cache remembers responses to mutating calls for a TTL so a client retry
// gets the original answer instead of repeating the operation.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	entries map[string]entry
}

func NewCache(ttl time.Duration, max int, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, max: max, now: now, entries: make(map[string]entry)}
}

func (c *Cache) Get(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Response{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return Response{}, false
	}
	return e.resp, true
}

func (c *Cache) Put(key string, resp Response) {
	if c.ttl <= 0 || c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= c.max {
		c.evict(now)
	}
	c.entries[key] = entry{resp: resp, expires: now.Add(c.ttl)}
}

// evict drops expired entries, or the soonest-expiring one if none are.
// Caller holds c.mu.
func (c *Cache) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(c.entries) >= c.max && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
