package cache

import (
	"sync"
	"time"

	"emysound/pkg/identity"
)

// entry is a cached value with its expiry
type entry struct {
	value      any
	expiration time.Time
}

// MemoryCache is an in-memory key/value cache with a fixed time to live.
// Expired entries are dropped by a janitor goroutine until Close is called.
type MemoryCache struct {
	items map[string]entry
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new memory cache. Entries are swept every
// interval; a non-positive interval disables the janitor.
func NewMemoryCache(ttl, interval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go c.janitor(interval)
	}
	return c
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = entry{value: value, expiration: c.now().Add(c.ttl)}
}

// Get retrieves a live value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.items[key]
	if !ok || c.now().After(e.expiration) {
		return nil, false
	}
	return e.value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Size returns the number of stored items, including expired ones not yet swept
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Sweep removes expired entries and reports how many were dropped
func (c *MemoryCache) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.items {
		if now.After(e.expiration) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the janitor. It is safe to call more than once.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

// SubmissionCache remembers which files were recently inserted and under
// which track id, so repeated file system events do not resubmit them.
type SubmissionCache struct {
	*MemoryCache
}

// NewSubmissionCache creates a submission cache holding entries for ttl
func NewSubmissionCache(ttl time.Duration) *SubmissionCache {
	return &SubmissionCache{MemoryCache: NewMemoryCache(ttl, time.Minute)}
}

// MarkSubmitted records a successful insert of path
func (sc *SubmissionCache) MarkSubmitted(path string, id identity.TrackID) {
	sc.Set(path, id)
}

// Submitted returns the id a path was recently inserted under
func (sc *SubmissionCache) Submitted(path string) (identity.TrackID, bool) {
	value, ok := sc.Get(path)
	if !ok {
		return identity.TrackID{}, false
	}
	id, ok := value.(identity.TrackID)
	return id, ok
}
