// Package cache provides the bounded per-instance response cache keyed by
// normalized request signature.
package cache

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the hard cap on cached entries.
	DefaultCapacity = 500

	// evictionBuffer is how far below capacity an overflow eviction goes,
	// so inserts don't trigger a sweep every time.
	evictionBuffer = 50
)

type entry struct {
	data       json.RawMessage
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// ResponseCache is a bounded TTL cache for successful read responses.
// Instances are injectable so tests can construct isolated caches; access is
// mutex-guarded for the multi-threaded runtime.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	now      func() time.Time
}

// New creates a cache with the given capacity. A capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *ResponseCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResponseCache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached payload for key, or false if absent or expired.
// Expired entries are evicted lazily on read.
func (c *ResponseCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

// Set stores data under key with the given ttl, evicting as needed to stay
// under capacity.
func (c *ResponseCache) Set(key string, data json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{data: data, insertedAt: c.now(), ttl: ttl}

	if len(c.entries) <= c.capacity {
		return
	}

	// First pass: drop everything past its own ttl.
	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) <= c.capacity {
		return
	}

	// Still over: evict oldest-inserted down to capacity minus the buffer.
	type aged struct {
		key        string
		insertedAt time.Time
	}
	byAge := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		byAge = append(byAge, aged{key: k, insertedAt: e.insertedAt})
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].insertedAt.Before(byAge[j].insertedAt)
	})
	toEvict := len(c.entries) - c.capacity + evictionBuffer
	for i := 0; i < toEvict && i < len(byAge); i++ {
		delete(c.entries, byAge[i].key)
	}
}

// Len returns the current number of entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key builds a normalized cache key. Query parameter pairs are sorted
// lexicographically by name so identical logical requests hit the same entry
// regardless of parameter order.
func Key(path, tenantID string, params url.Values) string {
	var b strings.Builder
	b.WriteString(path)
	if tenantID != "" {
		b.WriteString(":")
		b.WriteString(tenantID)
	}

	if len(params) == 0 {
		return b.String()
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("?")
	for _, name := range names {
		values := append([]string(nil), params[name]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(v)
			b.WriteString("&")
		}
	}
	return strings.TrimSuffix(b.String(), "&")
}
