package conflict

import (
	"net"
	"sync"
	"time"
)

// ProbeCache remembers addresses that recently answered a probe, so an
// address a server keeps offering is declined again without re-probing.
// Clear verdicts are never cached: a lease is only committed after a fresh probe.
type ProbeCache struct {
	mu      sync.Mutex
	entries map[string]time.Time // IP string → when the conflict was seen
	ttl     time.Duration
	now     func() time.Time
}

// NewProbeCache creates a conflict cache with the given TTL. A zero TTL
// disables caching.
func NewProbeCache(ttl time.Duration) *ProbeCache {
	return &ProbeCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// MarkConflict records that ip answered a probe.
func (c *ProbeCache) MarkConflict(ip net.IP) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[ip.String()] = c.now()
	c.mu.Unlock()
}

// IsConflict returns true if ip conflicted within the TTL.
func (c *ProbeCache) IsConflict(ip net.IP) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ip.String()
	seen, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(seen) > c.ttl {
		delete(c.entries, key)
		return false
	}
	return true
}

// Invalidate forgets ip.
func (c *ProbeCache) Invalidate(ip net.IP) {
	c.mu.Lock()
	delete(c.entries, ip.String())
	c.mu.Unlock()
}

// Cleanup removes expired entries. Call periodically.
func (c *ProbeCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, seen := range c.entries {
		if now.Sub(seen) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached entries, expired or not.
func (c *ProbeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
