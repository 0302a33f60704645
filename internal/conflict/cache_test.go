package conflict

import (
	"net"
	"testing"
	"time"
)

// fakeNow returns a controllable clock for cache tests.
func fakeNow(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestProbeCacheMarkConflict(t *testing.T) {
	cache := NewProbeCache(time.Minute)
	ip := net.IPv4(192, 168, 1, 50)

	if cache.IsConflict(ip) {
		t.Error("IP should not be a conflict initially")
	}

	cache.MarkConflict(ip)
	if !cache.IsConflict(ip) {
		t.Error("IP should be a conflict after MarkConflict")
	}
	if cache.IsConflict(net.IPv4(192, 168, 1, 51)) {
		t.Error("other IPs are unaffected")
	}
}

func TestProbeCacheTTLExpiry(t *testing.T) {
	cache := NewProbeCache(10 * time.Second)
	now, advance := fakeNow(time.Unix(1700000000, 0))
	cache.now = now
	ip := net.IPv4(192, 168, 1, 50)

	cache.MarkConflict(ip)
	advance(5 * time.Second)
	if !cache.IsConflict(ip) {
		t.Error("IP should still be a conflict within TTL")
	}

	advance(6 * time.Second)
	if cache.IsConflict(ip) {
		t.Error("IP should not be a conflict after TTL expiry")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry should be removed on lookup, Len = %d", cache.Len())
	}
}

func TestProbeCacheInvalidate(t *testing.T) {
	cache := NewProbeCache(time.Hour)
	ip := net.IPv4(192, 168, 1, 50)

	cache.MarkConflict(ip)
	cache.Invalidate(ip)
	if cache.IsConflict(ip) {
		t.Error("IP should not be a conflict after Invalidate")
	}
}

func TestProbeCacheCleanup(t *testing.T) {
	cache := NewProbeCache(10 * time.Second)
	now, advance := fakeNow(time.Unix(1700000000, 0))
	cache.now = now

	cache.MarkConflict(net.IPv4(192, 168, 1, 100))
	cache.MarkConflict(net.IPv4(192, 168, 1, 101))
	advance(8 * time.Second)
	cache.MarkConflict(net.IPv4(192, 168, 1, 102))
	advance(3 * time.Second)

	cache.Cleanup()

	if cache.Len() != 1 {
		t.Errorf("Len after cleanup = %d, want 1", cache.Len())
	}
	if !cache.IsConflict(net.IPv4(192, 168, 1, 102)) {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestProbeCacheDisabled(t *testing.T) {
	cache := NewProbeCache(0)
	ip := net.IPv4(192, 168, 1, 50)
	cache.MarkConflict(ip)
	if cache.IsConflict(ip) {
		t.Error("zero TTL should disable caching")
	}
}
