package client

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock is the client's time source: a millisecond counter advanced by an
// external ticker. It is the only client state safe to touch from another
// goroutine. No drift correction is attempted.
type Clock struct {
	millis atomic.Uint64
}

// NewClock returns a clock at zero.
func NewClock() *Clock {
	return &Clock{}
}

// AdvanceMillis adds ms to the clock.
func (c *Clock) AdvanceMillis(ms uint32) {
	c.millis.Add(uint64(ms))
}

// Millis returns total elapsed milliseconds.
func (c *Clock) Millis() uint64 {
	return c.millis.Load()
}

// Seconds returns whole elapsed seconds; sub-second ticks carry over.
func (c *Clock) Seconds() uint64 {
	return c.millis.Load() / 1000
}

// Run advances the clock by interval on every tick until ctx is done.
func (c *Clock) Run(ctx context.Context, interval time.Duration) {
	ms := uint32(interval / time.Millisecond)
	if ms == 0 {
		ms = 1
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.AdvanceMillis(ms)
		case <-ctx.Done():
			return
		}
	}
}
