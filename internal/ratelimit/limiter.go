// Package ratelimit paces outbound requests to a single host.
//
// The limiter is deliberately simpler than a token bucket: the site is always
// exactly one host and the crawl is single-threaded, so all that is needed is
// a minimum wall-clock interval between consecutive fetches.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mxfeinberg/agtalk-scraper/internal/clock"
)

// Limiter enforces a minimum interval between calls to Wait. It is backed by
// an injected clock so tests can substitute a fake. Interval comparisons use
// time.Time's monotonic reading, so wall-clock adjustments cannot shorten or
// lengthen the pause.
type Limiter struct {
	interval time.Duration
	clock    clock.Clock
	last     time.Time
}

// New creates a Limiter with the given minimum interval.
func New(interval time.Duration, clk clock.Clock) (*Limiter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0, got %v", interval)
	}
	if clk == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Limiter{interval: interval, clock: clk}, nil
}

// Interval reports the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until at least the configured interval has elapsed since the
// previous call returned. The first call never blocks. Returns the context's
// error if it is cancelled mid-pause.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.last.IsZero() {
		if remaining := l.interval - l.clock.Now().Sub(l.last); remaining > 0 {
			l.clock.Sleep(ctx, remaining)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	l.last = l.clock.Now()
	return nil
}
