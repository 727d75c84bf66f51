// Package ratelimit paces calls to rate-sensitive external services.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer is a token bucket refilled once per interval. It is safe for
// concurrent use; a nil Pacer never blocks.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer allows burst calls immediately and one more per interval after
// that. An interval <= 0 disables pacing.
func NewPacer(interval time.Duration, burst int) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Every(interval), burst),
		interval: interval,
	}
}

// Wait blocks until the next call may proceed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Interval reports the refill interval; zero when pacing is disabled.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}
