// Package ratelimit paces calls to an external token authority with a
// token-bucket limiter backed by golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter allows rps refreshes per second with bursts of up to burst.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter. A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(limit, burst)}
}

// Allow reports whether a refresh may start right now.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until a refresh may start or ctx is done. It fails
// immediately when ctx's deadline would pass before a slot frees up.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	return nil
}
