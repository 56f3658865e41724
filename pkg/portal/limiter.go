package portal

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces portal requests so that at least the configured interval
// passes between the start of consecutive requests. One Limiter should be
// shared by every client talking to the same portal.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter returns a Limiter enforcing interval between requests. A
// non-positive interval disables spacing.
func NewLimiter(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{lim: rate.NewLimiter(limit, 1)}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
