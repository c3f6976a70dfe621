package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces outbound extraction calls with a token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows requestsPerSecond calls with the given burst.
// A non-positive rate disables pacing.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a call may be made or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
