package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles a single kind of outbound call (browser navigation,
// coordinator round-trips) against a configured rate.
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Limit() rate.Limit
	Burst() int
}

// TokenBucketLimiter wraps golang.org/x/time/rate as the defensive cap
// alongside a role's jittered sleep between navigations.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter builds a limiter allowing rps events per second with
// the given burst. A zero rps disables throttling (unlimited).
func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	if rps <= 0 {
		return &TokenBucketLimiter{limiter: rate.NewLimiter(rate.Inf, burst)}
	}
	return &TokenBucketLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

func (l *TokenBucketLimiter) Limit() rate.Limit {
	return l.limiter.Limit()
}

func (l *TokenBucketLimiter) Burst() int {
	return l.limiter.Burst()
}
