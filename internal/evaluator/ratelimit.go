package evaluator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/redis"
)

// Limiter blocks until one more call is allowed.
// *rate.Limiter satisfies it directly.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewTokenBucket returns an in-process limiter of perSecond calls with burst
func NewTokenBucket(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RedisLimiter shares a limit across processes through redis
type RedisLimiter struct {
	limiter *redis.RateLimiter
	cfg     redis.RateLimitConfig
}

// NewRedisLimiter creates a distributed limiter
func NewRedisLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{limiter: limiter, cfg: cfg}
}

// Wait implements Limiter
func (l *RedisLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx, l.cfg)
}

// RateLimited throttles calls to another evaluator.
// Time spent waiting counts against the caller's deadline.
type RateLimited struct {
	next    contracts.Evaluator
	limiter Limiter
}

// NewRateLimited wraps next with limiter
func NewRateLimited(next contracts.Evaluator, limiter Limiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

// Evaluate implements contracts.Evaluator
func (r *RateLimited) Evaluate(ctx context.Context, payload string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		// rate.Limiter는 데드라인 내 불가능하면 즉시 에러 반환
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Evaluate(ctx, payload)
}
