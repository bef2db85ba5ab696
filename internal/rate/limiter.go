// Package rate implements the admin façade's intake rate limiting: a
// per-caller token bucket backed by Redis, so a burst on /api/send or
// /api/send-bulk is throttled the same way regardless of which façade
// instance answers the request.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/persistence"
)

// Limiter is a token bucket keyed by caller identity (the X-Client-ID
// header, or "anonymous" when absent).
type Limiter struct {
	redis  *persistence.RedisClient
	logger *zap.Logger
	rps    int
	burst  int
}

func NewLimiter(redis *persistence.RedisClient, logger *zap.Logger, rps, burst int) *Limiter {
	return &Limiter{
		redis:  redis,
		logger: logger,
		rps:    rps,
		burst:  burst,
	}
}

// Allow reports whether caller may proceed now, and if not, how long until
// the bucket refills enough to admit another request.
func (l *Limiter) Allow(ctx context.Context, caller string) (bool, time.Duration, error) {
	key := fmt.Sprintf("rate_limit:%s", caller)
	now := time.Now()
	windowStart := now.Truncate(time.Second)

	currentTokensStr, err := l.redis.Get(ctx, key).Result()
	currentTokens := l.burst
	lastRefill := windowStart

	if err != nil && err != redis.Nil {
		return false, 0, fmt.Errorf("read rate bucket for %s: %w", caller, err)
	}
	if err != redis.Nil {
		var lastRefillUnix int64
		fmt.Sscanf(currentTokensStr, "%d:%d", &currentTokens, &lastRefillUnix)
		lastRefill = time.Unix(lastRefillUnix, 0)
	}

	elapsed := windowStart.Sub(lastRefill)
	tokensToAdd := int(elapsed.Seconds()) * l.rps
	currentTokens = min(currentTokens+tokensToAdd, l.burst)

	if currentTokens <= 0 {
		retryAfter := time.Second - time.Duration(now.Nanosecond())
		return false, retryAfter, nil
	}

	currentTokens--

	newValue := fmt.Sprintf("%d:%d", currentTokens, windowStart.Unix())
	if err := l.redis.Set(ctx, key, newValue, time.Minute).Err(); err != nil {
		l.logger.Warn("failed to update rate bucket", zap.String("caller", caller), zap.Error(err))
	}

	return true, 0, nil
}

// Reset clears the rate limit bucket for caller. Used by admin tooling and
// tests; never called from the request path.
func (l *Limiter) Reset(ctx context.Context, caller string) error {
	key := fmt.Sprintf("rate_limit:%s", caller)
	return l.redis.Del(ctx, key).Err()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
