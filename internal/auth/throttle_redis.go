// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nordventa/fieldserve/internal/platform/constants"
)

// # Credential Endpoint Throttle
//
// A fixed-window counter shared across API replicas via Redis. It sits in
// front of the login and forgot-password endpoints as a per-source cap,
// complementing the per-account lockout: the lockout protects one account
// from a focused attacker, the throttle caps how fast any single source can
// spray attempts across many accounts.

// Throttle limits how often a source key may hit a credential endpoint.
type Throttle interface {
	// Allow consumes one attempt for the key. When the window budget is
	// exhausted it returns false plus the seconds until the window resets.
	Allow(ctx context.Context, key string) (allowed bool, retryAfterSeconds int, err error)
}

// RedisThrottle implements [Throttle] with INCR + EXPIRE.
//
// # Failure Policy
//
// The throttle fails open: a Redis outage must degrade to "no extra
// throttling", never to "nobody can log in". The per-account lockout still
// holds in that state.
type RedisThrottle struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
	limit  int
	window time.Duration
}

// NewLoginThrottle builds the throttle used by the login endpoint.
func NewLoginThrottle(client *redis.Client, logger *slog.Logger) *RedisThrottle {
	return &RedisThrottle{
		client: client,
		logger: logger,
		prefix: constants.RedisPrefixLoginThrottle,
		limit:  constants.LoginThrottleLimit,
		window: constants.LoginThrottleWindow,
	}
}

// NewResetThrottle builds the throttle used by the forgot-password endpoint.
func NewResetThrottle(client *redis.Client, logger *slog.Logger) *RedisThrottle {
	return &RedisThrottle{
		client: client,
		logger: logger,
		prefix: constants.RedisPrefixResetThrottle,
		limit:  constants.LoginThrottleLimit,
		window: constants.LoginThrottleWindow,
	}
}

// Allow consumes one attempt for the key within the current fixed window.
func (throttle *RedisThrottle) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := throttle.prefix + key

	count, err := throttle.client.Incr(ctx, redisKey).Result()
	if err != nil {
		throttle.logger.Warn("throttle_redis_unavailable_failing_open",
			slog.String("key", redisKey),
			slog.String("error", err.Error()),
		)
		return true, 0, nil
	}

	// First hit in a window sets the expiry.
	if count == 1 {
		if err := throttle.client.Expire(ctx, redisKey, throttle.window).Err(); err != nil {
			throttle.logger.Warn("throttle_expire_failed",
				slog.String("key", redisKey),
				slog.String("error", err.Error()),
			)
		}
	}

	if count <= int64(throttle.limit) {
		return true, 0, nil
	}

	ttl, err := throttle.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		// Orphaned counter without TTL: reset it rather than lock the source out.
		_ = throttle.client.Expire(ctx, redisKey, throttle.window).Err()
		ttl = throttle.window
	}

	return false, int(ttl.Seconds()) + 1, nil
}
