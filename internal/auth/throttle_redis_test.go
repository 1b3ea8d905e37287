// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordventa/fieldserve/internal/platform/constants"
)

// newThrottleFixture spins up an in-process Redis server and a throttle with
// a small limit so tests can hit the boundary in a handful of calls.
func newThrottleFixture(t *testing.T, limit int, window time.Duration) (*RedisThrottle, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	throttle := &RedisThrottle{
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		prefix: constants.RedisPrefixLoginThrottle,
		limit:  limit,
		window: window,
	}
	return throttle, server
}

func TestThrottle_AllowsUpToLimit(t *testing.T) {
	throttle, _ := newThrottleFixture(t, 3, time.Minute)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		allowed, retryAfter, err := throttle.Allow(ctx, "198.51.100.7")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should pass", attempt)
		assert.Zero(t, retryAfter)
	}
}

func TestThrottle_DeniesOverLimitWithRetryAfter(t *testing.T) {
	throttle, _ := newThrottleFixture(t, 3, time.Minute)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		allowed, _, err := throttle.Allow(ctx, "198.51.100.7")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, retryAfter, err := throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 61)
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	throttle, _ := newThrottleFixture(t, 1, time.Minute)
	ctx := context.Background()

	allowed, _, err := throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.False(t, allowed, "second attempt from the same source is over limit")

	allowed, _, err = throttle.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, allowed, "a different source has its own window")
}

func TestThrottle_WindowExpiryResetsBudget(t *testing.T) {
	throttle, server := newThrottleFixture(t, 1, time.Minute)
	ctx := context.Background()

	allowed, _, err := throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	require.False(t, allowed)

	server.FastForward(time.Minute + time.Second)

	allowed, retryAfter, err := throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, allowed, "budget resets once the window expires")
	assert.Zero(t, retryAfter)
}

func TestThrottle_OrphanedCounterGetsExpiry(t *testing.T) {
	throttle, server := newThrottleFixture(t, 3, time.Minute)
	ctx := context.Background()

	// An over-limit counter with no TTL (e.g. the EXPIRE after the first
	// INCR was lost). The throttle must re-arm the window instead of
	// locking the source out forever.
	key := constants.RedisPrefixLoginThrottle + "198.51.100.7"
	require.NoError(t, server.Set(key, "50"))

	allowed, retryAfter, err := throttle.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 61, retryAfter)

	ttl := server.TTL(key)
	assert.Greater(t, ttl, time.Duration(0), "orphaned counter must get a fresh expiry")
}

func TestThrottle_FailsOpenOnRedisOutage(t *testing.T) {
	throttle, server := newThrottleFixture(t, 1, time.Minute)
	ctx := context.Background()

	server.Close()

	for attempt := 1; attempt <= 5; attempt++ {
		allowed, retryAfter, err := throttle.Allow(ctx, "198.51.100.7")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d must pass when Redis is down", attempt)
		assert.Zero(t, retryAfter)
	}
}
