package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/teller/pkg/config"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "atm-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "atm-1", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, now.Add(time.Minute), result.ResetAt)
	assert.Equal(t, 60, result.RetryAfter(now))

	other, err := limiter.Check(ctx, "atm-2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(61 * time.Second)
	result, err = limiter.Check(ctx, "atm-1", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Remaining)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	now := time.Now()
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Check(context.Background(), "atm-1", 5, time.Minute)
	now = now.Add(10 * time.Minute)
	_, _ = limiter.Check(context.Background(), "atm-2", 5, time.Minute)

	assert.Equal(t, 1, limiter.Cleanup(5*time.Minute))
	assert.Equal(t, 0, limiter.Cleanup(0))
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1, (*Result)(nil).RetryAfter(now))
	assert.Equal(t, 1, (&Result{ResetAt: now.Add(-time.Second)}).RetryAfter(now))
	assert.Equal(t, 30, (&Result{ResetAt: now.Add(30 * time.Second)}).RetryAfter(now))
}

func TestAdaptiveLimiter_FallsBackWhenRedisFails(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	cleanup()

	fallback := NewMemoryLimiter(testLogger())
	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), fallback, testLogger())
	ctx := context.Background()

	// The fallback gets half the budget.
	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "atm-1", 4, time.Minute)
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, "atm-1", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestAdaptiveLimiter_UsesPrimary(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())

	result, err := limiter.Check(context.Background(), "atm-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	_, err = limiter.Check(context.Background(), "atm-1", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Enabled:     true,
		PerTerminal: config.RateLimitRule{Limit: 30, Window: "1m"},
		CardSwipes:  config.RateLimitRule{Limit: 3, Window: "bogus"},
		Whitelist:   []string{"lab-terminal"},
	})

	assert.True(t, rules.Enabled())
	assert.True(t, rules.IsWhitelisted("lab-terminal"))
	assert.False(t, rules.IsWhitelisted("atm-1"))

	limit, window, err := rules.GetPerTerminalLimit()
	require.NoError(t, err)
	assert.Equal(t, 30, limit)
	assert.Equal(t, time.Minute, window)

	_, _, err = rules.GetCardSwipeLimit()
	assert.Error(t, err)

	assert.False(t, (*Rules)(nil).Enabled())
}

func TestCleaner_RemovesStaleWindows(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, client.ZAdd(ctx, keyPrefix+"stale", redis.Z{Score: float64(stale), Member: "a"}).Err())
	require.NoError(t, client.ZAdd(ctx, keyPrefix+"fresh", redis.Z{Score: float64(time.Now().UnixMilli()), Member: "b"}).Err())

	cleaner := NewCleaner(client, NewMemoryLimiter(testLogger()), testLogger(), time.Minute, 5*time.Minute)
	assert.Equal(t, 1, cleaner.cleanup(ctx))

	exists, err := client.Exists(ctx, keyPrefix+"stale", keyPrefix+"fresh").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)
}
