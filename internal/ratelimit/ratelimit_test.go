package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/invoicer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllows(t *testing.T) {
	limiter, err := NewWriteLimiter(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestEnabledLimiterValidatesConfig(t *testing.T) {
	_, err := NewWriteLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewWriteLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
	}})
	assert.Error(t, err)

	limiter, err := NewWriteLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
		Rate:      2,
		Burst:     5,
	}})
	require.NoError(t, err)
	assert.True(t, limiter.Enabled())
}

func TestWriteKey(t *testing.T) {
	assert.Equal(t, "invoicer:write:10.0.0.7", writeKey(" 10.0.0.7 "))
	assert.Equal(t, "invoicer:write:unknown", writeKey(""))
}

func TestDecide(t *testing.T) {
	d, err := decide([]int64{1, 4, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Limit: 5, Remaining: 4}, d)

	d, err = decide([]int64{0, 0, 350}, 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 350*time.Millisecond, d.RetryAfter)

	_, err = decide([]int64{1}, 5)
	assert.Error(t, err)
}
