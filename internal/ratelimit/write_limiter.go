package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicer/internal/config"
)

const keyWriteClient = "invoicer:write:%s"

// writeBucketScript refills KEYS[1] at ARGV[1] tokens per second up to
// ARGV[2] and takes one token. It returns {allowed, whole tokens left,
// milliseconds until the next token}. Fractional tokens are stored as
// strings so slow refill rates are not truncated away.
var writeBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate / 1000)

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], math.ceil(capacity * 2000 / rate))
return {allowed, math.floor(tokens), wait}
`)

// Decision is the outcome of one write admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// WriteLimiter throttles mutating API calls per client address with a
// shared Redis token bucket, so several instances enforce one budget.
type WriteLimiter struct {
	client redis.Scripter
	rate   float64
	burst  int
}

// NewWriteLimiter returns nil when rate limiting is disabled.
func NewWriteLimiter(cfg config.Config) (*WriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	return &WriteLimiter{client: client, rate: limitCfg.Rate, burst: limitCfg.Burst}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.client != nil
}

// Allow takes one write token for clientKey. A disabled limiter admits
// every call.
func (l *WriteLimiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	res, err := writeBucketScript.Run(ctx, l.client, []string{writeKey(clientKey)}, l.rate, l.burst).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("write bucket: %w", err)
	}
	return decide(res, l.burst)
}

func writeKey(clientKey string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return fmt.Sprintf(keyWriteClient, clientKey)
}

func decide(res []int64, burst int) (Decision, error) {
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("write bucket: unexpected reply of %d values", len(res))
	}
	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     burst,
		Remaining: int(res[1]),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}
