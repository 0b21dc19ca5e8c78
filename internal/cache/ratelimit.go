package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitUserPrefix is the Redis key prefix for per-user API limits.
	rateLimitUserPrefix = "ratelimit:user:"
	// rateLimitIPPrefix is the Redis key prefix for IP rate limits.
	rateLimitIPPrefix = "ratelimit:ip:"
	// rateLimitUserTTL is the TTL for user rate limit keys.
	rateLimitUserTTL = 120 * time.Second
	// rateLimitIPTTL is the TTL for IP rate limit keys.
	rateLimitIPTTL = 10 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes one token atomically.
// Returns {allowed, retry_after_ms, remaining}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- current time in seconds (fractional)
	local ttl = tonumber(ARGV[4])       -- key TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = math.max(0, now - last_update)
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after_ms = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after_ms = math.ceil(((1 - tokens) / rate) * 1000)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', tostring(now))
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after_ms, math.floor(tokens)}
`)

// CheckUserRateLimit applies the per-user API limit.
// A ratePerMinute of zero disables the limit.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}

	result, err := c.checkRateLimit(ctx, rateLimitUserPrefix+userID,
		float64(ratePerMinute)/60.0, burst, rateLimitUserTTL)
	if result != nil {
		result.Limit = ratePerMinute
	}
	return result, err
}

// CheckIPRateLimit applies the per-IP redirect limit.
// IP is hashed to avoid storing raw IP addresses.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return unlimited(burst), nil
	}

	result, err := c.checkRateLimit(ctx, rateLimitIPPrefix+hashIP(ip),
		float64(ratePerSecond), burst, rateLimitIPTTL)
	if result != nil {
		result.Limit = ratePerSecond
	}
	return result, err
}

// checkRateLimit runs the token bucket. On Redis errors it fails open:
// the returned result allows the request and the error is returned for logging.
func (c *Cache) checkRateLimit(ctx context.Context, key string, rate float64, burst int, ttl time.Duration) (*RateLimitResult, error) {
	now := time.Now()
	nowSeconds := float64(now.UnixMilli()) / 1000.0

	values, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, nowSeconds, int(ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		return unlimited(burst), fmt.Errorf("rate limit script: %w", err)
	}
	if len(values) != 3 {
		return unlimited(burst), fmt.Errorf("rate limit script: unexpected reply length %d", len(values))
	}

	retryAfter := time.Duration(values[1]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    values[0] == 1,
		Remaining:  values[2],
		ResetAt:    now.Add(refillDuration(rate, burst, values[2])),
		RetryAfter: retryAfter,
	}, nil
}

// refillDuration is the time until a bucket holding remaining tokens is full again.
func refillDuration(rate float64, burst int, remaining int64) time.Duration {
	missing := float64(burst) - float64(remaining)
	if missing <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing/rate*1000)) * time.Millisecond
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   time.Now(),
	}
}

// hashIP creates a truncated SHA256 hash of an IP address.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
