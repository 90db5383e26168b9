package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis truncates Lua numbers to integers on return, so the fractional
// token count travels back as a string.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

var (
	ErrLimiterNotConfigured = errors.New("limiter_not_configured")
	ErrEmptyLimiterKey      = errors.New("empty_limiter_key")
	ErrInvalidLimit         = errors.New("invalid_limit")
	ErrBadScriptResponse    = errors.New("bad_script_response")
)

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	return t.AllowN(ctx, key, rate, burst, 1)
}

// AllowN takes n tokens at once or none at all.
func (t *TokenBucket) AllowN(ctx context.Context, key string, rate float64, burst, n int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Allowed: false}
	switch {
	case t == nil || t.client == nil:
		return denied, ErrLimiterNotConfigured
	case key == "":
		return denied, ErrEmptyLimiterKey
	case rate <= 0 || burst <= 0 || n <= 0 || n > burst:
		return denied, ErrInvalidLimit
	}

	ttl := defaultBucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds(), n).Slice()
	if err != nil {
		return denied, err
	}
	if len(res) < 3 {
		return denied, ErrBadScriptResponse
	}

	allowed := castToInt(res[0]) == 1
	remaining := castToFloat(res[1])
	now := time.UnixMilli(castToInt(res[2]))

	var retryAfter time.Duration
	if !allowed {
		retryAfter = refillDuration(float64(n)-remaining, rate)
	}

	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  int(math.Floor(remaining)),
		ResetTime:  now.Add(refillDuration(float64(burst)-remaining, rate)),
		RetryAfter: retryAfter,
	}, nil
}

func refillDuration(tokens, rate float64) time.Duration {
	if tokens <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(tokens / rate * float64(time.Second))
}

// defaultBucketTTL keeps idle buckets around for twice their full-refill
// time.
func defaultBucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func castToFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
