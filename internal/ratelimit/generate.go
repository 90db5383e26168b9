package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/promptly/internal/config"
)

const keyGenerateAccount = "promptly:generate:account:%s"

// GenerateLimiter throttles the credit-metered generate endpoint per account.
// Without redis it allows everything.
type GenerateLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewGenerateLimiter(cfg config.Config, client *redis.Client) *GenerateLimiter {
	if client == nil || cfg.Usage.GenerateRate <= 0 || cfg.Usage.GenerateBurst <= 0 {
		return &GenerateLimiter{}
	}
	return &GenerateLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.Usage.GenerateRate,
		burst:  cfg.Usage.GenerateBurst,
	}
}

func (l *GenerateLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *GenerateLimiter) AllowAccount(ctx context.Context, accountID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyGenerateAccount, strings.TrimSpace(accountID)), l.rate, l.burst)
}
