package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/promptly/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLimiterWithoutRedisAllows(t *testing.T) {
	l := NewGenerateLimiter(config.Config{Usage: config.UsageConfig{GenerateRate: 1, GenerateBurst: 5}}, nil)
	assert.False(t, l.Enabled())

	res, err := l.AllowAccount(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestJobLockWithoutRedisAlwaysAcquires(t *testing.T) {
	j := NewJobLock(nil)
	assert.False(t, j.Enabled())

	release, ok, err := j.Acquire(context.Background(), "reset_due")
	require.NoError(t, err)
	assert.True(t, ok)
	release()

	assert.Equal(t, "promptly:lock:reset_due", JobLockKey(" reset_due "))
}

func TestNilBucketAndLocker(t *testing.T) {
	var b *TokenBucket
	res, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrLimiterNotConfigured)
	assert.False(t, res.Allowed)

	var l *Locker
	_, _, err = l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	_, err = l.Extend(context.Background(), "k", "t", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, defaultBucketTTL(1, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 5))
}

func TestCasts(t *testing.T) {
	assert.Equal(t, int64(3), castToInt(int64(3)))
	assert.Equal(t, int64(2), castToInt(2.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, int64(17), castToInt("17"))
	assert.Equal(t, 1.5, castToFloat("1.5"))
	assert.Equal(t, 4.0, castToFloat(int64(4)))
	assert.Equal(t, 0.0, castToFloat(nil))
}

func TestRefillDuration(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, refillDuration(0.5, 1))
	assert.Equal(t, time.Duration(0), refillDuration(-1, 1))
	assert.Equal(t, time.Duration(0), refillDuration(1, 0))
	assert.Equal(t, 2*time.Second, refillDuration(4, 2))
}
