package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyJobLock = "promptly:lock:%s"

const defaultJobLockTTL = 2 * time.Minute

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrEmptyLockKey      = errors.New("empty_lock_key")
	ErrInvalidLockTTL    = errors.New("invalid_lock_ttl")
)

// Both scripts act only while the caller's token still owns the key.
const (
	releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`
)

// Locker is a single-key owner-token lock on redis.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(releaseScript),
		extend:  redis.NewScript(extendScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	if strings.TrimSpace(key) == "" {
		return "", false, ErrEmptyLockKey
	}
	if ttl <= 0 {
		return "", false, ErrInvalidLockTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Extend pushes the expiry out by ttl. It reports false once the lock has
// been lost to expiry or another owner.
func (l *Locker) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, ErrLockNotConfigured
	}
	if ttl <= 0 {
		return false, ErrInvalidLockTTL
	}
	n, err := l.extend.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

// JobLock serializes batch jobs across processes and keeps the lease alive
// while the holder runs. Without redis every acquire succeeds and the jobs
// rely on their own row-level guards.
type JobLock struct {
	locker *Locker
	ttl    time.Duration
}

func NewJobLock(client *redis.Client) *JobLock {
	return &JobLock{locker: NewLocker(client), ttl: defaultJobLockTTL}
}

func (j *JobLock) Enabled() bool {
	return j != nil && j.locker != nil
}

func JobLockKey(job string) string {
	return fmt.Sprintf(keyJobLock, strings.TrimSpace(job))
}

// Acquire returns a release func and whether the caller holds the lock.
// The lease is renewed every third of its ttl until release is called.
func (j *JobLock) Acquire(ctx context.Context, job string) (func(), bool, error) {
	if !j.Enabled() {
		return func() {}, true, nil
	}
	key := JobLockKey(job)
	token, ok, err := j.locker.TryLock(ctx, key, j.ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}

	bg := context.WithoutCancel(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(j.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if held, err := j.locker.Extend(bg, key, token, j.ttl); err != nil || !held {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			_ = j.locker.Release(bg, key, token)
		})
	}, true, nil
}
