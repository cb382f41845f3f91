package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tipsplit-backend/pkg/redis"
)

const defaultLockTTL = 15 * time.Minute

// Lock coordinates exclusive cron runs across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// holderReporter is implemented by locks that can name their current holder.
type holderReporter interface {
	Holder(ctx context.Context) (string, error)
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock is a SETNX lease on one key. The stored token is
// "<holder>/<uuid>": the holder names the instance, the uuid this acquisition.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	holder string
	token  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl, holder: "cron-worker"}, nil
}

// WithHolder sets the instance name written into the lock token.
func (l *RedisLock) WithHolder(holder string) *RedisLock {
	if holder = strings.TrimSpace(holder); holder != "" {
		l.holder = strings.ReplaceAll(holder, "/", "_")
	}
	return l
}

// Acquire takes the lease for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.holder + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lease if this acquisition still owns it. A lease that
// lapsed and was taken over elsewhere is left in place.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.client.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Holder names the instance currently holding the lease, or "" when free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	token, err := l.client.Get(ctx, l.key)
	if redis.IsNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock: %w", err)
	}
	holder, _, _ := strings.Cut(token, "/")
	return holder, nil
}
