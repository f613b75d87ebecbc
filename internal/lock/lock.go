// Package lock serializes admin passes (dedupe, bulk import) across instances.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"recon-dashboard/pkg/logger"
)

var ErrNotObtained = errors.New("lock: could not obtain lock")

// Releaser releases an obtained lock
type Releaser interface {
	Release(ctx context.Context) error
}

// Locker hands out named, time-bounded mutual exclusion
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error)
}

// RedisLocker backs Locker with redislock so several API instances share it
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), prefix: prefix}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	lockKey := l.prefix + ":lock:" + key
	lk, err := l.client.Obtain(ctx, lockKey, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.GetLogger().WithField("key", lockKey).Warn("Could not obtain lock")
		return nil, ErrNotObtained
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("key", lockKey).Error("Error obtaining lock")
		return nil, err
	}
	return lk, nil
}

// LocalLocker is the single-process fallback used with the memory and SQL stores
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		logger.GetLogger().WithFields(logrus.Fields{
			"key":        key,
			"expires_at": expiry,
		}).Warn("Could not obtain lock")
		return nil, ErrNotObtained
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry
	return &localLease{locker: l, key: key, expiry: expiry}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	expiry time.Time
}

func (r *localLease) Release(ctx context.Context) error {
	r.locker.mu.Lock()
	defer r.locker.mu.Unlock()

	// a lease that expired may already belong to someone else
	if current, ok := r.locker.held[r.key]; ok && current.Equal(r.expiry) {
		delete(r.locker.held, r.key)
	}
	return nil
}
