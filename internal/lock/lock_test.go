package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_ExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	first, err := l.Obtain(ctx, "dedupe", time.Minute)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "dedupe", time.Minute)
	assert.ErrorIs(t, err, ErrNotObtained)

	_, err = l.Obtain(ctx, "other", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, first.Release(ctx))
	_, err = l.Obtain(ctx, "dedupe", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	stale, err := l.Obtain(ctx, "dedupe", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Obtain(ctx, "dedupe", time.Minute)
	require.NoError(t, err)

	// releasing the expired lease must not drop the new holder
	require.NoError(t, stale.Release(ctx))
	_, err = l.Obtain(ctx, "dedupe", time.Minute)
	assert.ErrorIs(t, err, ErrNotObtained)

	require.NoError(t, fresh.Release(ctx))
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLocker(rdb, "test")

	held, err := l.Obtain(ctx, "dedupe", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:dedupe"))

	_, err = l.Obtain(ctx, "dedupe", time.Minute)
	assert.ErrorIs(t, err, ErrNotObtained)

	require.NoError(t, held.Release(ctx))
	again, err := l.Obtain(ctx, "dedupe", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
