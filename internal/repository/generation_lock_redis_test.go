package repository

import (
	"context"
	"exam_proctor_backend/internal/testutil"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisGenerationLock(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	addr, terminate := testutil.StartRedis(ctx, t)
	defer terminate()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	first := NewGenerationLock(rdb, 5*time.Second)
	second := NewGenerationLock(rdb, 5*time.Second)
	second.PollInterval = 10 * time.Millisecond

	release, err := first.Acquire(ctx, "ana@example.com")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = second.Acquire(waitCtx, "ana@example.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	releaseSecond, err := second.Acquire(ctx, "ana@example.com")
	require.NoError(t, err)
	defer releaseSecond()

	ttl, err := rdb.TTL(ctx, generationLockPrefix+"ana@example.com").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
