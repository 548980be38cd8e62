package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalGenerationLockSerializes(t *testing.T) {
	lock := NewGenerationLock(nil, time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lock.Acquire(context.Background(), "ana@example.com")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
			release()
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, maxInside)
}

func TestLocalGenerationLockHonoursContext(t *testing.T) {
	lock := NewGenerationLock(nil, time.Second)

	release, err := lock.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := lock.Acquire(context.Background(), "other")
	require.NoError(t, err)
	other()
}
