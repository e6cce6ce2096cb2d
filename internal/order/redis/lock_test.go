package redis

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-rental/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis runs an in-memory Redis server for the test.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func newTestLock(client *redis.Client, maxWait time.Duration) *VehicleLock {
	return NewVehicleLock(client, logger.NewWriterLogger(io.Discard), time.Minute, maxWait)
}

func TestLockAndUnlock(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLock(client, 50*time.Millisecond)
	ctx := context.Background()

	owner, err := l.Lock(ctx, 7)
	require.NoError(t, err)
	require.NotEmpty(t, owner)

	locked, err := l.IsLocked(ctx, 7)
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = l.Lock(ctx, 7)
	assert.ErrorIs(t, err, ErrLockBusy)

	require.NoError(t, l.Unlock(ctx, 7, owner))
	locked, err = l.IsLocked(ctx, 7)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestUnlockIgnoresForeignOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLock(client, 50*time.Millisecond)
	ctx := context.Background()

	owner, err := l.Lock(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, l.Unlock(ctx, 1, "someone-else"))
	locked, err := l.IsLocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, locked, "foreign owner must not release the lock")

	require.NoError(t, l.Unlock(ctx, 1, owner))
}

func TestLocksAreIndependentPerVehicle(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLock(client, 50*time.Millisecond)
	ctx := context.Background()

	_, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	_, err = l.Lock(ctx, 2)
	assert.NoError(t, err)
}

func TestLockExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := newTestLock(client, 50*time.Millisecond)
	ctx := context.Background()

	_, err := l.Lock(ctx, 3)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = l.Lock(ctx, 3)
	assert.NoError(t, err)
}

func TestLockWaitsForRelease(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLock(client, 2*time.Second)
	ctx := context.Background()

	owner, err := l.Lock(ctx, 9)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = l.Unlock(ctx, 9, owner)
	}()

	second, err := l.Lock(ctx, 9)
	require.NoError(t, err)
	assert.NotEqual(t, owner, second)
}

func TestConcurrentHoldersNeverOverlap(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLock(client, 5*time.Second)
	ctx := context.Background()

	const workers = 10
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner, err := l.Lock(ctx, 11)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, l.Unlock(ctx, 11, owner))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}
