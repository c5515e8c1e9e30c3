package locks_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/locks"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := locks.NewKeyed()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unlock, err := k.Lock(context.Background(), "bk-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	k := locks.NewKeyed()
	_, unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyed_ReentrantThroughContext(t *testing.T) {
	k := locks.NewKeyed()
	ctx, unlock, err := k.Lock(context.Background(), "bk-1")
	require.NoError(t, err)
	defer unlock()

	nested, unlockNested, err := k.Lock(ctx, "bk-1")
	require.NoError(t, err)
	unlockNested()
	assert.True(t, locks.Held(nested, "bk-1"))
	assert.False(t, locks.Held(context.Background(), "bk-1"))
}

func TestKeyed_HonoursContext(t *testing.T) {
	k := locks.NewKeyed()
	_, unlock, err := k.Lock(context.Background(), "bk-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = k.Lock(ctx, "bk-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyed_UnlockIsIdempotent(t *testing.T) {
	k := locks.NewKeyed()
	_, unlock, err := k.Lock(context.Background(), "bk-1")
	require.NoError(t, err)
	unlock()
	unlock()

	_, unlock2, err := k.Lock(context.Background(), "bk-1")
	require.NoError(t, err)
	unlock2()
}
