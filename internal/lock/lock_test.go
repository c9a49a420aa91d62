package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/lock"
)

func exerciseOrdering(t *testing.T, locker lock.Locker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	secondDone := make(chan error, 1)

	go func() {
		_ = locker.WithLock(ctx, lock.CheckoutKey("owner"), 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		secondDone <- locker.WithLock(ctx, lock.CheckoutKey("owner"), 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order, "second holder must wait")
	mu.Unlock()

	close(releaseFirst)
	require.NoError(t, <-secondDone)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRedisWithLockSerializes(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseOrdering(t, lock.Redis{R: client, RetryBackoff: 5 * time.Millisecond})
	require.False(t, mr.Exists(lock.CheckoutKey("owner")), "lock is released")
}

func TestLocalWithLockSerializes(t *testing.T) {
	exerciseOrdering(t, lock.NewLocal())
}

func TestLocalReleasesOnError(t *testing.T) {
	l := lock.NewLocal()
	boom := errors.New("boom")
	ctx := context.Background()

	err := l.WithLock(ctx, "k", 0, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, l.WithLock(ctx, "k", 0, func(context.Context) error { return nil }))
}

func TestLocalHonoursContext(t *testing.T) {
	l := lock.NewLocal()
	hold := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", 0, func(context.Context) error {
			close(acquired)
			<-hold
			return nil
		})
	}()
	<-acquired
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalDropsIdleSlots(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		key := lock.CheckoutKey("guest:" + time.Duration(i).String())
		require.NoError(t, l.WithLock(ctx, key, 0, func(context.Context) error { return nil }))
	}
	require.Zero(t, lock.SlotCount(l))

	hold := make(chan struct{})
	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.WithLock(ctx, "k", 0, func(context.Context) error {
			close(acquired)
			<-hold
			return nil
		})
	}()
	<-acquired
	require.Equal(t, 1, lock.SlotCount(l))

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.WithLock(waitCtx, "k", 0, func(context.Context) error { return nil }), context.DeadlineExceeded)
	require.Equal(t, 1, lock.SlotCount(l), "holder keeps the slot")

	close(hold)
	<-done
	require.Zero(t, lock.SlotCount(l))
}
