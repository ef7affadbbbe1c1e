package cachetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.mercari.io/popcache"
)

const lockTimeout = 5 * time.Second

func getAbsent(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	value, ok, err := cache.Get(ctx, popcache.NewKey("Alabama", "Nowhere"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("unexpected hit: %d", value)
	}
}

func setAndGet(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Alabama", "Huntsville")
	if err := cache.Set(ctx, key, 215006); err != nil {
		t.Fatal(err)
	}

	value, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatalf("unexpected miss")
	} else if value != 215006 {
		t.Errorf("unexpected: %v", value)
	}
}

func setAndGetZero(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Nevada", "Rhyolite")
	if err := cache.Set(ctx, key, 0); err != nil {
		t.Fatal(err)
	}

	value, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatalf("zero must not be reported as absent")
	} else if value != 0 {
		t.Errorf("unexpected: %v", value)
	}
}

func setAndGetOverwrite(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Alabama", "Huntsville")
	for _, v := range []int64{100, 200} {
		if err := cache.Set(ctx, key, v); err != nil {
			t.Fatal(err)
		}
	}

	value, _, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if value != 200 {
		t.Errorf("unexpected: %v", value)
	}
}

func remove(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Alabama", "Huntsville")
	if err := cache.Set(ctx, key, 100); err != nil {
		t.Fatal(err)
	}
	if err := cache.Remove(ctx, key); err != nil {
		t.Fatal(err)
	}

	_, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if ok {
		t.Errorf("unexpected hit after Remove")
	}
}

func removeAbsent(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	if err := cache.Remove(ctx, popcache.NewKey("Alabama", "Nowhere")); err != nil {
		t.Errorf("unexpected: %v", err)
	}
}

func withLockReturnsError(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	want := errors.New("boom")
	err := cache.WithLock(ctx, popcache.NewKey("Alabama", "Huntsville"), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("unexpected: %v", err)
	}
}

// lockWithin fails the test when the lock of key can not be taken in time.
func lockWithin(ctx context.Context, t *testing.T, cache popcache.SharedCache, key popcache.Key) {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- cache.WithLock(ctx, key, func(ctx context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WithLock: %v", err)
		}
	case <-time.After(lockTimeout + time.Second):
		t.Fatalf("lock of %s was not released", key)
	}
}

func withLockReleaseOnError(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Alabama", "Huntsville")
	_ = cache.WithLock(ctx, key, func(ctx context.Context) error {
		return errors.New("boom")
	})

	lockWithin(ctx, t, cache, key)
}

func withLockReleaseOnPanic(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Alabama", "Huntsville")
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("panic was swallowed")
			}
		}()
		_ = cache.WithLock(ctx, key, func(ctx context.Context) error {
			panic("boom")
		})
	}()

	lockWithin(ctx, t, cache, key)
}

func withLockSameKeySerialized(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	key := popcache.NewKey("Alabama", "Huntsville")

	var active, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cache.WithLock(ctx, key, func(ctx context.Context) error {
				if atomic.AddInt32(&active, 1) != 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if v := atomic.LoadInt32(&overlaps); v != 0 {
		t.Errorf("unexpected overlaps: %d", v)
	}
}

func withLockOtherKeysProceed(ctx context.Context, t *testing.T, cache popcache.SharedCache) {
	held := popcache.NewKey("Alabama", "Huntsville")
	other := popcache.NewKey("Alabama", "Mobile")

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cache.WithLock(ctx, held, func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	lockWithin(ctx, t, cache, other)

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
