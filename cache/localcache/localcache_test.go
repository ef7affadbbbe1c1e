package localcache

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/internal/cachetest"
)

func TestLocalCache_Suite(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) (popcache.SharedCache, func()) {
		return New(), func() {}
	})
}

func TestLocalCache_Basic(t *testing.T) {
	ctx := context.Background()

	var logs []string
	logf := func(ctx context.Context, format string, args ...interface{}) {
		t.Logf(format, args...)
		logs = append(logs, fmt.Sprintf(format, args...))
	}

	ch := New(WithLogger(logf))

	key := popcache.NewKey("Alabama", "Huntsville")
	if err := ch.Set(ctx, key, 100); err != nil {
		t.Fatal(err)
	}
	if v := ch.HasCache(key); !v {
		t.Fatalf("unexpected: %v", v)
	}
	if v := ch.CacheLen(); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := ch.CacheKeys(); len(v) != 1 || v[0] != key {
		t.Fatalf("unexpected: %v", v)
	}

	if err := ch.Remove(ctx, key); err != nil {
		t.Fatal(err)
	}
	if v := ch.HasCache(key); v {
		t.Fatalf("unexpected: %v", v)
	}

	expected := heredoc.Doc(`
		cache/localcache.Remove: key=["alabama","huntsville"]
	`)

	if v := strings.Join(logs, "\n") + "\n"; v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestLocalCache_FlushLocalCache(t *testing.T) {
	ctx := context.Background()
	ch := New()

	for i := 0; i < 10; i++ {
		if err := ch.Set(ctx, popcache.NewKey("Alabama", fmt.Sprintf("City%d", i)), int64(i)); err != nil {
			t.Fatal(err)
		}
	}
	if v := ch.CacheLen(); v != 10 {
		t.Fatalf("unexpected: %v", v)
	}

	ch.FlushLocalCache()

	if v := ch.CacheLen(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestLocalCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := New()
	called := false
	err := ch.WithLock(ctx, popcache.NewKey("Alabama", "Huntsville"), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != context.Canceled {
		t.Errorf("unexpected: %v", err)
	}
	if called {
		t.Errorf("f must not run on a canceled context")
	}
}
