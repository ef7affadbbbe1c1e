package popcache_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/cache/localcache"
	"go.mercari.io/popcache/internal/testutils"
	"go.mercari.io/popcache/storage/chaosstore"
	"go.mercari.io/popcache/storage/memstore"
	"go.mercari.io/popcache/storage/retrystore"
)

func TestManager_ReadYourWrites(t *testing.T) {
	ctx := context.Background()

	m := popcache.NewManager(localcache.New(), memstore.New())
	defer m.Close(ctx)

	for _, v := range []int64{100, 200, 0} {
		if _, err := m.Set(ctx, "Huntsville", "Alabama", v); err != nil {
			t.Fatal(err)
		}
		// no wait on the durable write, the cache answers right away.
		value, ok, err := m.Get(ctx, "Huntsville", "Alabama")
		if err != nil {
			t.Fatal(err)
		} else if !ok || value != v {
			t.Errorf("unexpected: %v %v", value, ok)
		}
	}
}

func TestManager_AbsentIsNotZero(t *testing.T) {
	ctx := context.Background()

	m := popcache.NewManager(localcache.New(), memstore.New())
	defer m.Close(ctx)

	value, ok, err := m.Get(ctx, "Nowhere", "Alabama")
	if err != nil {
		t.Fatal(err)
	} else if ok {
		t.Errorf("unexpected hit: %v", value)
	}

	if _, err := m.Set(ctx, "Rhyolite", "Nevada", 0); err != nil {
		t.Fatal(err)
	}
	value, ok, err = m.Get(ctx, "Rhyolite", "Nevada")
	if err != nil {
		t.Fatal(err)
	} else if !ok || value != 0 {
		t.Errorf("unexpected: %v %v", value, ok)
	}
}

func TestManager_SetPersists(t *testing.T) {
	ctx := context.Background()

	store := memstore.New()
	m := popcache.NewManager(localcache.New(), store)
	defer m.Close(ctx)

	p, err := m.Set(ctx, "Huntsville", "Alabama", 215006)
	if err != nil {
		t.Fatal(err)
	}
	if v := p.Key(); v != popcache.NewKey("Alabama", "Huntsville") {
		t.Errorf("unexpected: %v", v)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	value, ok, err := store.GetItem(ctx, p.Key())
	if err != nil {
		t.Fatal(err)
	} else if !ok || value != 215006 {
		t.Errorf("unexpected: %v %v", value, ok)
	}
}

func TestManager_SetNegative(t *testing.T) {
	ctx := context.Background()

	m := popcache.NewManager(localcache.New(), memstore.New())
	defer m.Close(ctx)

	if _, err := m.Set(ctx, "Huntsville", "Alabama", -1); !popcache.IsParseError(err) {
		t.Errorf("unexpected: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "Huntsville", "Alabama"); ok {
		t.Errorf("rejected value must not reach the cache")
	}
}

func TestManager_SetOutlivesRequestContext(t *testing.T) {
	store := &testutils.OverlapStore{Next: memstore.New(), Delay: 20 * time.Millisecond}
	m := popcache.NewManager(localcache.New(), store)
	defer m.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	p, err := m.Set(ctx, "Huntsville", "Alabama", 100)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v := store.Writes(); len(v) != 1 || v[0].Value != 100 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestManager_NoOverlappingDurableWrites(t *testing.T) {
	ctx := context.Background()

	store := &testutils.OverlapStore{Next: memstore.New(), Delay: 2 * time.Millisecond}
	cache := localcache.New()
	m := popcache.NewManager(cache, store)
	defer m.Close(ctx)

	var wg sync.WaitGroup
	for i := 1; i <= 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Set(ctx, "Huntsville", "Alabama", int64(i)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	key := popcache.NewKey("Alabama", "Huntsville")
	if v := store.MaxOverlap(key); v != 1 {
		t.Errorf("unexpected: %v", v)
	}

	cached, _, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	persisted, _, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if cached != persisted {
		t.Errorf("unexpected: cached=%v persisted=%v", cached, persisted)
	}
}

func TestManager_OtherKeysWriteConcurrently(t *testing.T) {
	ctx := context.Background()

	store := &testutils.OverlapStore{Next: memstore.New(), Delay: 50 * time.Millisecond}
	m := popcache.NewManager(localcache.New(), store)
	defer m.Close(ctx)

	start := time.Now()
	for _, city := range []string{"Huntsville", "Mobile", "Montgomery", "Birmingham"} {
		if _, err := m.Set(ctx, city, "Alabama", 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if v := time.Since(start); v > 180*time.Millisecond {
		t.Errorf("writes of other keys must not wait for each other: %v", v)
	}
}

func TestManager_DurableWriteFailure(t *testing.T) {
	ctx := context.Background()

	var logs testutils.Logs
	cache := localcache.New()
	m := popcache.NewManager(
		cache,
		chaosstore.New(memstore.New(), rand.NewSource(1), chaosstore.WithFailureRate(1)),
		popcache.WithLogger(logs.Logf(t)),
	)
	defer m.Close(ctx)

	p, err := m.Set(ctx, "Huntsville", "Alabama", 100)
	if err != nil {
		t.Fatal(err)
	}

	err = p.Wait(ctx)
	if !popcache.IsStorageError(err) {
		t.Fatalf("unexpected: %v", err)
	}
	if !errors.Is(err, chaosstore.ErrChaos) {
		t.Errorf("unexpected: %v", err)
	}
	if v := p.Err(); v != err {
		t.Errorf("unexpected: %v", v)
	}

	// the cache keeps the value, it is not rolled back.
	value, ok, err := m.Get(ctx, "Huntsville", "Alabama")
	if err != nil {
		t.Fatal(err)
	} else if !ok || value != 100 {
		t.Errorf("unexpected: %v %v", value, ok)
	}

	expected := heredoc.Doc(`
		popcache.Manager.Set: durable write failed key=["alabama","huntsville"] err=popcache: storage SetItem key=["alabama","huntsville"]: error from chaosstore
	`)

	if v := logs.String(); v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestManager_RetryStoreHidesTransientFailure(t *testing.T) {
	ctx := context.Background()

	inner := memstore.New()
	store := retrystore.New(
		&testutils.GlitchStore{Next: inner, ErrCount: 2},
		retrystore.WithMinBackoffDuration(time.Millisecond),
	)
	m := popcache.NewManager(localcache.New(), store)
	defer m.Close(ctx)

	p, err := m.Set(ctx, "Huntsville", "Alabama", 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if v := inner.Len(); v != 1 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestManager_RemovedBeforePersisting(t *testing.T) {
	ctx := context.Background()

	var logs testutils.Logs
	cache := localcache.New()
	store := memstore.New()
	m := popcache.NewManager(cache, store, popcache.WithLogger(logs.Logf(t)))
	defer m.Close(ctx)

	key := popcache.NewKey("Alabama", "Huntsville")

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cache.WithLock(ctx, key, func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	p, err := m.Set(ctx, "Huntsville", "Alabama", 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Remove(ctx, key); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if v := store.Len(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}

	expected := heredoc.Doc(`
		popcache.Manager.Set: key=["alabama","huntsville"] removed before persisting, skip
	`)

	if v := logs.String(); v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestManager_PersistsValueHeldAtLock(t *testing.T) {
	ctx := context.Background()

	cache := localcache.New()
	store := &testutils.OverlapStore{Next: memstore.New()}
	m := popcache.NewManager(cache, store)
	defer m.Close(ctx)

	key := popcache.NewKey("Alabama", "Huntsville")

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cache.WithLock(ctx, key, func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	for _, v := range []int64{100, 200} {
		if _, err := m.Set(ctx, "Huntsville", "Alabama", v); err != nil {
			t.Fatal(err)
		}
	}
	close(release)

	if err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	// both writes entered the section after the second Set.
	writes := store.Writes()
	if len(writes) != 2 {
		t.Fatalf("unexpected: %v", writes)
	}
	for _, w := range writes {
		if w.Value != 200 {
			t.Errorf("unexpected: %v", writes)
		}
	}
}

func TestManager_LoadBulk(t *testing.T) {
	ctx := context.Background()

	var logs testutils.Logs
	store := memstore.New()
	m := popcache.NewManager(localcache.New(), store, popcache.WithLogger(logs.Logf(t)))
	defer m.Close(ctx)

	src := popcache.RecordList{
		{Region: "Alabama", Locality: "Huntsville", Value: "215006"},
		{Region: "Texas", Locality: "Austin", Value: "abc"},
		{Region: "Texas", Locality: "Dallas", Value: "-5"},
		{Region: "Nevada", Locality: "Rhyolite", Value: "0"},
		{Region: "Ohio", Locality: "Cleveland", Value: ""},
	}

	for i := 0; i < 2; i++ {
		stats, err := m.LoadBulk(ctx, src)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Applied != 2 || stats.Skipped != 3 {
			t.Errorf("unexpected: %+v", stats)
		}
		// durable writes are done when LoadBulk returns.
		if v := store.Len(); v != 2 {
			t.Errorf("unexpected: %v", v)
		}
	}

	for _, tt := range []struct {
		region, locality string
		value            int64
		ok               bool
	}{
		{"Alabama", "Huntsville", 215006, true},
		{"Nevada", "Rhyolite", 0, true},
		{"Texas", "Austin", 0, false},
		{"Texas", "Dallas", 0, false},
		{"Ohio", "Cleveland", 0, false},
	} {
		value, ok, err := m.Get(ctx, tt.locality, tt.region)
		if err != nil {
			t.Fatal(err)
		} else if ok != tt.ok || value != tt.value {
			t.Errorf("%s, %s unexpected: %v %v", tt.locality, tt.region, value, ok)
		}
	}

	expected := heredoc.Doc(`
		popcache.Manager.LoadBulk: record "Austin, Texas, abc" expected value to be a non-negative integer, skip
		popcache.Manager.LoadBulk: record "Dallas, Texas, -5" expected value to be a non-negative integer, skip
		popcache.Manager.LoadBulk: record "Cleveland, Ohio, " expected value to be a non-negative integer, skip
		popcache.Manager.LoadBulk: applied=2 skipped=3
	`)

	if v := logs.Lines(); len(v) != 8 {
		t.Errorf("unexpected: %v", v)
	} else if v := strings.Join(v[:4], "\n") + "\n"; v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestManager_LoadBulkStorageFailure(t *testing.T) {
	ctx := context.Background()

	m := popcache.NewManager(
		localcache.New(),
		chaosstore.New(memstore.New(), rand.NewSource(1), chaosstore.WithFailureRate(1)),
	)
	defer m.Close(ctx)

	stats, err := m.LoadBulk(ctx, popcache.RecordList{
		{Region: "Alabama", Locality: "Huntsville", Value: "1"},
		{Region: "Alabama", Locality: "Mobile", Value: "2"},
	})
	if !popcache.IsStorageError(err) {
		t.Fatalf("unexpected: %v", err)
	}
	if stats.Applied != 2 {
		t.Errorf("unexpected: %+v", stats)
	}
}

func TestManager_Clear(t *testing.T) {
	ctx := context.Background()

	var logs testutils.Logs
	cache := localcache.New()
	store := memstore.New()
	m := popcache.NewManager(cache, store, popcache.WithLogger(logs.Logf(t)))
	defer m.Close(ctx)

	for _, city := range []string{"Huntsville", "Mobile"} {
		if _, err := m.Set(ctx, city, "Alabama", 1); err != nil {
			t.Fatal(err)
		}
	}
	// no Wait, Clear must not let a pending write bring a key back.
	if err := m.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	for _, city := range []string{"Huntsville", "Mobile"} {
		if _, ok, _ := m.Get(ctx, city, "Alabama"); ok {
			t.Errorf("%s must be absent after Clear", city)
		}
	}
	if v := cache.CacheLen(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
	if v := store.Len(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}

	expected := heredoc.Doc(`
		popcache.Manager.Clear: len=2
	`)

	if v := logs.String(); v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestManager_ClearStorageFailure(t *testing.T) {
	ctx := context.Background()

	m := popcache.NewManager(localcache.New(), &testutils.GlitchStore{Next: memstore.New(), ErrCount: 1})
	defer m.Close(ctx)

	if err := m.Clear(ctx); !popcache.IsStorageError(err) {
		t.Errorf("unexpected: %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	ctx := context.Background()

	store := &testutils.OverlapStore{Next: memstore.New(), Delay: 10 * time.Millisecond}
	m := popcache.NewManager(localcache.New(), store)

	p, err := m.Set(ctx, "Huntsville", "Alabama", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-p.Done():
	default:
		t.Errorf("Close must wait for the write in flight")
	}

	if _, err := m.Set(ctx, "Mobile", "Alabama", 1); err != popcache.ErrClosed {
		t.Errorf("unexpected: %v", err)
	}
}

func TestManager_MaxInflightWrites(t *testing.T) {
	ctx := context.Background()

	store := &testutils.OverlapStore{Next: memstore.New(), Delay: 20 * time.Millisecond}
	m := popcache.NewManager(localcache.New(), store, popcache.WithMaxInflightWrites(1))
	defer m.Close(ctx)

	start := time.Now()
	for _, city := range []string{"Huntsville", "Mobile", "Montgomery"} {
		if _, err := m.Set(ctx, city, "Alabama", 1); err != nil {
			t.Fatal(err)
		}
	}
	if v := time.Since(start); v > 20*time.Millisecond {
		t.Errorf("Set must not wait for a write slot: %v", v)
	}
	if err := m.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if v := time.Since(start); v < 60*time.Millisecond {
		t.Errorf("writes must run one at a time: %v", v)
	}
}

type brokenCache struct {
	popcache.SharedCache
	err error
}

func (c *brokenCache) Get(ctx context.Context, key popcache.Key) (int64, bool, error) {
	return 0, false, c.err
}

func TestManager_GetDoesNotMaskCacheErrors(t *testing.T) {
	ctx := context.Background()

	cacheErr := errors.New("cache is down")
	m := popcache.NewManager(&brokenCache{SharedCache: localcache.New(), err: cacheErr}, memstore.New())
	defer m.Close(ctx)

	if _, _, err := m.Get(ctx, "Huntsville", "Alabama"); err != cacheErr {
		t.Errorf("unexpected: %v", err)
	}
}
