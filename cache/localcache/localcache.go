package localcache

import (
	"context"
	"sort"
	"sync"

	"github.com/fishy/rowlock"
	"go.mercari.io/popcache"
)

var _ popcache.SharedCache = &cacheHandler{}

// New returns a SharedCache held in the memory of the current process.
func New(opts ...CacheOption) CacheHandler {
	ch := &cacheHandler{
		cache: make(map[popcache.Key]int64),
		locks: rowlock.NewRowLock(rowlock.MutexNewLocker),
	}

	for _, opt := range opts {
		opt.Apply(ch)
	}

	if ch.logf == nil {
		ch.logf = func(ctx context.Context, format string, args ...interface{}) {}
	}

	return ch
}

// CacheHandler is a SharedCache with inspection helpers for tests.
type CacheHandler interface {
	popcache.SharedCache

	HasCache(key popcache.Key) bool
	CacheKeys() []popcache.Key
	CacheLen() int
	FlushLocalCache()
}

type cacheHandler struct {
	cache map[popcache.Key]int64
	m     sync.RWMutex
	locks *rowlock.RowLock
	logf  func(ctx context.Context, format string, args ...interface{})
}

// A CacheOption is an option for a localcache.
type CacheOption interface {
	Apply(*cacheHandler)
}

func (ch *cacheHandler) HasCache(key popcache.Key) bool {
	ch.m.RLock()
	defer ch.m.RUnlock()
	_, ok := ch.cache[key]
	return ok
}

func (ch *cacheHandler) CacheKeys() []popcache.Key {
	ch.m.RLock()
	defer ch.m.RUnlock()

	list := make([]popcache.Key, 0, len(ch.cache))
	for key := range ch.cache {
		list = append(list, key)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })

	return list
}

func (ch *cacheHandler) CacheLen() int {
	ch.m.RLock()
	defer ch.m.RUnlock()
	return len(ch.cache)
}

func (ch *cacheHandler) FlushLocalCache() {
	ch.m.Lock()
	defer ch.m.Unlock()
	ch.cache = make(map[popcache.Key]int64)
}

func (ch *cacheHandler) Get(ctx context.Context, key popcache.Key) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	ch.m.RLock()
	defer ch.m.RUnlock()

	value, ok := ch.cache[key]
	return value, ok, nil
}

func (ch *cacheHandler) Set(ctx context.Context, key popcache.Key, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.m.Lock()
	defer ch.m.Unlock()

	ch.cache[key] = value
	return nil
}

func (ch *cacheHandler) Remove(ctx context.Context, key popcache.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.m.Lock()
	defer ch.m.Unlock()

	ch.logf(ctx, "cache/localcache.Remove: key=%s", key)
	delete(ch.cache, key)
	return nil
}

// WithLock waits for the lock of key without watching ctx;
// ctx is only checked before waiting.
func (ch *cacheHandler) WithLock(ctx context.Context, key popcache.Key, f func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.locks.Lock(key)
	defer ch.locks.Unlock(key)

	return f(ctx)
}
