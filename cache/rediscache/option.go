package rediscache

import (
	"context"
	"time"

	"go.mercari.io/popcache"
)

// WithLogger creates a CacheOption which logs Redis failures.
func WithLogger(logf func(ctx context.Context, format string, args ...interface{})) CacheOption {
	return &withLogger{logf}
}

type withLogger struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w *withLogger) Apply(o *cacheHandler) {
	o.logf = w.logf
}

// WithLockExpiration sets how long a lock survives a holder that never releases it.
func WithLockExpiration(d time.Duration) CacheOption {
	return &withLockExpiration{d}
}

type withLockExpiration struct {
	d time.Duration
}

func (w *withLockExpiration) Apply(o *cacheHandler) {
	o.lockExpiration = w.d
}

// WithLockInterval sets the first and the longest wait between lock attempts.
func WithLockInterval(min, max time.Duration) CacheOption {
	return &withLockInterval{min, max}
}

type withLockInterval struct {
	min, max time.Duration
}

func (w *withLockInterval) Apply(o *cacheHandler) {
	o.minLockInterval = w.min
	o.maxLockInterval = w.max
}

// WithCacheKey specifies the Redis key used for each cache key.
func WithCacheKey(f func(key popcache.Key) string) CacheOption {
	return &withCacheKey{f}
}

type withCacheKey struct {
	cacheKey func(key popcache.Key) string
}

func (w *withCacheKey) Apply(o *cacheHandler) {
	o.cacheKey = w.cacheKey
}
