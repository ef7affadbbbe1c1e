package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/fishy/errbatch"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/cache/localcache"
	"go.mercari.io/popcache/cache/memcached"
	"go.mercari.io/popcache/cache/rediscache"
	"go.mercari.io/popcache/internal/config"
	"go.mercari.io/popcache/storage/dsstore"
	"go.mercari.io/popcache/storage/memstore"
	"go.mercari.io/popcache/storage/retrystore"
	"go.mercari.io/popcache/storage/sqlitestore"
	"go.mercari.io/popcache/storage/storelog"
)

// backends holds the cache and store of the process and what must be closed on exit.
type backends struct {
	cache   popcache.SharedCache
	store   popcache.DurableStore
	closers []io.Closer
}

func (b *backends) Close() error {
	batch := errbatch.NewErrBatch()
	for i := len(b.closers) - 1; i >= 0; i-- {
		batch.Add(b.closers[i].Close())
	}
	return batch.Compile()
}

func logf(ctx context.Context, format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}

	store, err := openStore(ctx, cfg, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.store = store

	cache, err := openCache(cfg, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.cache = cache

	return b, nil
}

func openStore(ctx context.Context, cfg config.Config, b *backends) (popcache.DurableStore, error) {
	var store popcache.DurableStore
	switch cfg.Store {
	case config.StoreMemory:
		store = memstore.New()
	case config.StoreSQLite:
		s, err := sqlitestore.OpenDir(ctx, cfg.PersistDir, sqlitestore.WithLogger(logf))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, s)
		store = s
	case config.StoreDatastore:
		s, err := dsstore.Open(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("dsstore: %w", err)
		}
		b.closers = append(b.closers, s)
		store = s
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.LogLevel == "debug" {
		store = storelog.New(store, "storage: ", logf)
	}
	if cfg.StoreRetries > 0 {
		store = retrystore.New(store, retrystore.WithRetryLimit(cfg.StoreRetries), retrystore.WithLogf(logf))
	}

	return store, nil
}

func openCache(cfg config.Config, b *backends) (popcache.SharedCache, error) {
	switch cfg.Cache {
	case config.CacheLocal:
		return localcache.New(localcache.WithLogger(logf)), nil
	case config.CacheRedis:
		pool := rediscache.NewPool(cfg.RedisAddr, cfg.Workers+1)
		b.closers = append(b.closers, pool)
		return rediscache.New(pool, rediscache.WithLogger(logf)), nil
	case config.CacheMemcache:
		client := memcache.New(cfg.MemcacheAddr)
		return memcached.New(client, memcached.WithLogger(logf)), nil
	default:
		return nil, fmt.Errorf("unknown cache %q", cfg.Cache)
	}
}
