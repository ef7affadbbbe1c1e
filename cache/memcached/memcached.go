package memcached

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/google/uuid"
	"go.mercari.io/popcache"
)

var _ popcache.SharedCache = &cacheHandler{}

const (
	defaultLockExpiration  = 30 * time.Second
	defaultMinLockInterval = 2 * time.Millisecond
	defaultMaxLockInterval = 100 * time.Millisecond

	// memcached rejects keys longer than 250 bytes.
	maxKeyLength = 250
)

// New returns a SharedCache stored in memcached, shared by every process using the same servers.
// Values never expire; the servers must have room for the whole dataset.
func New(client *memcache.Client, opts ...CacheOption) popcache.SharedCache {
	ch := &cacheHandler{
		client:          client,
		lockExpiration:  defaultLockExpiration,
		minLockInterval: defaultMinLockInterval,
		maxLockInterval: defaultMaxLockInterval,
	}

	for _, opt := range opts {
		opt.Apply(ch)
	}

	if ch.logf == nil {
		ch.logf = func(ctx context.Context, format string, args ...interface{}) {}
	}
	if ch.cacheKey == nil {
		ch.cacheKey = DefaultCacheKey
	}

	return ch
}

// DefaultCacheKey maps a key to a memcached key.
// The key is base64 encoded, memcached keys can not hold spaces, and hashed when it would be too long.
func DefaultCacheKey(key popcache.Key) string {
	const prefix = "popcache:memcached:"
	s := prefix + base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(s)+len(":lock") <= maxKeyLength {
		return s
	}
	sum := sha256.Sum256([]byte(key))
	return prefix + "sha256:" + hex.EncodeToString(sum[:])
}

type cacheHandler struct {
	client          *memcache.Client
	lockExpiration  time.Duration
	minLockInterval time.Duration
	maxLockInterval time.Duration
	logf            func(ctx context.Context, format string, args ...interface{})
	cacheKey        func(key popcache.Key) string
}

// A CacheOption is an option for a memcached cache.
type CacheOption interface {
	Apply(*cacheHandler)
}

func (ch *cacheHandler) Get(ctx context.Context, key popcache.Key) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	cacheKey := ch.cacheKey(key)
	item, err := ch.client.Get(cacheKey)
	if err == memcache.ErrCacheMiss {
		return 0, false, nil
	} else if err != nil {
		ch.logf(ctx, "cache/memcached.Get: client.Get %s err=%s", cacheKey, err.Error())
		return 0, false, err
	}

	value, err := strconv.ParseInt(string(item.Value), 10, 64)
	if err != nil {
		ch.logf(ctx, "cache/memcached.Get: malformed value key=%s err=%s", cacheKey, err.Error())
		return 0, false, err
	}

	return value, true, nil
}

func (ch *cacheHandler) Set(ctx context.Context, key popcache.Key, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	item := &memcache.Item{
		Key:   ch.cacheKey(key),
		Value: []byte(strconv.FormatInt(value, 10)),
	}
	if err := ch.client.Set(item); err != nil {
		ch.logf(ctx, "cache/memcached.Set: client.Set %s err=%s", item.Key, err.Error())
		return err
	}

	return nil
}

func (ch *cacheHandler) Remove(ctx context.Context, key popcache.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cacheKey := ch.cacheKey(key)
	err := ch.client.Delete(cacheKey)
	if err != nil && err != memcache.ErrCacheMiss {
		ch.logf(ctx, "cache/memcached.Remove: client.Delete %s err=%s", cacheKey, err.Error())
		return err
	}

	return nil
}

// WithLock takes the lock by adding a lock item, which only one caller can add.
// The lock item expires after the lock expiration, so f must finish well within it.
func (ch *cacheHandler) WithLock(ctx context.Context, key popcache.Key, f func(ctx context.Context) error) error {
	lockKey := ch.cacheKey(key) + ":lock"
	token := uuid.NewString()

	seconds := int32(ch.lockExpiration / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	wait := ch.minLockInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := ch.client.Add(&memcache.Item{
			Key:        lockKey,
			Value:      []byte(token),
			Expiration: seconds,
		})
		if err == nil {
			break
		} else if err != memcache.ErrNotStored {
			ch.logf(ctx, "cache/memcached.WithLock: client.Add %s err=%s", lockKey, err.Error())
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
		if ch.maxLockInterval < wait {
			wait = ch.maxLockInterval
		}
	}

	defer ch.unlock(ctx, lockKey, token)

	return f(ctx)
}

// unlock deletes the lock item if it still carries token.
// memcached has no compare-and-delete; the window between Get and Delete is
// only open when the lock expired under a slow holder.
func (ch *cacheHandler) unlock(ctx context.Context, lockKey, token string) {
	item, err := ch.client.Get(lockKey)
	if err == memcache.ErrCacheMiss {
		ch.logf(ctx, "cache/memcached.WithLock: lock %s expired before unlock", lockKey)
		return
	} else if err != nil {
		ch.logf(ctx, "cache/memcached.WithLock: client.Get %s on unlock err=%s", lockKey, err.Error())
		return
	}
	if string(item.Value) != token {
		ch.logf(ctx, "cache/memcached.WithLock: lock %s taken over before unlock", lockKey)
		return
	}
	if err := ch.client.Delete(lockKey); err != nil && err != memcache.ErrCacheMiss {
		ch.logf(ctx, "cache/memcached.WithLock: client.Delete %s err=%s", lockKey, err.Error())
	}
}
