package rediscache

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"go.mercari.io/popcache"
)

var _ popcache.SharedCache = &cacheHandler{}

const (
	defaultLockExpiration  = 30 * time.Second
	defaultMinLockInterval = 2 * time.Millisecond
	defaultMaxLockInterval = 100 * time.Millisecond
)

// unlockScript deletes the lock only while it still holds the caller's token.
var unlockScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// New returns a SharedCache stored in Redis, shared by every process using the same server.
// Values never expire.
func New(pool *redis.Pool, opts ...CacheOption) popcache.SharedCache {
	ch := &cacheHandler{
		pool:            pool,
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
		ch.cacheKey = func(key popcache.Key) string {
			return "popcache:rediscache:" + string(key)
		}
	}

	return ch
}

// NewPool returns a connection pool for the Redis server at addr.
func NewPool(addr string, maxIdle int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

type cacheHandler struct {
	pool            *redis.Pool
	lockExpiration  time.Duration
	minLockInterval time.Duration
	maxLockInterval time.Duration
	logf            func(ctx context.Context, format string, args ...interface{})
	cacheKey        func(key popcache.Key) string
}

// A CacheOption is an option for a rediscache.
type CacheOption interface {
	Apply(*cacheHandler)
}

func (ch *cacheHandler) lockKey(key popcache.Key) string {
	return ch.cacheKey(key) + ":lock"
}

func (ch *cacheHandler) Get(ctx context.Context, key popcache.Key) (int64, bool, error) {
	conn, err := ch.pool.GetContext(ctx)
	if err != nil {
		ch.logf(ctx, "cache/rediscache.Get: pool.GetContext err=%s", err.Error())
		return 0, false, err
	}
	defer conn.Close()

	cacheKey := ch.cacheKey(key)
	value, err := redis.Int64(conn.Do("GET", cacheKey))
	if err == redis.ErrNil {
		return 0, false, nil
	} else if err != nil {
		ch.logf(ctx, `cache/rediscache.Get: conn.Do("GET", "%s") err=%s`, cacheKey, err.Error())
		return 0, false, err
	}

	return value, true, nil
}

func (ch *cacheHandler) Set(ctx context.Context, key popcache.Key, value int64) error {
	conn, err := ch.pool.GetContext(ctx)
	if err != nil {
		ch.logf(ctx, "cache/rediscache.Set: pool.GetContext err=%s", err.Error())
		return err
	}
	defer conn.Close()

	cacheKey := ch.cacheKey(key)
	if _, err := conn.Do("SET", cacheKey, value); err != nil {
		ch.logf(ctx, `cache/rediscache.Set: conn.Do("SET", "%s", %d) err=%s`, cacheKey, value, err.Error())
		return err
	}

	return nil
}

func (ch *cacheHandler) Remove(ctx context.Context, key popcache.Key) error {
	conn, err := ch.pool.GetContext(ctx)
	if err != nil {
		ch.logf(ctx, "cache/rediscache.Remove: pool.GetContext err=%s", err.Error())
		return err
	}
	defer conn.Close()

	cacheKey := ch.cacheKey(key)
	if _, err := conn.Do("DEL", cacheKey); err != nil {
		ch.logf(ctx, `cache/rediscache.Remove: conn.Do("DEL", "%s") err=%s`, cacheKey, err.Error())
		return err
	}

	return nil
}

// WithLock polls for the lock with a doubling interval until it is taken or ctx is done.
// The lock expires after the lock expiration, so f must finish well within it.
func (ch *cacheHandler) WithLock(ctx context.Context, key popcache.Key, f func(ctx context.Context) error) error {
	lockKey := ch.lockKey(key)
	token := uuid.NewString()

	wait := ch.minLockInterval
	for {
		ok, err := ch.tryLock(ctx, lockKey, token)
		if err != nil {
			return err
		}
		if ok {
			break
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

	defer ch.unlock(context.WithoutCancel(ctx), lockKey, token)

	return f(ctx)
}

func (ch *cacheHandler) tryLock(ctx context.Context, lockKey, token string) (bool, error) {
	conn, err := ch.pool.GetContext(ctx)
	if err != nil {
		ch.logf(ctx, "cache/rediscache.WithLock: pool.GetContext err=%s", err.Error())
		return false, err
	}
	defer conn.Close()

	ms := int64(ch.lockExpiration / time.Millisecond)
	_, err = redis.String(conn.Do("SET", lockKey, token, "NX", "PX", ms))
	if err == redis.ErrNil {
		return false, nil
	} else if err != nil {
		ch.logf(ctx, `cache/rediscache.WithLock: conn.Do("SET", "%s", ..., "NX", "PX", %d) err=%s`, lockKey, ms, err.Error())
		return false, err
	}

	return true, nil
}

func (ch *cacheHandler) unlock(ctx context.Context, lockKey, token string) {
	conn, err := ch.pool.GetContext(ctx)
	if err != nil {
		ch.logf(ctx, "cache/rediscache.WithLock: pool.GetContext on unlock err=%s", err.Error())
		return
	}
	defer conn.Close()

	n, err := redis.Int(unlockScript.Do(conn, lockKey, token))
	if err != nil {
		ch.logf(ctx, "cache/rediscache.WithLock: unlock %s err=%s", lockKey, err.Error())
		return
	}
	if n == 0 {
		ch.logf(ctx, "cache/rediscache.WithLock: lock %s expired before unlock", lockKey)
	}
}
