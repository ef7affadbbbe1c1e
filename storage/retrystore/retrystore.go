// Package retrystore retries failed DurableStore calls with exponential backoff.
//
// DurableStore implementations never retry on their own, wrap them with New when
// a transient failure should not reach the Manager.
package retrystore

import (
	"context"
	"math"
	"time"

	"go.mercari.io/popcache"
)

var _ popcache.DurableStore = (*Store)(nil)

// Store is a DurableStore retrying the calls of the store it wraps.
type Store struct {
	next popcache.DurableStore

	retryLimit         int
	minBackoffDuration time.Duration
	maxBackoffDuration time.Duration
	maxDoublings       int
	logf               func(ctx context.Context, format string, args ...interface{})
}

// New wraps next. By default a call is retried 3 times, waiting 100ms, 200ms then 400ms.
func New(next popcache.DurableStore, opts ...RetryOption) *Store {
	s := &Store{
		next:               next,
		retryLimit:         3,
		minBackoffDuration: 100 * time.Millisecond,
		logf:               func(ctx context.Context, format string, args ...interface{}) {},
	}

	for _, opt := range opts {
		opt.Apply(s)
	}

	return s
}

func (s *Store) waitDuration(retry int) time.Duration {
	d := 10 * time.Millisecond
	if 0 <= s.minBackoffDuration {
		d = s.minBackoffDuration
	}

	m := retry
	if 0 < s.maxDoublings && s.maxDoublings < m {
		m = s.maxDoublings
	}
	if m <= 0 {
		m = 1
	}

	wait := math.Pow(2, float64(m-1)) * float64(d)

	if 0 < s.maxBackoffDuration {
		wait = math.Min(wait, float64(s.maxBackoffDuration))
	}

	return time.Duration(wait)
}

// try calls f until it succeeds, the retry limit is reached or ctx is done.
// The last error of f is returned.
func (s *Store) try(ctx context.Context, logPrefix string, f func() error) error {
	retry := 0
	for {
		err := f()
		if err == nil {
			return nil
		}
		if s.retryLimit <= retry || ctx.Err() != nil {
			return err
		}
		retry++

		d := s.waitDuration(retry)
		s.logf(ctx, "%s: err=%s, will be retry #%d after %s", logPrefix, err.Error(), retry, d.String())

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}

func (s *Store) Keys(ctx context.Context) (keys []popcache.Key, err error) {
	err = s.try(ctx, "storage/retrystore.Keys", func() error {
		keys, err = s.next.Keys(ctx)
		return err
	})
	return
}

func (s *Store) GetItem(ctx context.Context, key popcache.Key) (value int64, ok bool, err error) {
	err = s.try(ctx, "storage/retrystore.GetItem", func() error {
		value, ok, err = s.next.GetItem(ctx, key)
		return err
	})
	return
}

func (s *Store) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	return s.try(ctx, "storage/retrystore.SetItem", func() error {
		return s.next.SetItem(ctx, key, value)
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.try(ctx, "storage/retrystore.Clear", func() error {
		return s.next.Clear(ctx)
	})
}
