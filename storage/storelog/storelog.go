// Package storelog logs every call made to a DurableStore and its outcome.
package storelog

import (
	"context"
	"sync"

	"go.mercari.io/popcache"
)

var _ popcache.DurableStore = (*Store)(nil)

// Store is a DurableStore logging the calls to the store it wraps.
// Every call gets a number so that its request and result lines can be matched.
type Store struct {
	next   popcache.DurableStore
	prefix string
	logf   func(ctx context.Context, format string, args ...interface{})

	m       sync.Mutex
	counter int
}

// New wraps next. Every line starts with prefix.
func New(next popcache.DurableStore, prefix string, logf func(ctx context.Context, format string, args ...interface{})) *Store {
	return &Store{next: next, prefix: prefix, logf: logf, counter: 1}
}

func (s *Store) count() int {
	s.m.Lock()
	defer s.m.Unlock()
	cnt := s.counter
	s.counter++
	return cnt
}

func (s *Store) Keys(ctx context.Context) ([]popcache.Key, error) {
	cnt := s.count()

	s.logf(ctx, s.prefix+"Keys #%d", cnt)

	keys, err := s.next.Keys(ctx)

	if err == nil {
		s.logf(ctx, s.prefix+"Keys #%d, len(keys)=%d", cnt, len(keys))
	} else {
		s.logf(ctx, s.prefix+"Keys #%d, err=%s", cnt, err.Error())
	}

	return keys, err
}

func (s *Store) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	cnt := s.count()

	s.logf(ctx, s.prefix+"GetItem #%d, key=%s", cnt, key)

	value, ok, err := s.next.GetItem(ctx, key)

	if err != nil {
		s.logf(ctx, s.prefix+"GetItem #%d, err=%s", cnt, err.Error())
	} else if !ok {
		s.logf(ctx, s.prefix+"GetItem #%d, absent", cnt)
	} else {
		s.logf(ctx, s.prefix+"GetItem #%d, value=%d", cnt, value)
	}

	return value, ok, err
}

func (s *Store) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	cnt := s.count()

	s.logf(ctx, s.prefix+"SetItem #%d, key=%s, value=%d", cnt, key, value)

	err := s.next.SetItem(ctx, key, value)

	if err == nil {
		s.logf(ctx, s.prefix+"SetItem #%d, success", cnt)
	} else {
		s.logf(ctx, s.prefix+"SetItem #%d, err=%s", cnt, err.Error())
	}

	return err
}

func (s *Store) Clear(ctx context.Context) error {
	cnt := s.count()

	s.logf(ctx, s.prefix+"Clear #%d", cnt)

	err := s.next.Clear(ctx)

	if err == nil {
		s.logf(ctx, s.prefix+"Clear #%d, success", cnt)
	} else {
		s.logf(ctx, s.prefix+"Clear #%d, err=%s", cnt, err.Error())
	}

	return err
}
