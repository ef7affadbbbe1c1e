// Package chaosstore makes a DurableStore fail at random.
// It exercises the storage failure paths of the code above it.
package chaosstore

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"go.mercari.io/popcache"
)

// ErrChaos is the error raised instead of calling the wrapped store.
var ErrChaos = errors.New("error from chaosstore")

var _ popcache.DurableStore = (*Store)(nil)

// Store is a DurableStore failing a fraction of the calls to the store it wraps.
type Store struct {
	next popcache.DurableStore
	rate float64

	m sync.Mutex
	r *rand.Rand
}

// New wraps next. By default 20% of the calls fail.
func New(next popcache.DurableStore, s rand.Source, opts ...ChaosOption) *Store {
	cs := &Store{
		next: next,
		rate: 0.2,
		r:    rand.New(s),
	}
	for _, opt := range opts {
		opt.Apply(cs)
	}
	return cs
}

func (s *Store) raiseError() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.r.Float64() < s.rate {
		return ErrChaos
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]popcache.Key, error) {
	if err := s.raiseError(); err != nil {
		return nil, err
	}
	return s.next.Keys(ctx)
}

func (s *Store) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	if err := s.raiseError(); err != nil {
		return 0, false, err
	}
	return s.next.GetItem(ctx, key)
}

func (s *Store) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	if err := s.raiseError(); err != nil {
		return err
	}
	return s.next.SetItem(ctx, key, value)
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.raiseError(); err != nil {
		return err
	}
	return s.next.Clear(ctx)
}
