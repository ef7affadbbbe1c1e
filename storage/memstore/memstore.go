// Package memstore is a DurableStore kept in process memory.
//
// It is not crash durable. Use it in tests or when persistence is not wanted.
package memstore

import (
	"context"
	"sync"

	"go.mercari.io/popcache"
)

var _ popcache.DurableStore = (*Store)(nil)

// Store implements popcache.DurableStore on a map.
type Store struct {
	m    sync.RWMutex
	data map[popcache.Key]int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		data: make(map[popcache.Key]int64),
	}
}

func (s *Store) Keys(ctx context.Context) ([]popcache.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	keys := make([]popcache.Key, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	value, ok := s.data[key]
	return value, ok, nil
}

func (s *Store) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.m.Lock()
	defer s.m.Unlock()

	s.data[key] = value
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.m.Lock()
	defer s.m.Unlock()

	s.data = make(map[popcache.Key]int64)
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.m.RLock()
	defer s.m.RUnlock()
	return len(s.data)
}
