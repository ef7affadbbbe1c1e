package testutils

import (
	"context"
	"sync"
	"time"

	"go.mercari.io/popcache"
)

var _ popcache.DurableStore = (*OverlapStore)(nil)

// OverlapStore records how many SetItem calls of the same key run at the same time.
// Delay keeps every SetItem busy for a while so that overlaps can be observed.
type OverlapStore struct {
	Next  popcache.DurableStore
	Delay time.Duration

	m        sync.Mutex
	running  map[popcache.Key]int
	maxByKey map[popcache.Key]int
	writes   []Write
}

// Write is one SetItem observed by OverlapStore, in completion order.
type Write struct {
	Key   popcache.Key
	Value int64
}

func (s *OverlapStore) enter(key popcache.Key) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.running == nil {
		s.running = make(map[popcache.Key]int)
		s.maxByKey = make(map[popcache.Key]int)
	}
	s.running[key]++
	if s.running[key] > s.maxByKey[key] {
		s.maxByKey[key] = s.running[key]
	}
}

func (s *OverlapStore) leave(key popcache.Key, value int64, err error) {
	s.m.Lock()
	defer s.m.Unlock()

	s.running[key]--
	if err == nil {
		s.writes = append(s.writes, Write{Key: key, Value: value})
	}
}

// MaxOverlap returns the largest number of concurrent SetItem calls seen for key.
func (s *OverlapStore) MaxOverlap(key popcache.Key) int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.maxByKey[key]
}

// Writes returns the successful SetItem calls in completion order.
func (s *OverlapStore) Writes() []Write {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]Write(nil), s.writes...)
}

func (s *OverlapStore) Keys(ctx context.Context) ([]popcache.Key, error) {
	return s.Next.Keys(ctx)
}

func (s *OverlapStore) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	return s.Next.GetItem(ctx, key)
}

func (s *OverlapStore) SetItem(ctx context.Context, key popcache.Key, value int64) (err error) {
	s.enter(key)
	defer func() { s.leave(key, value, err) }()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Next.SetItem(ctx, key, value)
}

func (s *OverlapStore) Clear(ctx context.Context) error {
	return s.Next.Clear(ctx)
}
