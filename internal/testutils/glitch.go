package testutils

import (
	"context"
	"fmt"
	"sync"

	"go.mercari.io/popcache"
)

var _ popcache.DurableStore = (*GlitchStore)(nil)

// GlitchStore fails the first ErrCount calls of every (operation, key) pair,
// then passes them to Next.
type GlitchStore struct {
	Next     popcache.DurableStore
	ErrCount int

	m      sync.Mutex
	raised map[string]map[popcache.Key]int // raised["SetItem"][key] = 1
}

func (gs *GlitchStore) raiseError(opName string, key popcache.Key) error {
	gs.m.Lock()
	defer gs.m.Unlock()

	if gs.raised == nil {
		gs.raised = make(map[string]map[popcache.Key]int)
	}
	if _, ok := gs.raised[opName]; !ok {
		gs.raised[opName] = make(map[popcache.Key]int)
	}
	cnt := gs.raised[opName][key]
	if cnt != gs.ErrCount {
		gs.raised[opName][key] = cnt + 1
		return fmt.Errorf("error by *GlitchStore: %s, key=%s", opName, key)
	}

	return nil
}

func (gs *GlitchStore) Keys(ctx context.Context) ([]popcache.Key, error) {
	if err := gs.raiseError("Keys", ""); err != nil {
		return nil, err
	}
	return gs.Next.Keys(ctx)
}

func (gs *GlitchStore) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	if err := gs.raiseError("GetItem", key); err != nil {
		return 0, false, err
	}
	return gs.Next.GetItem(ctx, key)
}

func (gs *GlitchStore) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	if err := gs.raiseError("SetItem", key); err != nil {
		return err
	}
	return gs.Next.SetItem(ctx, key, value)
}

func (gs *GlitchStore) Clear(ctx context.Context) error {
	if err := gs.raiseError("Clear", ""); err != nil {
		return err
	}
	return gs.Next.Clear(ctx)
}
