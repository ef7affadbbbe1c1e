package memstore

import (
	"context"
	"testing"

	"go.mercari.io/popcache"
	"go.mercari.io/popcache/internal/storetest"
)

func TestMemStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (popcache.DurableStore, func()) {
		return New(), func() {}
	})
}

func TestMemStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	if err := s.SetItem(ctx, popcache.NewKey("Alabama", "Huntsville"), 1); err != context.Canceled {
		t.Errorf("unexpected: %v", err)
	}
	if v := s.Len(); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}
