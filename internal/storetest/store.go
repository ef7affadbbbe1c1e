package storetest

import (
	"context"
	"math"
	"reflect"
	"testing"

	"go.mercari.io/popcache"
)

func keysEmpty(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v := len(keys); v != 0 {
		t.Errorf("unexpected: %v", keys)
	}
}

func getItemAbsent(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	value, ok, err := store.GetItem(ctx, popcache.NewKey("Alabama", "Nowhere"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("unexpected hit: %v", value)
	}
}

func setItemAndGetItem(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Alabama", "Huntsville")
	if err := store.SetItem(ctx, key, 215006); err != nil {
		t.Fatal(err)
	}

	value, ok, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatalf("unexpected miss")
	} else if value != 215006 {
		t.Errorf("unexpected: %v", value)
	}
}

func setItemZero(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Nevada", "Rhyolite")
	if err := store.SetItem(ctx, key, 0); err != nil {
		t.Fatal(err)
	}

	value, ok, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatalf("zero must not be reported as absent")
	} else if value != 0 {
		t.Errorf("unexpected: %v", value)
	}
}

func setItemOverwrite(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Alabama", "Huntsville")
	for _, v := range []int64{100, 200} {
		if err := store.SetItem(ctx, key, v); err != nil {
			t.Fatal(err)
		}
	}

	value, _, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if value != 200 {
		t.Errorf("unexpected: %v", value)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	} else if v := len(keys); v != 1 {
		t.Errorf("unexpected: %v", keys)
	}
}

func listKeys(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	expected := []popcache.Key{
		popcache.NewKey("Alabama", "Huntsville"),
		popcache.NewKey("Alabama", "Mobile"),
		popcache.NewKey("Texas", "Austin"),
	}
	for idx, key := range expected {
		if err := store.SetItem(ctx, key, int64(idx)); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v := sortKeys(keys); !reflect.DeepEqual(v, sortKeys(expected)) {
		t.Errorf("unexpected: %v", v)
	}
}

func clearAll(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Alabama", "Huntsville")
	if err := store.SetItem(ctx, key, 100); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	} else if v := len(keys); v != 0 {
		t.Errorf("unexpected: %v", keys)
	}

	_, ok, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if ok {
		t.Errorf("unexpected hit after Clear")
	}
}

func setItemUnicodeKey(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Québec", "Montréal")
	if err := store.SetItem(ctx, key, 1762949); err != nil {
		t.Fatal(err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	} else if len(keys) != 1 || keys[0] != key {
		t.Errorf("unexpected: %v", keys)
	}
}

func setItemLargeValue(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Earth", "Everyone")
	if err := store.SetItem(ctx, key, math.MaxInt64); err != nil {
		t.Fatal(err)
	}

	value, _, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if value != math.MaxInt64 {
		t.Errorf("unexpected: %v", value)
	}
}

func clearThenSetItem(ctx context.Context, t *testing.T, store popcache.DurableStore) {
	key := popcache.NewKey("Alabama", "Huntsville")
	if err := store.SetItem(ctx, key, 100); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.SetItem(ctx, key, 300); err != nil {
		t.Fatal(err)
	}

	value, ok, err := store.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok || value != 300 {
		t.Errorf("unexpected: %v %v", value, ok)
	}
}
