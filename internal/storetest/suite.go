package storetest

import (
	"context"
	"sort"
	"testing"

	"go.mercari.io/popcache"
)

// Test represents a test function for DurableStore implementations.
type Test func(ctx context.Context, t *testing.T, store popcache.DurableStore)

// TestSuite contains all the test cases that this package provides.
var TestSuite = map[string]Test{
	"Keys_Empty":         keysEmpty,
	"GetItem_Absent":     getItemAbsent,
	"SetItemAndGetItem":  setItemAndGetItem,
	"SetItem_Zero":       setItemZero,
	"SetItem_Overwrite":  setItemOverwrite,
	"Keys":               listKeys,
	"Clear":              clearAll,
	"SetItem_UnicodeKey": setItemUnicodeKey,
	"SetItem_LargeValue": setItemLargeValue,
	"Clear_ThenSetItem":  clearThenSetItem,
}

// Run runs every test of TestSuite against the store returned by setup.
// setup is called once per test and its cleanUp after the test.
func Run(t *testing.T, setup func(t *testing.T) (popcache.DurableStore, func())) {
	for name, test := range TestSuite {
		t.Run(name, func(t *testing.T) {
			store, cleanUp := setup(t)
			defer cleanUp()
			test(context.Background(), t, store)
		})
	}
}

func sortKeys(keys []popcache.Key) []popcache.Key {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
