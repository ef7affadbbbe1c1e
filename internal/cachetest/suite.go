package cachetest

import (
	"context"
	"testing"

	"go.mercari.io/popcache"
)

// Test represents a test function for SharedCache implementations.
type Test func(ctx context.Context, t *testing.T, cache popcache.SharedCache)

// TestSuite contains all the test cases that this package provides.
var TestSuite = map[string]Test{
	"Get_Absent":                 getAbsent,
	"SetAndGet":                  setAndGet,
	"SetAndGet_Zero":             setAndGetZero,
	"SetAndGet_Overwrite":        setAndGetOverwrite,
	"Remove":                     remove,
	"Remove_Absent":              removeAbsent,
	"WithLock_ReturnsError":      withLockReturnsError,
	"WithLock_ReleaseOnError":    withLockReleaseOnError,
	"WithLock_ReleaseOnPanic":    withLockReleaseOnPanic,
	"WithLock_SameKeySerialized": withLockSameKeySerialized,
	"WithLock_OtherKeysProceed":  withLockOtherKeysProceed,
}

// Run runs every test of TestSuite against the cache returned by setup.
// setup is called once per test and its cleanUp after the test.
func Run(t *testing.T, setup func(t *testing.T) (popcache.SharedCache, func())) {
	for name, test := range TestSuite {
		t.Run(name, func(t *testing.T) {
			cache, cleanUp := setup(t)
			defer cleanUp()
			test(context.Background(), t, cache)
		})
	}
}
