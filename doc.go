/*
Package popcache serves population counts keyed by (region, locality) from a cache
shared by every worker process on a host, written through to a durable store.

repository https://github.com/mercari/popcache


Layers

	request -> Manager -> SharedCache (synchronous)
	                   -> DurableStore (asynchronous, inside the SharedCache per-key lock)

SharedCache is the only state shared between worker processes.
Use https://godoc.org/go.mercari.io/popcache/cache/rediscache or
https://godoc.org/go.mercari.io/popcache/cache/memcache for a multi-process deployment,
https://godoc.org/go.mercari.io/popcache/cache/localcache for tests and single-process use.

DurableStore keeps the last written value of every key.
Implementations live under https://godoc.org/go.mercari.io/popcache/storage .
Stores never retry; wrap them with storage/retrystore when a retry policy is wanted.


Write path

Manager.Set updates SharedCache before it returns, so the caller and every other process
observe the new value immediately.
The durable write happens afterwards on its own goroutine.
It takes the per-key lock of SharedCache, reads the value the cache holds at that moment
and persists it, so durable writes of one key are totally ordered and the last one
carries the latest cached value.

The returned Pending reports the outcome of the durable write.
Callers that do not wait on it accept that a crash between the cache write and the
durable write loses the update. Manager.Close drains the writes still in flight.

A failed durable write is not rolled back from the cache.
The cache and the store disagree for that key until the next Set of the same key.


Hydration

Hydrate runs once, in the primary process, before any worker serves.
It copies every persisted entry into SharedCache and then applies the optional bulk
input through Manager.Set, so bulk values win over persisted ones.
Workers must not be started before Hydrate returns; nothing in this package guards that.
*/
package popcache // import "go.mercari.io/popcache"
