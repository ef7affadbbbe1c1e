package popcache

import (
	"context"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// Manager is the single point of access reconciling SharedCache and DurableStore.
type Manager struct {
	cache SharedCache
	store DurableStore

	logf        func(ctx context.Context, format string, args ...interface{})
	maxInflight int64
	sem         *semaphore.Weighted

	m        sync.Mutex
	closed   bool
	inflight map[*Pending]struct{}
}

// LoadStats summarizes a bulk load.
type LoadStats struct {
	Applied int
	Skipped int
}

// NewManager returns a Manager writing through cache to store.
func NewManager(cache SharedCache, store DurableStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:    cache,
		store:    store,
		inflight: make(map[*Pending]struct{}),
	}

	for _, opt := range opts {
		opt.Apply(m)
	}

	if m.logf == nil {
		m.logf = func(ctx context.Context, format string, args ...interface{}) {}
	}
	if m.maxInflight <= 0 {
		m.maxInflight = DefaultMaxInflightWrites
	}
	m.sem = semaphore.NewWeighted(m.maxInflight)

	return m
}

// Get returns the cached population of the locality in region.
// SharedCache is a complete mirror once hydrated, so ok == false means the entry does not exist.
func (m *Manager) Get(ctx context.Context, locality, region string) (int64, bool, error) {
	return m.cache.Get(ctx, NewKey(region, locality))
}

// Set stores the population of the locality in region.
//
// The cache is updated before Set returns.
// The durable write runs afterwards and is reported by the returned Pending;
// it keeps running when ctx is canceled.
func (m *Manager) Set(ctx context.Context, locality, region string, value int64) (*Pending, error) {
	if value < 0 {
		return nil, &ParseError{Input: strconv.FormatInt(value, 10), Reason: "negative"}
	}
	return m.set(ctx, NewKey(region, locality), value)
}

func (m *Manager) set(ctx context.Context, key Key, value int64) (*Pending, error) {
	p := newPending(key)

	m.m.Lock()
	if m.closed {
		m.m.Unlock()
		return nil, ErrClosed
	}
	m.inflight[p] = struct{}{}
	m.m.Unlock()

	if err := m.cache.Set(ctx, key, value); err != nil {
		m.forget(p)
		return nil, err
	}

	go m.persist(context.WithoutCancel(ctx), p)

	return p, nil
}

// persist writes the value the cache holds for the key when the per-key lock is acquired.
func (m *Manager) persist(ctx context.Context, p *Pending) {
	defer m.forget(p)

	// ctx is never canceled, Acquire can not fail.
	_ = m.sem.Acquire(ctx, 1)
	defer m.sem.Release(1)

	key := p.key
	err := m.cache.WithLock(ctx, key, func(ctx context.Context) error {
		value, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			m.logf(ctx, "popcache.Manager.Set: key=%s removed before persisting, skip", key)
			return nil
		}
		if err := m.store.SetItem(ctx, key, value); err != nil {
			return &StorageError{Op: "SetItem", Key: key, Err: err}
		}
		return nil
	})
	if err != nil {
		m.logf(ctx, "popcache.Manager.Set: durable write failed key=%s err=%s", key, err.Error())
	}
	p.finish(err)
}

func (m *Manager) forget(p *Pending) {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.inflight, p)
}

func (m *Manager) snapshot() []*Pending {
	m.m.Lock()
	defer m.m.Unlock()
	list := make([]*Pending, 0, len(m.inflight))
	for p := range m.inflight {
		list = append(list, p)
	}
	return list
}

// Wait blocks until every durable write started before the call finished,
// and returns their failures.
func (m *Manager) Wait(ctx context.Context) error {
	return waitAll(ctx, m.snapshot())
}

func waitAll(ctx context.Context, list []*Pending) error {
	var result *multierror.Error
	for _, p := range list {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := p.Err(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LoadBulk applies every record of src through Set and waits for their durable writes.
//
// Records whose value is not a non-negative integer are logged and skipped.
// Applying the same input twice yields the same state.
func (m *Manager) LoadBulk(ctx context.Context, src BulkInput) (LoadStats, error) {
	var stats LoadStats
	var list []*Pending

	err := src.Records(ctx, func(r Record) error {
		value, err := ParseValue(r.Value)
		if err != nil {
			m.logf(ctx, "popcache.Manager.LoadBulk: record \"%s, %s, %s\" expected value to be a non-negative integer, skip", r.Locality, r.Region, r.Value)
			stats.Skipped++
			return nil
		}
		p, err := m.Set(ctx, r.Locality, r.Region, value)
		if err != nil {
			return err
		}
		list = append(list, p)
		stats.Applied++
		return nil
	})

	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	if err := waitAll(ctx, list); err != nil {
		result = multierror.Append(result, err)
	}

	m.logf(ctx, "popcache.Manager.LoadBulk: applied=%d skipped=%d", stats.Applied, stats.Skipped)

	return stats, result.ErrorOrNil()
}

// Clear removes every entry from the cache and the durable store.
// It is meant for tests and resets, not for the request path.
func (m *Manager) Clear(ctx context.Context) error {
	// a write still in flight would bring its key back after the store is cleared.
	// its own failure does not matter here.
	if err := waitAll(ctx, m.snapshot()); err != nil && ctx.Err() != nil {
		return err
	}

	keys, err := m.store.Keys(ctx)
	if err != nil {
		return &StorageError{Op: "Keys", Err: err}
	}
	for _, key := range keys {
		if err := m.cache.Remove(ctx, key); err != nil {
			return err
		}
	}
	if err := m.store.Clear(ctx); err != nil {
		return &StorageError{Op: "Clear", Err: err}
	}

	m.logf(ctx, "popcache.Manager.Clear: len=%d", len(keys))

	return nil
}

// Close stops accepting Set calls and waits for the durable writes in flight.
//
// Writes that have not finished when ctx is done are abandoned to the process lifetime.
func (m *Manager) Close(ctx context.Context) error {
	m.m.Lock()
	m.closed = true
	m.m.Unlock()

	return m.Wait(ctx)
}
