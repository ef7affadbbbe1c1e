package popcache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Role is the part a process plays in the deployment.
// It is decided by the process orchestration, not by this package.
type Role int

const (
	// RolePrimary hydrates the shared cache before workers start.
	RolePrimary Role = iota
	// RoleWorker serves requests from an already hydrated cache.
	RoleWorker
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleWorker:
		return "worker"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole parses "primary" or "worker".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return RolePrimary, nil
	case "worker":
		return RoleWorker, nil
	default:
		return 0, fmt.Errorf("popcache: unknown role %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler with ParseRole.
func (r *Role) UnmarshalText(text []byte) error {
	v, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// HydrateResult describes what Hydrate loaded.
type HydrateResult struct {
	// Persisted is the number of entries copied from the DurableStore.
	Persisted int
	// BulkLoaded is false when no bulk input was given.
	BulkLoaded bool
	Bulk       LoadStats
}

// Hydrate prepares the shared cache before any worker serves.
//
// For RolePrimary it copies every DurableStore entry into SharedCache, bypassing the
// lock and the durable write, then applies src through m.LoadBulk when src is not nil,
// so values of src win over persisted ones. Any storage failure aborts hydration.
// For RoleWorker it does nothing.
//
// Returning is the readiness signal: workers may be started afterwards.
func Hydrate(ctx context.Context, role Role, m *Manager, src BulkInput, opts ...HydrateOption) (*HydrateResult, error) {
	result := &HydrateResult{}
	if role != RolePrimary {
		m.logf(ctx, "popcache.Hydrate: role=%s, skip", role)
		return result, nil
	}

	s := &hydrateSettings{concurrency: DefaultHydrateConcurrency}
	for _, opt := range opts {
		opt.Apply(s)
	}

	m.logf(ctx, "popcache.Hydrate: loading from durable store")
	n, err := m.warm(ctx, s.concurrency)
	if err != nil {
		return nil, err
	}
	result.Persisted = n
	m.logf(ctx, "popcache.Hydrate: persisted=%d", n)

	if src == nil {
		m.logf(ctx, "popcache.Hydrate: no bulk input, persisted data only")
		return result, nil
	}

	m.logf(ctx, "popcache.Hydrate: loading bulk input")
	stats, err := m.LoadBulk(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("popcache: bulk load: %w", err)
	}
	result.BulkLoaded = true
	result.Bulk = stats

	return result, nil
}

// warm copies every persisted entry into the cache.
func (m *Manager) warm(ctx context.Context, concurrency int) (int, error) {
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return 0, &StorageError{Op: "Keys", Err: err}
	}

	var cnt int64
	eg, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}
	for _, key := range keys {
		eg.Go(func() error {
			value, ok, err := m.store.GetItem(ctx, key)
			if err != nil {
				return &StorageError{Op: "GetItem", Key: key, Err: err}
			}
			if !ok {
				return nil
			}
			if err := m.cache.Set(ctx, key, value); err != nil {
				return err
			}
			atomic.AddInt64(&cnt, 1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	return int(cnt), nil
}
