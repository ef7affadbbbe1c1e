package popcache

import (
	"context"
)

// DefaultMaxInflightWrites bounds the durable writes a Manager runs at the same time.
const DefaultMaxInflightWrites = 64

// DefaultHydrateConcurrency bounds the parallel DurableStore reads of Hydrate.
const DefaultHydrateConcurrency = 16

// A ManagerOption configures a Manager.
type ManagerOption interface {
	Apply(*Manager)
}

// WithLogger sets the logger used for skipped records, failed durable writes and hydration.
func WithLogger(logf func(ctx context.Context, format string, args ...interface{})) ManagerOption {
	return &withLogger{logf}
}

type withLogger struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w *withLogger) Apply(m *Manager) {
	m.logf = w.logf
}

// WithMaxInflightWrites bounds the number of durable writes running at the same time.
// Writes over the limit wait for a slot; Set itself never waits.
func WithMaxInflightWrites(n int64) ManagerOption {
	return &withMaxInflightWrites{n}
}

type withMaxInflightWrites struct{ n int64 }

func (w *withMaxInflightWrites) Apply(m *Manager) {
	m.maxInflight = w.n
}

// A HydrateOption configures Hydrate.
type HydrateOption interface {
	Apply(*hydrateSettings)
}

type hydrateSettings struct {
	concurrency int
}

// WithHydrateConcurrency bounds the parallel DurableStore reads while warming the cache.
func WithHydrateConcurrency(n int) HydrateOption {
	return withHydrateConcurrency(n)
}

type withHydrateConcurrency int

func (w withHydrateConcurrency) Apply(s *hydrateSettings) {
	s.concurrency = int(w)
}
