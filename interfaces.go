package popcache

import (
	"context"
)

// SharedCache is the in-memory region shared by every worker process of the host.
//
// All implementations must be safe for concurrent use.
type SharedCache interface {
	// Get returns the live value of the key.
	// A missing key is reported with ok == false and a nil error.
	Get(ctx context.Context, key Key) (value int64, ok bool, err error)

	// Set stores the value, visible to every later Get from any process.
	Set(ctx context.Context, key Key, value int64) error

	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key Key) error

	// WithLock runs f inside an exclusive section scoped to key.
	// Callers of the same key block, callers of other keys proceed.
	// The section is released on every exit path of f before WithLock returns.
	WithLock(ctx context.Context, key Key, f func(ctx context.Context) error) error
}

// DurableStore persists the last written value of every key.
//
// Implementations return I/O failures to the caller and never retry on their own.
type DurableStore interface {
	// Keys returns every persisted key. Order is not meaningful.
	Keys(ctx context.Context) ([]Key, error)

	// GetItem returns the persisted value of the key, ok == false if it has none.
	GetItem(ctx context.Context, key Key) (value int64, ok bool, err error)

	// SetItem persists the value. The write is durable when SetItem returns nil.
	SetItem(ctx context.Context, key Key, value int64) error

	// Clear removes every persisted entry.
	Clear(ctx context.Context) error
}

// Record is one row of a bulk input. Value is kept unparsed;
// rows whose value is not a non-negative integer are skipped by Manager.LoadBulk.
type Record struct {
	Region   string
	Locality string
	Value    string
}

// BulkInput produces a finite sequence of records.
type BulkInput interface {
	// Records calls yield once per record, stopping at the first error yield returns.
	Records(ctx context.Context, yield func(r Record) error) error
}

// RecordList is a BulkInput over records already in memory.
type RecordList []Record

// Records implements BulkInput.
func (list RecordList) Records(ctx context.Context, yield func(r Record) error) error {
	for _, r := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(r); err != nil {
			return err
		}
	}
	return nil
}
