package popcache

import (
	"context"
)

// Pending is the durable write scheduled by Manager.Set.
type Pending struct {
	key  Key
	done chan struct{}
	err  error
}

func newPending(key Key) *Pending {
	return &Pending{
		key:  key,
		done: make(chan struct{}),
	}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Key returns the key being persisted.
func (p *Pending) Key() Key {
	return p.key
}

// Done is closed once the durable write finished, successfully or not.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the result of the durable write. It is nil until Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the durable write finished or ctx is done.
// Giving up on the wait does not cancel the write.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
