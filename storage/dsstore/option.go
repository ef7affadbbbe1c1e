package dsstore

import (
	"context"
)

// A StoreOption configures a Store.
type StoreOption interface {
	Apply(*Store)
}

// WithLogger logs every Datastore RPC the store makes through the dslog middleware.
func WithLogger(logf func(ctx context.Context, format string, args ...interface{})) StoreOption {
	return &withLogger{logf}
}

type withLogger struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w *withLogger) Apply(s *Store) {
	s.logf = w.logf
}

// WithKind stores the entries under another kind. Tests use it to stay isolated.
func WithKind(kind string) StoreOption {
	return withKind(kind)
}

type withKind string

func (w withKind) Apply(s *Store) {
	s.kind = string(w)
}
