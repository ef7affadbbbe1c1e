package sqlitestore

import (
	"context"
)

// A StoreOption configures a Store.
type StoreOption interface {
	Apply(*Store)
}

// WithLogger sets the logger for migrations and Clear.
func WithLogger(logf func(ctx context.Context, format string, args ...interface{})) StoreOption {
	return &withLogger{logf}
}

type withLogger struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w *withLogger) Apply(s *Store) {
	s.logf = w.logf
}
