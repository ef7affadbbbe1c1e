package sqlitemigrate

import (
	"context"
)

// An Option configures Apply.
type Option interface {
	Apply(*settings)
}

type settings struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

// WithLogger sets the logger reporting each applied migration.
func WithLogger(logf func(ctx context.Context, format string, args ...interface{})) Option {
	return &withLogger{logf}
}

type withLogger struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w *withLogger) Apply(s *settings) {
	s.logf = w.logf
}
