package retrystore

import (
	"context"
	"time"
)

// A RetryOption configures a Store.
type RetryOption interface {
	Apply(*Store)
}

// WithRetryLimit sets how many times a failed call is retried. 0 disables retries.
func WithRetryLimit(limit int) RetryOption {
	return &withRetryLimit{limit}
}

type withRetryLimit struct{ retryLimit int }

func (w *withRetryLimit) Apply(s *Store) {
	s.retryLimit = w.retryLimit
}

// WithMinBackoffDuration sets the wait before the first retry.
func WithMinBackoffDuration(d time.Duration) RetryOption {
	return &withMinBackoffDuration{d}
}

type withMinBackoffDuration struct{ d time.Duration }

func (w *withMinBackoffDuration) Apply(s *Store) {
	s.minBackoffDuration = w.d
}

// WithMaxBackoffDuration caps the wait between two attempts.
func WithMaxBackoffDuration(d time.Duration) RetryOption {
	return &withMaxBackoffDuration{d}
}

type withMaxBackoffDuration struct{ d time.Duration }

func (w *withMaxBackoffDuration) Apply(s *Store) {
	s.maxBackoffDuration = w.d
}

// WithMaxDoublings sets how many times the wait doubles before it stays constant.
func WithMaxDoublings(maxDoublings int) RetryOption {
	return &withMaxDoublings{maxDoublings}
}

type withMaxDoublings struct{ maxDoublings int }

func (w *withMaxDoublings) Apply(s *Store) {
	s.maxDoublings = w.maxDoublings
}

// WithLogf sets the logger reporting every retry.
func WithLogf(logf func(ctx context.Context, format string, args ...interface{})) RetryOption {
	return &withLogf{logf}
}

type withLogf struct {
	logf func(ctx context.Context, format string, args ...interface{})
}

func (w *withLogf) Apply(s *Store) {
	s.logf = w.logf
}
