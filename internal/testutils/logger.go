// Package testutils contains DurableStore doubles and helpers shared by tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Logs collects formatted log lines, safe for concurrent use.
type Logs struct {
	m     sync.Mutex
	lines []string
}

// Logf returns a logger appending to l and echoing to t.
func (l *Logs) Logf(t testing.TB) func(ctx context.Context, format string, args ...interface{}) {
	return func(ctx context.Context, format string, args ...interface{}) {
		t.Logf(format, args...)
		l.m.Lock()
		defer l.m.Unlock()
		l.lines = append(l.lines, fmt.Sprintf(format, args...))
	}
}

// Lines returns a copy of the collected lines.
func (l *Logs) Lines() []string {
	l.m.Lock()
	defer l.m.Unlock()
	return append([]string(nil), l.lines...)
}

// String joins the lines, one per line, newline terminated.
func (l *Logs) String() string {
	return strings.Join(l.Lines(), "\n") + "\n"
}
