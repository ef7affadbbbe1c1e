package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/internal/storetest"
)

func TestSQLiteStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (popcache.DurableStore, func()) {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatal(err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				t.Error(err)
			}
		}
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenDir(ctx, filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatal(err)
	}
	key := popcache.NewKey("Alabama", "Huntsville")
	if err := s.SetItem(ctx, key, 215006); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenDir(ctx, filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	value, ok, err := s.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok || value != 215006 {
		t.Errorf("unexpected: %v %v", value, ok)
	}
}

func TestSQLiteStore_SharedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	s1, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s1.Close()
	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	key := popcache.NewKey("Texas", "Austin")
	if err := s1.SetItem(ctx, key, 961855); err != nil {
		t.Fatal(err)
	}
	value, ok, err := s2.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	} else if !ok || value != 961855 {
		t.Errorf("unexpected: %v %v", value, ok)
	}
}

func TestSQLiteStore_Logger(t *testing.T) {
	ctx := context.Background()

	var logs []string
	logf := func(ctx context.Context, format string, args ...interface{}) {
		t.Logf(format, args...)
		logs = append(logs, fmt.Sprintf(format, args...))
	}

	s, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"), WithLogger(logf))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, locality := range []string{"Huntsville", "Mobile"} {
		if err := s.SetItem(ctx, popcache.NewKey("Alabama", locality), 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	expected := heredoc.Doc(`
		internal/sqlitemigrate.Apply: applied 001_population.sql
		storage/sqlitestore.Clear: deleted=2
	`)

	if v := strings.Join(logs, "\n") + "\n"; v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestSQLiteStore_RejectsNegative(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SetItem(ctx, popcache.NewKey("Alabama", "Huntsville"), -1); err == nil {
		t.Errorf("negative value must be rejected")
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Errorf("empty path must fail")
	}
	if _, err := OpenDir(context.Background(), ""); err == nil {
		t.Errorf("empty directory must fail")
	}
}
