// Package sqlitestore is a DurableStore kept in a SQLite database file.
//
// The database runs in WAL mode with synchronous=FULL, so SetItem has reached
// the disk when it returns. Several processes may open the same file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mercari.io/popcache"
	"go.mercari.io/popcache/internal/sqlitemigrate"
	"go.mercari.io/popcache/storage/sqlitestore/migrations"
	_ "modernc.org/sqlite"
)

// FileName is the database file created by OpenDir.
const FileName = "population.db"

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"

var _ popcache.DurableStore = (*Store)(nil)

// Store implements popcache.DurableStore over SQLite.
type Store struct {
	db   *sql.DB
	logf func(ctx context.Context, format string, args ...interface{})
}

// OpenDir creates dir when needed and opens FileName inside it.
func OpenDir(ctx context.Context, dir string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("sqlitestore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
	}
	return Open(ctx, filepath.Join(dir, FileName), opts...)
}

// Open opens the database at path and applies the bundled migrations.
func Open(ctx context.Context, path string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlitestore: path is required")
	}

	db, err := sql.Open("sqlite", filepath.Clean(path)+pragmas)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt.Apply(s)
	}
	if s.logf == nil {
		s.logf = func(ctx context.Context, format string, args ...interface{}) {}
	}

	if err := sqlitemigrate.Apply(ctx, db, migrations.FS, sqlitemigrate.WithLogger(s.logf)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}

	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Keys(ctx context.Context) ([]popcache.Key, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM population")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list keys: %w", err)
	}
	defer rows.Close()

	var keys []popcache.Key
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan key: %w", err)
		}
		keys = append(keys, popcache.Key(key))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: list keys: %w", err)
	}

	return keys, nil
}

func (s *Store) GetItem(ctx context.Context, key popcache.Key) (int64, bool, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM population WHERE key = ?", string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("sqlitestore: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetItem(ctx context.Context, key popcache.Key, value int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO population (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(key),
		value,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM population")
	if err != nil {
		return fmt.Errorf("sqlitestore: clear: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logf(ctx, "storage/sqlitestore.Clear: deleted=%d", n)
	}
	return nil
}
