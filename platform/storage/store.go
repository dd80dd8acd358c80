package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/value"
)

const (
	// DefaultQuotaBytes bounds the keys and values stored per origin.
	DefaultQuotaBytes = 5 << 20

	// DefaultOrigin partitions keys when Config.Origin is empty.
	DefaultOrigin = "default"
)

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file. Empty keeps data in memory for the
	// lifetime of the Store.
	Path string

	// Origin partitions keys, so modules sharing a database file do not
	// see each other's data.
	Origin string

	// Disabled makes every operation fail with a SecurityError, the way a
	// browser with storage turned off behaves.
	Disabled bool

	// QuotaBytes bounds the byte length of all keys and values of the
	// origin. 0 means DefaultQuotaBytes.
	QuotaBytes int64
}

const schema = `CREATE TABLE IF NOT EXISTS local_storage (
	origin TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (origin, key)
)`

// Store is a persistent string key/value store backed by SQLite.
// Safe for concurrent use.
type Store struct {
	db       *sql.DB
	origin   string
	quota    int64
	disabled bool
	mu       sync.Mutex
}

// Open opens or creates the store described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s := &Store{
		origin:   cfg.Origin,
		quota:    cfg.QuotaBytes,
		disabled: cfg.Disabled,
	}
	if s.origin == "" {
		s.origin = DefaultOrigin
	}
	if s.quota <= 0 {
		s.quota = DefaultQuotaBytes
	}
	if s.disabled {
		return s, nil
	}

	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "open local storage")
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "create local storage schema")
	}
	s.db = db
	return s, nil
}

func (s *Store) check() error {
	if s.disabled {
		return value.NewError(value.SecurityErrorName, "the operation is insecure: local storage is disabled")
	}
	if s.db == nil {
		return errors.New(errors.PhaseHost, errors.KindClosed).Detail("local storage is closed").Build()
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return "", false, err
	}

	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM local_storage WHERE origin = ? AND key = ?", s.origin, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage get")
	}
	return v, true, nil
}

// Set stores value under key. Fails with a QuotaExceededError when the
// origin would grow past its quota; the previous value is kept.
func (s *Store) Set(ctx context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage set")
	}
	defer func() { _ = tx.Rollback() }()

	var used int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(length(CAST(key AS BLOB)) + length(CAST(value AS BLOB))), 0)
		 FROM local_storage WHERE origin = ? AND key <> ?`, s.origin, key).Scan(&used)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage usage")
	}
	if used+int64(len(key))+int64(len(val)) > s.quota {
		return value.NewError(value.QuotaExceededErrorName,
			fmt.Sprintf("setting the value of %q exceeded the quota (%d bytes)", key, s.quota))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO local_storage (origin, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (origin, key) DO UPDATE SET value = excluded.value`, s.origin, key, val)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage set")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage commit")
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM local_storage WHERE origin = ? AND key = ?", s.origin, key)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage remove")
	}
	return nil
}

// Clear deletes every key of the origin.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM local_storage WHERE origin = ?", s.origin)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage clear")
	}
	return nil
}

// Keys returns the origin's keys in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM local_storage WHERE origin = ? ORDER BY key", s.origin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage keys")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "local storage keys")
	}
	return keys, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
