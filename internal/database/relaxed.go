package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"bluebottle/internal/bb"
	"bluebottle/internal/database/migrations"
)

// RelaxedStore holds disposable state: backend content cache rows and small
// key-value UI state. It trades durability for throughput and is reset when
// it cannot be opened.
type RelaxedStore struct {
	db    *sql.DB
	path  string
	clock bb.Clock
}

// OpenRelaxed opens (or creates) the relaxed store at path. If the file is
// unreadable or corrupt it is deleted and recreated once; a second failure is
// returned to the caller.
func OpenRelaxed(path string, clock bb.Clock, logger bb.Logger) (*RelaxedStore, error) {
	logger.Info("opening relaxed store", "path", path)

	db, err := openRelaxedConnection(path)
	if err != nil {
		logger.Warn("relaxed state could not be opened, truncating and retrying", "path", path, "error", err)
		if rmErr := removeDatabaseFiles(path); rmErr != nil {
			logger.Warn("failed to remove relaxed state files", "path", path, "error", rmErr)
		}

		db, err = openRelaxedConnection(path)
		if err != nil {
			return nil, fmt.Errorf("opening relaxed store after reset: %w", err)
		}
	}

	return &RelaxedStore{db: db, path: path, clock: clock}, nil
}

func openRelaxedConnection(path string) (*sql.DB, error) {
	db, err := OpenConnection(path, DurabilityRelaxed)
	if err != nil {
		return nil, err
	}

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking relaxed database integrity: %w", err)
	}
	if result != "ok" {
		db.Close()
		return nil, fmt.Errorf("relaxed database failed integrity check: %s", result)
	}

	if err := migrations.MigrateUp(db, migrations.Relaxed); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating relaxed database: %w", err)
	}

	return db, nil
}

// removeDatabaseFiles deletes a SQLite file and its WAL sidecars.
func removeDatabaseFiles(path string) error {
	if path == ":memory:" {
		return nil
	}
	var firstErr error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Content cache

// GetContentCacheEntry returns the cached content and its remaining TTL.
// Expired rows are still returned, with a zero TTL; removing them is Prune's job.
// A missing row yields an error matching bb.ErrNotFound.
func (s *RelaxedStore) GetContentCacheEntry(backendID bb.BackendID, cacheKey string) ([]byte, time.Duration, error) {
	var content []byte
	var expiresAt int64
	err := s.db.QueryRowContext(context.Background(), `
		SELECT content, expires_at
		FROM backend_content_cache
		WHERE backend_id = ? AND cache_key = ?`,
		backendID.String(), cacheKey,
	).Scan(&content, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("getting backend content %s: %w", cacheKey, bb.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("getting backend content %s: %w", cacheKey, err)
	}

	remaining := max(0, expiresAt-bb.UnixMillis(s.clock))
	return content, time.Duration(remaining) * time.Millisecond, nil
}

// AddContentCacheEntry upserts content with expires_at = now + ttl.
func (s *RelaxedStore) AddContentCacheEntry(backendID bb.BackendID, cacheKey string, content []byte, ttl time.Duration) error {
	if content == nil {
		content = []byte{}
	}
	now := bb.UnixMillis(s.clock)
	expiresAt := now + ttl.Milliseconds()

	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO backend_content_cache (
			backend_id,
			cache_key,
			content,
			updated_at,
			expires_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (backend_id, cache_key)
		DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		backendID.String(), cacheKey, content, now, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting backend content %s: %w", cacheKey, err)
	}
	return nil
}

// PruneContentCache deletes every row whose expires_at is at or before now
// and returns the number removed.
func (s *RelaxedStore) PruneContentCache() (int, error) {
	res, err := s.db.ExecContext(context.Background(),
		"DELETE FROM backend_content_cache WHERE expires_at <= ?", bb.UnixMillis(s.clock))
	if err != nil {
		return 0, fmt.Errorf("executing prune query: %w", err)
	}
	return rowsAffected(res)
}

// PurgeContentCache deletes every content cache row.
func (s *RelaxedStore) PurgeContentCache() (int, error) {
	res, err := s.db.ExecContext(context.Background(), "DELETE FROM backend_content_cache")
	if err != nil {
		return 0, fmt.Errorf("executing purge query: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting affected rows: %w", err)
	}
	return int(n), nil
}

// Key-value state

// GetKeyValue returns the value stored under key, or an error matching bb.ErrNotFound.
func (s *RelaxedStore) GetKeyValue(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(context.Background(),
		"SELECT value FROM key_value WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting key %q: %w", key, bb.ErrNotFound)
		}
		return nil, fmt.Errorf("getting key %q: %w", key, err)
	}
	return value, nil
}

// SetKeyValue stores value under key, replacing any previous value.
func (s *RelaxedStore) SetKeyValue(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO key_value (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting key %q: %w", key, err)
	}
	return nil
}

// DeleteKeyValue removes key. Deleting a missing key is not an error.
func (s *RelaxedStore) DeleteKeyValue(key string) error {
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM key_value WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}

// CheckMigrations verifies the relaxed schema is up-to-date.
func (s *RelaxedStore) CheckMigrations() error {
	return migrations.Check(s.db, migrations.Relaxed)
}

// MigrationStatus reports the recorded schema version against the latest one.
func (s *RelaxedStore) MigrationStatus() (migrations.Status, error) {
	return migrations.Inspect(s.db, migrations.Relaxed)
}

// Path returns the database file path.
func (s *RelaxedStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *RelaxedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
