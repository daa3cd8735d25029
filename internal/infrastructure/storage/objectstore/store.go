// Package objectstore provides the embedded persistent store backing the
// bounded substrate: an object-store style API over sqlite with get/put/
// delete/getAll/getAllKeys by key and a schema-version upgrade path.
package objectstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

// schemaVersion is tracked via PRAGMA user_version. Upgrades only ever add
// structure; existing records survive every migration.
const schemaVersion = 2

// Well-known buckets.
const (
	BucketTours = "tours" // offline cache records
	BucketKV    = "kv"    // pending list, entity metadata, id mapping
)

// Record is one stored object with its bookkeeping timestamp.
type Record struct {
	Key      string
	Value    []byte
	CachedAt time.Time
}

// Store is an embedded object store, opened once per process lifetime.
type Store struct {
	db     *sql.DB
	path   string
	logger *logging.ChanneledLogger
}

// Open opens (creating if needed) the store at path and runs schema upgrades.
func Open(path string, logger *logging.ChanneledLogger) (*Store, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("object store ping failed: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Storage().Info("Object store opened", "path", path, "duration", time.Since(start))
	}
	return s, nil
}

// migrate walks the store up to the current schema version. Version 1
// creates the objects table; version 2 adds the cached-at index without
// touching existing rows.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version < 1 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS objects (
				bucket    TEXT NOT NULL,
				key       TEXT NOT NULL,
				value     BLOB NOT NULL,
				cached_at TEXT NOT NULL,
				PRIMARY KEY (bucket, key)
			)`)
		if err != nil {
			return fmt.Errorf("schema v1 failed: %w", err)
		}
		if _, err := s.db.Exec("PRAGMA user_version = 1"); err != nil {
			return fmt.Errorf("failed to record schema v1: %w", err)
		}
		version = 1
	}

	if version < 2 {
		_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_objects_cached_at ON objects (bucket, cached_at)`)
		if err != nil {
			return fmt.Errorf("schema v2 failed: %w", err)
		}
		if _, err := s.db.Exec("PRAGMA user_version = 2"); err != nil {
			return fmt.Errorf("failed to record schema v2: %w", err)
		}
		version = 2
	}

	if s.logger != nil {
		s.logger.Storage().Debug("Object store schema current", "version", version)
	}
	return nil
}

// Put stores or replaces an object.
func (s *Store) Put(ctx context.Context, bucket, key string, value []byte, cachedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects (bucket, key, value, cached_at) VALUES (?, ?, ?, ?)`,
		bucket, key, value, cachedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("object store put %s/%s failed: %w", bucket, key, err)
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM objects WHERE bucket = ? AND key = ?`, bucket, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("object store get %s/%s failed: %w", bucket, key, err)
	}
	return value, nil
}

// Delete removes an object. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return fmt.Errorf("object store delete %s/%s failed: %w", bucket, key, err)
	}
	return nil
}

// GetAll returns every record in a bucket, oldest cached_at first.
func (s *Store) GetAll(ctx context.Context, bucket string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, cached_at FROM objects WHERE bucket = ? ORDER BY cached_at ASC`, bucket)
	if err != nil {
		return nil, fmt.Errorf("object store getAll %s failed: %w", bucket, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var cachedAt string
		if err := rows.Scan(&rec.Key, &rec.Value, &cachedAt); err != nil {
			return nil, fmt.Errorf("object store scan failed: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, cachedAt); err == nil {
			rec.CachedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetAllKeys returns every key in a bucket, oldest cached_at first.
func (s *Store) GetAllKeys(ctx context.Context, bucket string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM objects WHERE bucket = ? ORDER BY cached_at ASC`, bucket)
	if err != nil {
		return nil, fmt.Errorf("object store getAllKeys %s failed: %w", bucket, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("object store scan failed: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
