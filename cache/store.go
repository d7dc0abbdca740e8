package cache

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"secscan/logger"
	"secscan/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is a sqlite-backed scan-result cache. All operations are
// best-effort from the caller's perspective: the engine treats every error
// as a cache miss.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// Open creates (or opens) the cache database at path and applies pending
// schema migrations. ttl is the default entry lifetime.
func Open(path string, ttl time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to cache database: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{db: db, ttl: ttl}, nil
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying cache migrations: %w", err)
	}
	return nil
}

// Get returns the cached ScanResult for key, or (nil, false) on a miss.
// Expired entries are deleted on access. The result is a fresh unmarshalled
// copy, never a shared reference.
func (s *Store) Get(key models.CacheKey) (*models.ScanResult, bool) {
	var payload string
	var expiresAt int64
	err := s.db.QueryRow(
		"SELECT payload, expires_at FROM scan_cache WHERE cache_key = ?",
		key.String(),
	).Scan(&payload, &expiresAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn("cache: lookup failed for %s: %v", key.String(), err)
		}
		return nil, false
	}

	if time.Now().Unix() >= expiresAt {
		if _, err := s.db.Exec("DELETE FROM scan_cache WHERE cache_key = ?", key.String()); err != nil {
			logger.Debug("cache: deleting expired entry %s: %v", key.String(), err)
		}
		return nil, false
	}

	var result models.ScanResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		logger.Warn("cache: corrupt entry %s dropped: %v", key.String(), err)
		_, _ = s.db.Exec("DELETE FROM scan_cache WHERE cache_key = ?", key.String())
		return nil, false
	}
	return &result, true
}

// Put stores a serialized copy of result under key with the store's TTL.
// Errors are logged and swallowed; caching is never fatal.
func (s *Store) Put(key models.CacheKey, result *models.ScanResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn("cache: cannot serialize result for %s: %v", key.String(), err)
		return
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO scan_cache (cache_key, payload, created_at, expires_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(cache_key) DO UPDATE SET
             payload = excluded.payload,
             created_at = excluded.created_at,
             expires_at = excluded.expires_at`,
		key.String(), string(payload), now.Unix(), now.Add(s.ttl).Unix(),
	)
	if err != nil {
		logger.Warn("cache: store failed for %s: %v", key.String(), err)
	}
}

// Sweep deletes all expired entries and reports how many were removed.
func (s *Store) Sweep() (int64, error) {
	res, err := s.db.Exec("DELETE FROM scan_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
