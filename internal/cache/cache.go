package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"go-classifieds-app/internal/config"
	"go-classifieds-app/internal/data"
)

// Cache provides a SQLite-based caching mechanism. The hierarchy engine
// uses it to memoize resolved attribute sets, which are read on every
// filter render but change only on category edits.
type Cache struct {
	db  *sqlx.DB
	ttl time.Duration
}

// New creates a new Cache instance.
// It opens the SQLite database at the given file path and ensures the
// cache table is created.
func New(cfg config.CacheConfig) (*Cache, error) {
	db, err := sqlx.Connect("sqlite", cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite cache: %w", err)
	}

	// For a cache, WAL mode is generally better for concurrency.
	_, err = db.Exec("PRAGMA journal_mode=WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to set WAL mode on sqlite cache: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB,
		expires_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_expires_at ON cache (expires_at);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get retrieves an item from the cache. It returns nil if the item is not found or is expired.
func (c *Cache) Get(key string) ([]byte, error) {
	var item struct {
		Value     []byte `db:"value"`
		ExpiresAt int64  `db:"expires_at"`
	}
	query := `SELECT value, expires_at FROM cache WHERE key = ?`
	err := c.db.Get(&item, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found is not an error for a cache miss.
		}
		return nil, fmt.Errorf("failed to get item from cache: %w", err)
	}

	// Check for expiration
	if time.Now().Unix() > item.ExpiresAt {
		// Item has expired, delete it from the cache (best effort)
		_ = c.Delete(key)
		return nil, nil // Treat as a cache miss
	}

	return item.Value, nil
}

// Set adds an item to the cache using the configured TTL.
func (c *Cache) Set(key string, value []byte) error {
	expiresAt := time.Now().Add(c.ttl).Unix()
	query := `INSERT OR REPLACE INTO cache (key, value, expires_at) VALUES (?, ?, ?)`
	_, err := c.db.Exec(query, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set item in cache: %w", err)
	}
	return nil
}

// Delete removes an item from the cache.
func (c *Cache) Delete(key string) error {
	query := `DELETE FROM cache WHERE key = ?`
	_, err := c.db.Exec(query, key)
	if err != nil {
		return fmt.Errorf("failed to delete item from cache: %w", err)
	}
	return nil
}

// DeletePrefix removes every item whose key starts with the given prefix.
// Category mutations use it to drop all resolved-field entries for a
// vertical in one call.
func (c *Cache) DeletePrefix(prefix string) error {
	query := `DELETE FROM cache WHERE key LIKE ?`
	_, err := c.db.Exec(query, prefix+"%")
	if err != nil {
		return fmt.Errorf("failed to delete cache prefix: %w", err)
	}
	return nil
}

// GetFields retrieves a cached resolved attribute set. The second return
// value reports whether the entry was present.
func (c *Cache) GetFields(key string) ([]data.AttributeField, bool, error) {
	raw, err := c.Get(key)
	if err != nil || raw == nil {
		return nil, false, err
	}
	var fields []data.AttributeField
	if err := json.Unmarshal(raw, &fields); err != nil {
		// A corrupt entry is treated as a miss and evicted.
		_ = c.Delete(key)
		return nil, false, nil
	}
	return fields, true, nil
}

// SetFields caches a resolved attribute set.
func (c *Cache) SetFields(key string, fields []data.AttributeField) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal field set: %w", err)
	}
	return c.Set(key, raw)
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
