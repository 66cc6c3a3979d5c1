// Package cache stores fetched documents in a local SQLite database so that
// repeated LOADs of the same URL do not hit the network.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

// Cache is a document cache keyed by URI.
type Cache struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	ttl  time.Duration // zero means entries never expire
	now  func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Config holds configuration for the cache.
type Config struct {
	Path string        // Database file path
	TTL  time.Duration // Maximum age of a usable entry (0 = forever)
}

// DefaultPath returns the cache location used when none is configured.
func DefaultPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "scrapeql", "documents.db")
	}
	return filepath.Join(os.TempDir(), "scrapeql", "documents.db")
}

// Open opens or creates the cache database.
func Open(cfg Config) (*Cache, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to cache database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	c := &Cache{
		db:   db,
		path: path,
		ttl:  cfg.TTL,
		now:  time.Now,
		enc:  enc,
		dec:  dec,
	}

	if err := c.createSchema(); err != nil {
		c.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return c, nil
}

// createSchema creates the documents table if it doesn't exist.
func (c *Cache) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			uri TEXT NOT NULL,
			body BLOB NOT NULL,
			fetched_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_fetched_at ON documents(fetched_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Key returns the cache key for uri: the hex blake2b-256 digest.
func Key(uri string) string {
	sum := blake2b.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached body for uri. Expired entries are reported as
// misses.
func (c *Cache) Get(uri string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var body []byte
	var fetchedAt int64
	err := c.db.QueryRow(`SELECT body, fetched_at FROM documents WHERE key = ?`, Key(uri)).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if c.expired(fetchedAt) {
		return nil, false, nil
	}

	decoded, err := c.dec.DecodeAll(body, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	return decoded, true, nil
}

// Put stores body for uri, replacing any previous entry.
func (c *Cache) Put(uri string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	compressed := c.enc.EncodeAll(body, nil)
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO documents (key, uri, body, fetched_at)
		VALUES (?, ?, ?, ?)
	`, Key(uri), uri, compressed, c.now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Purge removes expired entries and returns how many were deleted.
func (c *Cache) Purge() (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.Exec(`DELETE FROM documents WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec("DELETE FROM documents")
	return err
}

// Count returns the number of stored entries, expired or not.
func (c *Cache) Count() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

func (c *Cache) expired(fetchedAt int64) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(time.Unix(fetchedAt, 0)) > c.ttl
}

// Close closes the database connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enc.Close()
	c.dec.Close()
	return c.db.Close()
}

// Path returns the path to the database file.
func (c *Cache) Path() string {
	return c.path
}
