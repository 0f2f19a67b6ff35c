package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver

	"github.com/shaunagostinho/goradar/internal/geo"
)

// Store persists resolved queries in SQLite so repeat lookups work offline
// and stay within the upstream rate limit.
type Store struct {
	db *sql.DB
}

// OpenStore opens the cache database and runs migrations.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("geocode: failed to create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("geocode: failed to open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("geocode: failed to ping cache: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("geocode: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("geocode: failed to set busy timeout: %w", err)
	}
	// Single connection avoids SQLITE_BUSY on concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS geocode_cache (
		query TEXT PRIMARY KEY,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("geocode: migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the cached point for query.
func (s *Store) Get(ctx context.Context, query string) (geo.Point, bool, error) {
	var p geo.Point
	err := s.db.QueryRowContext(ctx,
		"SELECT lat, lon FROM geocode_cache WHERE query = ?", normalize(query)).Scan(&p.Lat, &p.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Point{}, false, nil
	}
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("geocode: cache read: %w", err)
	}
	return p, true, nil
}

// Put stores or replaces the point for query.
func (s *Store) Put(ctx context.Context, query string, p geo.Point) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (query, lat, lon, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(query) DO UPDATE SET lat = excluded.lat, lon = excluded.lon, created_at = excluded.created_at`,
		normalize(query), p.Lat, p.Lon)
	if err != nil {
		return fmt.Errorf("geocode: cache write: %w", err)
	}
	return nil
}

// Prune removes entries older than the given age.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	// Format compatible with SQLite CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS)
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	res, err := s.db.ExecContext(ctx, "DELETE FROM geocode_cache WHERE created_at < ?", deadline)
	if err != nil {
		return 0, fmt.Errorf("geocode: cache prune: %w", err)
	}
	return res.RowsAffected()
}

// Cached answers from the store before asking Next, and remembers what Next
// resolves. Cache failures are logged and never fail a lookup.
type Cached struct {
	Store *Store
	Next  Geocoder
}

func (c *Cached) Lookup(ctx context.Context, query string) (geo.Point, error) {
	if p, ok, err := c.Store.Get(ctx, query); err != nil {
		log.Printf("[geocode] %v", err)
	} else if ok {
		return p, nil
	}

	p, err := c.Next.Lookup(ctx, query)
	if err != nil {
		return geo.Point{}, err
	}
	if err := c.Store.Put(ctx, query, p); err != nil {
		log.Printf("[geocode] %v", err)
	}
	return p, nil
}
