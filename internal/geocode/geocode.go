// Package geocode resolves free-text destinations to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shaunagostinho/goradar/internal/geo"
)

// ErrNotFound is returned when a query resolves to nothing.
var ErrNotFound = errors.New("geocode: no match")

// Geocoder turns a query into a point.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (geo.Point, error)
}

// Chain tries each geocoder in order and returns the first match. A
// geocoder answering ErrNotFound passes the query on; any other error stops
// the chain.
type Chain []Geocoder

func (c Chain) Lookup(ctx context.Context, query string) (geo.Point, error) {
	for _, g := range c {
		p, err := g.Lookup(ctx, query)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return geo.Point{}, err
		}
	}
	return geo.Point{}, fmt.Errorf("%w: %q", ErrNotFound, query)
}

// Literal resolves queries that are already coordinates, such as
// "48.8584, 2.2945" or "48.8584 2.2945".
type Literal struct{}

func (Literal) Lookup(_ context.Context, query string) (geo.Point, error) {
	p, ok := ParseCoordinates(query)
	if !ok {
		return geo.Point{}, ErrNotFound
	}
	return p, nil
}

// ParseCoordinates parses "lat, lon" or "lat lon" in decimal degrees.
func ParseCoordinates(s string) (geo.Point, bool) {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return geo.Point{}, false
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, false
	}
	return p, true
}

// normalize is the cache key for a query.
func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Config selects the lookup chain.
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	URL       string `yaml:"url" json:"url"`
	UserAgent string `yaml:"user_agent" json:"userAgent"`
	CachePath string `yaml:"cache_path" json:"cachePath"`

	// CacheTTL drops cached answers older than this at startup, 0 keeps all.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cacheTtl"`
}

// New builds the lookup chain for cfg: coordinate literals always, then
// Nominatim (behind the SQLite cache when CachePath is set) if enabled. The
// returned close func releases the cache. Stale cache entries are pruned on
// open when CacheTTL is set.
func New(cfg Config) (Geocoder, func() error, error) {
	chain := Chain{Literal{}}
	noop := func() error { return nil }
	if !cfg.Enabled {
		return chain, noop, nil
	}

	var remote Geocoder = NewNominatim(cfg.URL, cfg.UserAgent)
	if cfg.CachePath == "" {
		return append(chain, remote), noop, nil
	}
	store, err := OpenStore(cfg.CachePath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheTTL > 0 {
		n, err := store.Prune(context.Background(), cfg.CacheTTL)
		if err != nil {
			log.Printf("[geocode] %v", err)
		} else if n > 0 {
			log.Printf("[geocode] pruned %d cached lookups older than %v", n, cfg.CacheTTL)
		}
	}
	return append(chain, &Cached{Store: store, Next: remote}), store.Close, nil
}
