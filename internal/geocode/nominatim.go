package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/goradar/internal/geo"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "goradar/1.0 (homing gauge)"
)

// Nominatim queries an OSM Nominatim server. Requests are spaced at least
// MinInterval apart, as the public server's usage policy requires.
type Nominatim struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration

	httpClient *http.Client

	mu   sync.Mutex
	last time.Time
}

// NewNominatim creates a client for baseURL, or the public server if empty.
func NewNominatim(baseURL, userAgent string) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Nominatim{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		UserAgent:   userAgent,
		MinInterval: time.Second,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Lookup(ctx context.Context, query string) (geo.Point, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return geo.Point{}, ErrNotFound
	}
	if err := n.wait(ctx); err != nil {
		return geo.Point{}, err
	}

	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "jsonv2")
	v.Set("limit", "1")
	u := n.BaseURL + "/search?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", n.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode: nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return geo.Point{}, fmt.Errorf("geocode: nominatim status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return geo.Point{}, fmt.Errorf("geocode: decode nominatim response: %w", err)
	}
	if len(places) == 0 {
		return geo.Point{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode: bad latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode: bad longitude %q: %w", places[0].Lon, err)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Check(); err != nil {
		return geo.Point{}, fmt.Errorf("geocode: %w", err)
	}
	log.Printf("[geocode] %q -> %s (%s)", query, p, places[0].DisplayName)
	return p, nil
}

// wait enforces MinInterval between requests.
func (n *Nominatim) wait(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.MinInterval > 0 && !n.last.IsZero() {
		if d := n.MinInterval - time.Since(n.last); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	n.last = time.Now()
	return nil
}
