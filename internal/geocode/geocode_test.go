package geocode

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/goradar/internal/geo"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in   string
		want geo.Point
		ok   bool
	}{
		{"48.8584, 2.2945", geo.Point{Lat: 48.8584, Lon: 2.2945}, true},
		{"48.8584 2.2945", geo.Point{Lat: 48.8584, Lon: 2.2945}, true},
		{"  -33.8568,151.2153 ", geo.Point{Lat: -33.8568, Lon: 151.2153}, true},
		{"0, 0", geo.Point{}, true},
		{"91, 0", geo.Point{}, false},
		{"45, 181", geo.Point{}, false},
		{"Eiffel Tower", geo.Point{}, false},
		{"48.8584", geo.Point{}, false},
		{"1, 2, 3", geo.Point{}, false},
		{"", geo.Point{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCoordinates(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubGeocoder struct {
	p     geo.Point
	err   error
	calls int
}

func (s *stubGeocoder) Lookup(context.Context, string) (geo.Point, error) {
	s.calls++
	return s.p, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	remote := &stubGeocoder{p: geo.Point{Lat: 1, Lon: 2}}
	c := Chain{Literal{}, remote}

	p, err := c.Lookup(ctx, "10, 20")
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 10, Lon: 20}, p)
	assert.Zero(t, remote.calls, "literal short-circuits")

	p, err = c.Lookup(ctx, "somewhere")
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 1, Lon: 2}, p)
	assert.Equal(t, 1, remote.calls)

	remote.err = ErrNotFound
	_, err = c.Lookup(ctx, "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("upstream down")
	remote.err = boom
	_, err = c.Lookup(ctx, "nowhere")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNew(t *testing.T) {
	g, closeFn, err := New(Config{})
	require.NoError(t, err)
	defer closeFn()

	_, err = g.Lookup(context.Background(), "Eiffel Tower")
	assert.ErrorIs(t, err, ErrNotFound, "remote disabled")

	g, closeFn2, err := New(Config{Enabled: true, CachePath: filepath.Join(t.TempDir(), "cache", "geo.db")})
	require.NoError(t, err)
	defer closeFn2()
	chain, ok := g.(Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	assert.IsType(t, &Cached{}, chain[1])
}

func TestNew_PrunesStaleCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geo.db")

	s, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "old", geo.Point{Lat: 1, Lon: 1}))
	require.NoError(t, s.Put(ctx, "fresh", geo.Point{Lat: 2, Lon: 2}))
	_, err = s.db.ExecContext(ctx,
		"UPDATE geocode_cache SET created_at = '2000-01-01 00:00:00' WHERE query = ?", normalize("old"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, closeFn, err := New(Config{Enabled: true, CachePath: path, CacheTTL: 24 * time.Hour})
	require.NoError(t, err)
	require.NoError(t, closeFn())

	s, err = OpenStore(path)
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}
