package gps

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/goradar/internal/geo"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestDemo(cfg DemoConfig) (*DemoGPS, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	return newDemoGPS(cfg, rand.New(rand.NewSource(42)), clk.now), clk
}

func TestDemoGPS_Interval(t *testing.T) {
	d, clk := newTestDemo(DemoConfig{Interval: time.Second})

	fix, err := d.Read()
	require.NoError(t, err)
	require.NotNil(t, fix)

	clk.t = clk.t.Add(300 * time.Millisecond)
	fix, err = d.Read()
	require.NoError(t, err)
	assert.Nil(t, fix, "no new fix within the interval")

	clk.t = clk.t.Add(time.Second)
	fix, err = d.Read()
	require.NoError(t, err)
	assert.NotNil(t, fix)
}

func TestDemoGPS_WalksToTarget(t *testing.T) {
	cfg := DefaultDemoConfig()
	cfg.Noise = 0
	cfg.GlitchRate = 0
	cfg.Speed = 50
	d, clk := newTestDemo(cfg)

	start := geo.Distance(cfg.Start, cfg.Target)
	var last geo.Point
	for i := 0; i < 200; i++ {
		fix, err := d.Read()
		require.NoError(t, err)
		require.NotNil(t, fix)
		require.True(t, fix.Valid())
		last = fix.Point
		clk.t = clk.t.Add(cfg.Interval)
	}
	assert.Greater(t, start, 3000.0)
	assert.LessOrEqual(t, geo.Distance(last, cfg.Target), 1.0)
	assert.Equal(t, cfg.Target, d.Target())

	st := d.Status()
	assert.True(t, st.Connected)
	assert.True(t, st.Valid)
	assert.InDelta(t, 180.0, st.Speed, 1e-9)
}

func TestDemoGPS_Glitches(t *testing.T) {
	cfg := DefaultDemoConfig()
	cfg.GlitchRate = 1
	d, clk := newTestDemo(cfg)

	var poor, far int
	for i := 0; i < 50; i++ {
		fix, err := d.Read()
		require.NoError(t, err)
		require.NotNil(t, fix)
		if fix.Accuracy >= 80 {
			poor++
		}
		if geo.Distance(fix.Point, geo.Point{Lat: d.pos.Lat(), Lon: d.pos.Lon()}) > 100 {
			far++
		}
		clk.t = clk.t.Add(cfg.Interval)
	}
	assert.Positive(t, poor)
	assert.Positive(t, far)
}
