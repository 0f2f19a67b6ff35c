package gauge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBands_Fraction(t *testing.T) {
	b := DefaultBands()
	require.NoError(t, b.Validate())

	tests := []struct {
		meters float64
		want   float64
	}{
		{0, 0},
		{4.9, 0},
		{5, 0.15},
		{19, 0.15},
		{20, 0.3},
		{75, 0.5},
		{100, 0.7},
		{499, 0.85},
		{500, 1},
		{12000, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Fraction(tt.meters), "Fraction(%v)", tt.meters)
	}
}

func TestBands_Monotonic(t *testing.T) {
	b := DefaultBands()
	prev := -1.0
	for d := 0.0; d <= 2000; d += 0.5 {
		f := b.Fraction(d)
		assert.GreaterOrEqual(t, f, prev, "at %vm", d)
		prev = f
	}
}

func TestBands_UnorderedTable(t *testing.T) {
	b := Bands{
		{MinMeters: 1000, Fraction: 1},
		{MinMeters: 10, Fraction: 0.2},
		{MinMeters: 200, Fraction: 0.6},
	}
	require.NoError(t, b.Validate())
	assert.Equal(t, 0.6, b.Fraction(999))
	assert.Equal(t, 0.2, b.Fraction(10))
	assert.Equal(t, 1.0, b.Fraction(5000))
}

func TestBands_Validate(t *testing.T) {
	tests := map[string]Bands{
		"Empty":           {},
		"Above one":       {{MinMeters: 0, Fraction: 1.2}},
		"Negative":        {{MinMeters: -1, Fraction: 0.5}},
		"Decreasing":      {{MinMeters: 10, Fraction: 0.8}, {MinMeters: 100, Fraction: 0.4}},
		"Duplicate key":   {{MinMeters: 10, Fraction: 0.2}, {MinMeters: 10, Fraction: 0.4}},
		"Off-center zero": {{MinMeters: 0, Fraction: 0.2}, {MinMeters: 100, Fraction: 1}},
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, b.Validate())
		})
	}
}

func TestMapper_ZeroDistanceIsCenter(t *testing.T) {
	m := DefaultMapper()
	// Bypasses Validate: even a bad table keeps distance 0 at the center.
	m.Bands = Bands{{MinMeters: 0, Fraction: 0.2}, {MinMeters: 100, Fraction: 1}}
	cx, cy := m.Center()

	p := m.Place(0, 0)
	assert.Zero(t, p.Fraction)
	assert.Zero(t, p.Radius)
	assert.InDelta(t, cx, p.X, 1e-9)
	assert.InDelta(t, cy, p.Y, 1e-9)
	assert.Equal(t, 0.2, m.Bands.Fraction(1))
}

func TestMapper_Place(t *testing.T) {
	m := DefaultMapper()
	require.NoError(t, m.Validate())
	cx, cy := m.Center()
	rMax := m.MaxRadius()
	require.Equal(t, 140.0, rMax)

	tests := []struct {
		name  string
		rel   float64
		dist  float64
		wantX float64
		wantY float64
	}{
		{"Ahead, far", 0, 1000, cx, cy - rMax},
		{"Right, far", 90, 1000, cx + rMax, cy},
		{"Behind, far", 180, 1000, cx, cy + rMax},
		{"Left, far", 270, 1000, cx - rMax, cy},
		{"Ahead, 100m", 0, 100, cx, cy - 0.7*rMax},
		{"Arrived", 123, 0, cx, cy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := m.Place(tt.rel, tt.dist)
			assert.InDelta(t, tt.wantX, p.X, 1e-9)
			assert.InDelta(t, tt.wantY, p.Y, 1e-9)
		})
	}
}

func TestMapper_Bounds(t *testing.T) {
	m := DefaultMapper()
	cx, cy := m.Center()
	for rel := 0.0; rel < 360; rel += 7.5 {
		for _, d := range []float64{0, 3, 30, 300, 3000, 3e6} {
			p := m.Place(rel, d)
			assert.LessOrEqual(t, p.Radius, m.MaxRadius()+1e-9)
			dx, dy := p.X-cx, p.Y-cy
			assert.LessOrEqual(t, dx*dx+dy*dy, m.MaxRadius()*m.MaxRadius()+1e-6)
		}
	}

	top := m.Place(45, 500)
	assert.Equal(t, 1.0, top.Fraction)
	assert.Equal(t, m.MaxRadius(), top.Radius)
	assert.Zero(t, m.Place(45, 0).Radius)
}

func TestMapper_Validate(t *testing.T) {
	m := DefaultMapper()
	m.Margin = 200
	assert.Error(t, m.Validate())

	m = DefaultMapper()
	m.Size = 0
	assert.Error(t, m.Validate())
}
