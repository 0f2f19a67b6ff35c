package gauge

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Band maps every distance at or above MinMeters (up to the next band) to a
// fraction of the gauge radius.
type Band struct {
	MinMeters float64 `yaml:"min_m" json:"minM"`
	Fraction  float64 `yaml:"fraction" json:"fraction"`
}

// Bands is a distance-to-radius compression table. Far targets saturate at
// the rim, near targets get proportionally more room, and arrival collapses
// to the center.
type Bands []Band

// DefaultBands returns the stock compression curve.
func DefaultBands() Bands {
	return Bands{
		{MinMeters: 5, Fraction: 0.15},
		{MinMeters: 20, Fraction: 0.3},
		{MinMeters: 50, Fraction: 0.5},
		{MinMeters: 100, Fraction: 0.7},
		{MinMeters: 250, Fraction: 0.85},
		{MinMeters: 500, Fraction: 1.0},
	}
}

// Validate checks that fractions lie in [0,1] and never decrease with
// distance, and that a band starting at 0 m keeps the center at fraction 0.
// Order in the table does not matter.
func (b Bands) Validate() error {
	if len(b) == 0 {
		return errors.New("gauge: empty band table")
	}
	sorted := b.sorted()
	for i, band := range sorted {
		if band.MinMeters < 0 || math.IsNaN(band.MinMeters) {
			return fmt.Errorf("gauge: band %d: negative threshold %v", i, band.MinMeters)
		}
		if band.Fraction < 0 || band.Fraction > 1 || math.IsNaN(band.Fraction) {
			return fmt.Errorf("gauge: band at %vm: fraction %v outside [0,1]", band.MinMeters, band.Fraction)
		}
		if band.MinMeters == 0 && band.Fraction != 0 {
			return fmt.Errorf("gauge: band at 0m must have fraction 0, got %v", band.Fraction)
		}
		if i > 0 {
			prev := sorted[i-1]
			if band.MinMeters == prev.MinMeters {
				return fmt.Errorf("gauge: duplicate band at %vm", band.MinMeters)
			}
			if band.Fraction < prev.Fraction {
				return fmt.Errorf("gauge: band at %vm (%v) is below band at %vm (%v)",
					band.MinMeters, band.Fraction, prev.MinMeters, prev.Fraction)
			}
		}
	}
	return nil
}

func (b Bands) sorted() Bands {
	out := make(Bands, len(b))
	copy(out, b)
	sort.Slice(out, func(i, j int) bool { return out[i].MinMeters < out[j].MinMeters })
	return out
}

// Fraction returns the radius fraction for a distance in meters. Distances
// below the lowest band, and 0 itself, map to 0.
func (b Bands) Fraction(meters float64) float64 {
	if meters <= 0 {
		return 0
	}
	frac := 0.0
	best := math.Inf(-1)
	for _, band := range b {
		if meters >= band.MinMeters && band.MinMeters > best {
			best = band.MinMeters
			frac = band.Fraction
		}
	}
	return frac
}

// Placement is where the target indicator goes on the gauge, in display
// coordinates with Y pointing down.
type Placement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"radius"`   // Pixels from center
	Fraction float64 `json:"fraction"` // Of the usable radius
	Angle    float64 `json:"angle"`    // Degrees clockwise from up
}

// Mapper places (relative bearing, distance) pairs on a square gauge of
// Size pixels with a Margin kept clear at the rim.
type Mapper struct {
	Size   float64 `yaml:"size" json:"size"`
	Margin float64 `yaml:"margin" json:"margin"`
	Bands  Bands   `yaml:"bands" json:"bands"`
}

// DefaultMapper matches the 300px dashboard canvas.
func DefaultMapper() Mapper {
	return Mapper{Size: 300, Margin: 10, Bands: DefaultBands()}
}

// Clone returns a copy that shares no band storage with m.
func (m Mapper) Clone() Mapper {
	out := m
	out.Bands = append(Bands(nil), m.Bands...)
	return out
}

// Validate checks the geometry and band table.
func (m Mapper) Validate() error {
	if m.Size <= 0 {
		return fmt.Errorf("gauge: size must be positive, got %v", m.Size)
	}
	if m.Margin < 0 || m.Margin >= m.Size/2 {
		return fmt.Errorf("gauge: margin %v must be in [0, %v)", m.Margin, m.Size/2)
	}
	return m.Bands.Validate()
}

// Center returns the gauge center in display coordinates.
func (m Mapper) Center() (float64, float64) {
	return m.Size / 2, m.Size / 2
}

// MaxRadius is the usable radius: half the size minus the margin.
func (m Mapper) MaxRadius() float64 {
	r := m.Size/2 - m.Margin
	if r < 0 {
		return 0
	}
	return r
}

// Place maps a relative bearing (degrees, 0 = up) and distance (meters) to
// gauge coordinates.
func (m Mapper) Place(relBearing, meters float64) Placement {
	cx, cy := m.Center()
	frac := m.Bands.Fraction(meters)
	r := frac * m.MaxRadius()
	theta := (relBearing - 90) * math.Pi / 180
	return Placement{
		X:        cx + r*math.Cos(theta),
		Y:        cy + r*math.Sin(theta),
		Radius:   r,
		Fraction: frac,
		Angle:    relBearing,
	}
}
