package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius is the mean sphere radius used for all distance math, in meters.
const EarthRadius = 6371000.0

// ErrInvalidPoint is returned for coordinates outside the valid lat/lon range.
var ErrInvalidPoint = errors.New("geo: coordinate out of range")

// Point represents a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the point lies within [-90,90] x [-180,180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Check returns ErrInvalidPoint (wrapped with the values) if p is not Valid.
func (p Point) Check() error {
	if !p.Valid() {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidPoint, p.Lat, p.Lon)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance calculates the haversine distance between two points, rounded to
// the nearest meter.
func Distance(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return math.Round(EarthRadius * c)
}

// Bearing calculates the initial great-circle bearing from one point to
// another, in degrees [0,360). Identical points yield 0.
func Bearing(from, to Point) float64 {
	if from == to {
		return 0
	}
	lat1 := toRad(from.Lat)
	lat2 := toRad(to.Lat)
	dLon := toRad(to.Lon - from.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return Normalize(toDeg(math.Atan2(y, x)))
}

// Normalize wraps an angle in degrees into [0,360).
func Normalize(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -1e-15 + 360 rounds to 360 in float64
	if deg >= 360 {
		deg = 0
	}
	return deg
}
