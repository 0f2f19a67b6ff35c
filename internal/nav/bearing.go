package nav

import "github.com/shaunagostinho/goradar/internal/geo"

// RelativeBearing returns where the destination lies relative to the
// direction of travel, in degrees [0,360). 0 is dead ahead, increasing
// clockwise.
func RelativeBearing(heading, toDestination float64) float64 {
	return geo.Normalize(toDestination - heading + 360)
}
