package nav

import (
	"math"

	"github.com/shaunagostinho/goradar/internal/geo"
)

var paris = geo.Point{Lat: 48.8566, Lon: 2.3522}

// metersPerDegLat matches geo.EarthRadius.
const metersPerDegLat = geo.EarthRadius * math.Pi / 180

func north(p geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: p.Lat + meters/metersPerDegLat, Lon: p.Lon}
}

func east(p geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon + meters/(metersPerDegLat*math.Cos(p.Lat*math.Pi/180))}
}

func fixAt(p geo.Point, accuracy float64) Fix {
	return Fix{Point: p, Accuracy: accuracy}
}

// angleDiff returns the unsigned angular distance between two bearings.
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
