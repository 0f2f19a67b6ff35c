package nav

import "github.com/shaunagostinho/goradar/internal/geo"

// Smoother maintains a rolling window of accepted positions and reports their
// mean.
//
// Latitude and longitude are averaged arithmetically. That is only correct for
// windows spanning a small extent and does not handle the antimeridian.
type Smoother struct {
	samples  []geo.Point
	capacity int
}

// NewSmoother creates a smoother holding at most capacity points.
func NewSmoother(capacity int) *Smoother {
	if capacity < 1 {
		capacity = 1
	}
	return &Smoother{
		samples:  make([]geo.Point, 0, capacity),
		capacity: capacity,
	}
}

// Ingest appends a point, evicting the oldest beyond capacity.
func (s *Smoother) Ingest(p geo.Point) {
	if len(s.samples) == s.capacity {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:len(s.samples)-1]
	}
	s.samples = append(s.samples, p)
}

// Current returns the mean of the window, or false if it is empty.
func (s *Smoother) Current() (geo.Point, bool) {
	if len(s.samples) == 0 {
		return geo.Point{}, false
	}
	var lat, lon float64
	for _, p := range s.samples {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(s.samples))
	return geo.Point{Lat: lat / n, Lon: lon / n}, true
}

func (s *Smoother) Len() int      { return len(s.samples) }
func (s *Smoother) Capacity() int { return s.capacity }

// Points returns a copy of the window, oldest first.
func (s *Smoother) Points() []geo.Point {
	out := make([]geo.Point, len(s.samples))
	copy(out, s.samples)
	return out
}

// Reset clears the window.
func (s *Smoother) Reset() {
	s.samples = s.samples[:0]
}
