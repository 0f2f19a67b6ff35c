package nav

import (
	"math"

	"github.com/shaunagostinho/goradar/internal/geo"
)

// HeadingConfig controls when consecutive fixes count as travel.
type HeadingConfig struct {
	MinMove float64 `yaml:"min_move_m" json:"minMoveM"` // Displacement needed for a sample
	MaxJump float64 `yaml:"max_jump_m" json:"maxJumpM"` // Larger displacements re-anchor instead
	Window  int     `yaml:"window" json:"window"`       // Most recent samples averaged, 0 = all

	// Accumulate holds the anchor through sub-MinMove steps so slow travel
	// eventually yields a sample. Off, every accepted fix becomes the anchor.
	Accumulate bool `yaml:"accumulate" json:"accumulate"`
}

// HeadingEstimator derives the direction of travel from a stream of
// positions as a circular mean of the bearings between them.
//
// Angles are averaged through their unit vectors: atan2(mean sin, mean cos).
// An arithmetic mean would put {350, 10} at 180.
type HeadingEstimator struct {
	cfg HeadingConfig

	sumSin, sumCos float64
	count          int

	// ring of recent samples, only used when cfg.Window > 0
	ring []float64
	next int

	anchor    geo.Point
	hasAnchor bool
}

// NewHeadingEstimator creates an estimator with an empty accumulator.
func NewHeadingEstimator(cfg HeadingConfig) *HeadingEstimator {
	if cfg.MinMove < 0 {
		cfg.MinMove = 0
	}
	h := &HeadingEstimator{cfg: cfg}
	if cfg.Window > 0 {
		h.ring = make([]float64, 0, cfg.Window)
	}
	return h
}

// Observe feeds the next accepted raw position. It returns true when the
// movement from the previous fix produced a heading sample.
//
// Displacements at or below MinMove produce no sample, and displacements
// above MaxJump re-anchor without sampling. With Accumulate set, small steps
// keep the old anchor instead.
func (h *HeadingEstimator) Observe(p geo.Point) bool {
	if !h.hasAnchor {
		h.anchor = p
		h.hasAnchor = true
		return false
	}

	d := geo.Distance(h.anchor, p)
	switch {
	case h.cfg.MaxJump > 0 && d > h.cfg.MaxJump:
		h.anchor = p
		return false
	case d <= h.cfg.MinMove || d == 0:
		if !h.cfg.Accumulate {
			h.anchor = p
		}
		return false
	}

	h.Add(geo.Bearing(h.anchor, p))
	h.anchor = p
	return true
}

// Add folds a bearing sample (degrees) into the accumulator.
func (h *HeadingEstimator) Add(bearing float64) {
	if h.cfg.Window > 0 {
		if len(h.ring) < h.cfg.Window {
			h.ring = append(h.ring, bearing)
		} else {
			h.ring[h.next] = bearing
		}
		h.next = (h.next + 1) % h.cfg.Window
		h.recompute()
		return
	}

	rad := bearing * math.Pi / 180
	h.sumSin += math.Sin(rad)
	h.sumCos += math.Cos(rad)
	h.count++
}

// recompute rebuilds the sums from the ring; subtracting evicted samples
// would let float error creep in over long sessions.
func (h *HeadingEstimator) recompute() {
	h.sumSin, h.sumCos = 0, 0
	for _, b := range h.ring {
		rad := b * math.Pi / 180
		h.sumSin += math.Sin(rad)
		h.sumCos += math.Cos(rad)
	}
	h.count = len(h.ring)
}

// Heading returns the circular mean in [0,360), or false before the first
// sample. Samples that cancel out (e.g. 0 and 180) yield 0.
func (h *HeadingEstimator) Heading() (float64, bool) {
	if h.count == 0 {
		return 0, false
	}
	n := float64(h.count)
	s, c := h.sumSin/n, h.sumCos/n
	if math.Hypot(s, c) < 1e-9 {
		return 0, true
	}
	return geo.Normalize(math.Atan2(s, c) * 180 / math.Pi), true
}

// Samples returns the number of bearings currently in the average.
func (h *HeadingEstimator) Samples() int { return h.count }

// Reset zeroes the accumulator and forgets the anchor.
func (h *HeadingEstimator) Reset() {
	h.sumSin, h.sumCos = 0, 0
	h.count = 0
	h.ring = h.ring[:0]
	h.next = 0
	h.anchor = geo.Point{}
	h.hasAnchor = false
}
