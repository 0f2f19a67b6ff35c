package nav

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shaunagostinho/goradar/internal/geo"
)

// ErrNoDestination is returned by operations that need a destination.
var ErrNoDestination = errors.New("nav: no destination set")

// Config holds all tunables of the navigation pipeline.
type Config struct {
	Filter  FilterConfig  `yaml:"filter" json:"filter"`
	Window  int           `yaml:"window_size" json:"windowSize"` // Smoothing window capacity
	Heading HeadingConfig `yaml:"heading" json:"heading"`
}

// DefaultConfig returns thresholds suited to a walking or driving observer.
func DefaultConfig() Config {
	return Config{
		Filter: FilterConfig{
			MaxAccuracy:  30,
			MaxJump:      100,
			RecoverAfter: 5,
		},
		Window: 5,
		Heading: HeadingConfig{
			MinMove: 3,
			MaxJump: 100,
		},
	}
}

// Stats counts what happened to incoming fixes.
type Stats struct {
	Accepted         uint64 `json:"accepted"`
	Recovered        uint64 `json:"recovered"`
	RejectedInvalid  uint64 `json:"rejectedInvalid"`
	RejectedAccuracy uint64 `json:"rejectedAccuracy"`
	RejectedJump     uint64 `json:"rejectedJump"`
	Ignored          uint64 `json:"ignored"` // No destination set
	Dropped          uint64 `json:"dropped"` // Queue full
}

// State is the navigation snapshot consumed by the display each frame.
type State struct {
	SessionID   string     `json:"sessionId,omitempty"`
	Destination *geo.Point `json:"destination,omitempty"`
	Position    *geo.Point `json:"position,omitempty"` // Smoothed

	Distance        float64 `json:"distance"`      // Meters, whole
	BearingToDest   float64 `json:"bearingToDest"` // Degrees true
	Heading         float64 `json:"heading"`       // 0 while HeadingValid is false
	HeadingValid    bool    `json:"headingValid"`
	HeadingSamples  int     `json:"headingSamples"`
	RelativeBearing float64 `json:"relativeBearing"` // 0 = dead ahead

	WindowLen   int     `json:"windowLen"`
	LastFix     *Fix    `json:"lastFix,omitempty"`
	LastVerdict Verdict `json:"-"`
	Verdict     string  `json:"verdict,omitempty"`
	Stats       Stats   `json:"stats"`

	Updated time.Time `json:"updated"`
}

// Active reports whether a destination is set and a position is known, i.e.
// whether Distance and the bearings mean anything.
func (s State) Active() bool {
	return s.Destination != nil && s.Position != nil
}

// Navigator is the single-threaded navigation core. It is not safe for
// concurrent use; Session serializes access to it.
type Navigator struct {
	filter   *FixFilter
	smoother *Smoother
	heading  *HeadingEstimator

	dest      geo.Point
	hasDest   bool
	sessionID string

	lastFix     *Fix
	lastVerdict Verdict
	stats       Stats
	updated     time.Time
}

// NewNavigator creates a navigator with no destination.
func NewNavigator(cfg Config) *Navigator {
	return &Navigator{
		filter:   NewFixFilter(cfg.Filter),
		smoother: NewSmoother(cfg.Window),
		heading:  NewHeadingEstimator(cfg.Heading),
	}
}

// SetDestination replaces the destination and resets all smoothing and
// heading state so nothing from the previous leg leaks into the new one.
func (n *Navigator) SetDestination(p geo.Point) error {
	if err := p.Check(); err != nil {
		return err
	}
	n.Reset()
	n.dest = p
	n.hasDest = true
	n.sessionID = uuid.NewString()
	n.updated = time.Now()
	log.Printf("[nav] destination set to %s (session %s)", p, n.sessionID)
	return nil
}

// ClearDestination drops the destination and returns to idle.
func (n *Navigator) ClearDestination() {
	n.Reset()
	n.hasDest = false
	n.dest = geo.Point{}
	n.sessionID = ""
	n.updated = time.Now()
	log.Printf("[nav] destination cleared")
}

// Destination returns the current destination, if any.
func (n *Navigator) Destination() (geo.Point, bool) {
	return n.dest, n.hasDest
}

// Reset clears window, accumulator, previous-fix memory and filter state
// together.
func (n *Navigator) Reset() {
	n.filter.Reset()
	n.smoother.Reset()
	n.heading.Reset()
	n.lastFix = nil
}

// Ingest runs a raw fix through the pipeline. Without a destination the fix
// is recorded as the last seen fix but otherwise ignored.
func (n *Navigator) Ingest(f Fix) Verdict {
	n.updated = time.Now()
	fix := f
	n.lastFix = &fix

	if !n.hasDest {
		n.stats.Ignored++
		n.lastVerdict = Ignored
		return Ignored
	}

	var ref *geo.Point
	if cur, ok := n.smoother.Current(); ok {
		ref = &cur
	}

	v := n.filter.Check(f, ref)
	n.lastVerdict = v
	switch v {
	case Accepted:
		n.stats.Accepted++
	case Recovered:
		n.stats.Recovered++
		log.Printf("[nav] position jumped to %s, re-seeding", f.Point)
		n.smoother.Reset()
		n.heading.Reset()
	case RejectInvalid:
		n.stats.RejectedInvalid++
		return v
	case RejectAccuracy:
		n.stats.RejectedAccuracy++
		return v
	case RejectJump:
		n.stats.RejectedJump++
		return v
	}

	n.smoother.Ingest(f.Point)
	n.heading.Observe(f.Point)
	return v
}

// Window returns a copy of the smoothing window, oldest first.
func (n *Navigator) Window() []geo.Point {
	return n.smoother.Points()
}

// State recomputes the navigation snapshot from current state.
//
// Boundary conventions: an undefined heading is treated as 0 (north-up) and
// flagged with HeadingValid=false; an observer at the destination gets
// bearing and relative bearing 0.
func (n *Navigator) State() State {
	st := State{
		SessionID:   n.sessionID,
		WindowLen:   n.smoother.Len(),
		LastVerdict: n.lastVerdict,
		Stats:       n.stats,
		Updated:     n.updated,
	}
	if n.lastFix != nil {
		fix := *n.lastFix
		st.LastFix = &fix
		st.Verdict = n.lastVerdict.String()
	}

	hdg, ok := n.heading.Heading()
	st.Heading = hdg
	st.HeadingValid = ok
	st.HeadingSamples = n.heading.Samples()

	if !n.hasDest {
		return st
	}
	dest := n.dest
	st.Destination = &dest

	pos, ok := n.smoother.Current()
	if !ok {
		return st
	}
	st.Position = &pos
	st.Distance = geo.Distance(pos, dest)
	if st.Distance == 0 {
		return st
	}
	st.BearingToDest = geo.Bearing(pos, dest)
	st.RelativeBearing = RelativeBearing(st.Heading, st.BearingToDest)
	return st
}
