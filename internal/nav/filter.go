package nav

import (
	"time"

	"github.com/shaunagostinho/goradar/internal/geo"
)

// Fix is a single raw position report from a location source.
type Fix struct {
	geo.Point
	Accuracy float64   `json:"accuracy"` // Horizontal accuracy, meters
	Seq      uint64    `json:"seq"`      // Arrival order, assigned by the session
	Time     time.Time `json:"time"`
}

// Verdict is the outcome of running a fix through the FixFilter.
type Verdict int

const (
	Accepted Verdict = iota
	RejectInvalid
	RejectAccuracy
	RejectJump
	// Recovered is an acceptance after too many consecutive jump rejections.
	// The caller should re-seed its smoothing state from this fix.
	Recovered
	// Ignored means the navigator is idle (no destination).
	Ignored
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectInvalid:
		return "invalid"
	case RejectAccuracy:
		return "accuracy"
	case RejectJump:
		return "jump"
	case Recovered:
		return "recovered"
	case Ignored:
		return "idle"
	}
	return "unknown"
}

// OK reports whether the fix should be folded into downstream state.
func (v Verdict) OK() bool { return v == Accepted || v == Recovered }

// FilterConfig holds the fix acceptance thresholds.
type FilterConfig struct {
	MaxAccuracy  float64 `yaml:"max_accuracy_m" json:"maxAccuracyM"` // Reject worse than this
	MaxJump      float64 `yaml:"max_jump_m" json:"maxJumpM"`         // 0 disables the jump check
	RecoverAfter int     `yaml:"recover_after" json:"recoverAfter"`  // Consecutive jumps before re-seeding, 0 = never
}

// FixFilter decides whether a raw fix is good enough to use.
type FixFilter struct {
	cfg   FilterConfig
	jumps int // consecutive jump rejections
}

// NewFixFilter creates a filter. A non-positive MaxAccuracy disables the
// accuracy gate.
func NewFixFilter(cfg FilterConfig) *FixFilter {
	return &FixFilter{cfg: cfg}
}

// Check classifies f against the reference position (the current smoothed
// position, or nil if there is none yet). The only state it keeps is the
// consecutive jump counter used for recovery.
func (f *FixFilter) Check(fix Fix, ref *geo.Point) Verdict {
	if !fix.Valid() || fix.Accuracy < 0 {
		return RejectInvalid
	}
	if f.cfg.MaxAccuracy > 0 && fix.Accuracy > f.cfg.MaxAccuracy {
		return RejectAccuracy
	}
	if f.cfg.MaxJump > 0 && ref != nil && geo.Distance(*ref, fix.Point) > f.cfg.MaxJump {
		f.jumps++
		if f.cfg.RecoverAfter > 0 && f.jumps > f.cfg.RecoverAfter {
			f.jumps = 0
			return Recovered
		}
		return RejectJump
	}
	f.jumps = 0
	return Accepted
}

// Reset clears the consecutive jump counter.
func (f *FixFilter) Reset() {
	f.jumps = 0
}
