package gps

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/shaunagostinho/goradar/internal/geo"
	"github.com/shaunagostinho/goradar/internal/nav"
)

// DemoConfig drives the simulated walker. Noise is the Gaussian sigma of the
// reported position in meters; GlitchRate is the chance that a fix is bad.
type DemoConfig struct {
	Start      geo.Point     `yaml:"start" json:"start"`
	Target     geo.Point     `yaml:"target" json:"target"`
	Speed      float64       `yaml:"speed_mps" json:"speedMps"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
	Noise      float64       `yaml:"noise_m" json:"noiseM"`
	GlitchRate float64       `yaml:"glitch_rate" json:"glitchRate"`
}

// DefaultDemoConfig walks from the Louvre to the Eiffel Tower.
func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Start:      geo.Point{Lat: 48.8606, Lon: 2.3376},
		Target:     geo.Point{Lat: 48.8584, Lon: 2.2945},
		Speed:      8,
		Interval:   time.Second,
		Noise:      2,
		GlitchRate: 0.05,
	}
}

// DemoGPS generates simulated fixes for testing without hardware. The walker
// heads for the target with some wander, and occasionally emits a teleport
// or a low-accuracy fix so the filter has something to reject.
type DemoGPS struct {
	mu    sync.Mutex
	cfg   DemoConfig
	rng   *rand.Rand
	now   func() time.Time
	pos   orb.Point
	last  time.Time
	drift float64
	st    Status
}

func NewDemoGPS(cfg DemoConfig) *DemoGPS {
	return newDemoGPS(cfg, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

func newDemoGPS(cfg DemoConfig, rng *rand.Rand, now func() time.Time) *DemoGPS {
	def := DefaultDemoConfig()
	if !cfg.Start.Valid() || (cfg.Start == geo.Point{}) {
		cfg.Start = def.Start
	}
	if !cfg.Target.Valid() || (cfg.Target == geo.Point{}) {
		cfg.Target = def.Target
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &DemoGPS{
		cfg: cfg,
		rng: rng,
		now: now,
		pos: orb.Point{cfg.Start.Lon, cfg.Start.Lat},
	}
}

func (d *DemoGPS) Name() string   { return "Demo GPS (Simulated)" }
func (d *DemoGPS) Connect() error { return nil }
func (d *DemoGPS) Close() error   { return nil }

// Target is where the walker is going.
func (d *DemoGPS) Target() geo.Point { return d.cfg.Target }

func (d *DemoGPS) Read() (*nav.Fix, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.cfg.Interval {
		return nil, nil
	}
	d.last = now
	d.step()

	fix := &nav.Fix{
		Point:    d.jitter(d.pos, d.cfg.Noise),
		Accuracy: 3 + d.rng.Float64()*4,
		Time:     now,
	}
	if d.rng.Float64() < d.cfg.GlitchRate {
		if d.rng.Intn(2) == 0 {
			// multipath teleport
			fix.Point = d.jitter(d.pos, 300)
		} else {
			fix.Accuracy = 80 + d.rng.Float64()*100
		}
	}

	d.st = Status{
		Valid:      true,
		Satellites: 9 + d.rng.Intn(4),
		HDOP:       fix.Accuracy / DefaultUERE,
		Speed:      d.cfg.Speed * 3.6,
		LastFix:    now,
	}
	return fix, nil
}

func (d *DemoGPS) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.st
	st.Source = d.Name()
	st.Connected = true
	return st
}

// step advances the true position one interval toward the target.
func (d *DemoGPS) step() {
	target := orb.Point{d.cfg.Target.Lon, d.cfg.Target.Lat}
	remaining := orbgeo.Distance(d.pos, target)
	stride := d.cfg.Speed * d.cfg.Interval.Seconds()
	if remaining <= stride {
		d.pos = target
		return
	}

	// Wander is a bounded random walk so the track is not a straight line.
	d.drift += (d.rng.Float64() - 0.5) * 10
	d.drift = math.Max(-30, math.Min(30, d.drift))
	bearing := orbgeo.Bearing(d.pos, target) + d.drift
	d.pos = orbgeo.PointAtBearingAndDistance(d.pos, bearing, stride)
}

func (d *DemoGPS) jitter(p orb.Point, sigma float64) geo.Point {
	if sigma <= 0 {
		return geo.Point{Lat: p.Lat(), Lon: p.Lon()}
	}
	dist := math.Abs(d.rng.NormFloat64()) * sigma
	q := orbgeo.PointAtBearingAndDistance(p, d.rng.Float64()*360, dist)
	return geo.Point{Lat: q.Lat(), Lon: q.Lon()}
}
