package gps

import (
	"time"

	"github.com/shaunagostinho/goradar/internal/nav"
)

// Provider is the interface for location sources.
type Provider interface {
	Name() string
	Connect() error
	Close() error
	// Read returns the next fix, or nil if none arrived since the last call.
	// May block briefly.
	Read() (*nav.Fix, error)
	// Status reports receiver health for the dashboard.
	Status() Status
}

// Status summarizes a location source for display.
type Status struct {
	Source     string    `json:"source"`
	Connected  bool      `json:"connected"`
	Valid      bool      `json:"valid"`      // Receiver reports a fix
	Satellites int       `json:"satellites"` // Sats in use
	HDOP       float64   `json:"hdop"`       // Horizontal dilution
	Speed      float64   `json:"speed"`      // km/h
	LastFix    time.Time `json:"lastFix"`
}
