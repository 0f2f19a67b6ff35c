package gps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"

	"github.com/shaunagostinho/goradar/internal/geo"
	"github.com/shaunagostinho/goradar/internal/nav"
)

// DefaultUERE is the user equivalent range error used to turn HDOP into
// meters when the receiver does not emit GST.
const DefaultUERE = 5.0

// NMEAProvider reads standard NMEA 0183 sentences from a UART GPS.
// Compatible with u-blox NEO-M8N and any standard NMEA GPS.
type NMEAProvider struct {
	portPath string
	baudRate int
	port     serial.Port
	src      io.Reader
	scanner  *bufio.Scanner
	mu       sync.Mutex
	parser   *sentenceParser
}

// NMEAConfig holds configuration for the NMEA GPS provider.
type NMEAConfig struct {
	PortPath string  `yaml:"port_path" json:"portPath"`
	BaudRate int     `yaml:"baud_rate" json:"baudRate"`
	UERE     float64 `yaml:"uere_m" json:"uereM"`
}

// NewNMEA creates a new NMEA GPS provider.
func NewNMEA(cfg NMEAConfig) *NMEAProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	return &NMEAProvider{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		parser:   newSentenceParser(cfg.UERE),
	}
}

func (n *NMEAProvider) Name() string { return "NMEA GPS" }

func (n *NMEAProvider) Connect() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("gps: failed to open %s: %w", n.portPath, err)
	}
	port.SetReadTimeout(200 * time.Millisecond)

	n.mu.Lock()
	n.port = port
	n.attach(port)
	n.mu.Unlock()
	log.Printf("[gps] connected to %s at %d baud", n.portPath, n.baudRate)
	return nil
}

func (n *NMEAProvider) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.port != nil {
		err := n.port.Close()
		n.port = nil
		n.src = nil
		n.scanner = nil
		return err
	}
	return nil
}

// Read consumes sentences until an RMC completes a fix, or gives up after a
// handful of lines so the caller's poll loop keeps its cadence.
func (n *NMEAProvider) Read() (*nav.Fix, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.scanner == nil {
		return nil, fmt.Errorf("gps: not connected")
	}

	for i := 0; i < 20; i++ {
		if !n.scanner.Scan() {
			// A stopped scanner never scans again. Timeouts on a silent
			// receiver surface as ErrNoProgress, which is not a failure.
			err := n.scanner.Err()
			n.attach(n.src)
			if err != nil && !errors.Is(err, io.ErrNoProgress) {
				return nil, fmt.Errorf("gps: read: %w", err)
			}
			return nil, nil
		}
		if fix := n.parser.feed(n.scanner.Text(), time.Now()); fix != nil {
			return fix, nil
		}
	}
	return nil, nil
}

// attach starts a fresh line scanner over r. Callers hold n.mu.
func (n *NMEAProvider) attach(r io.Reader) {
	n.src = r
	n.scanner = bufio.NewScanner(r)
}

func (n *NMEAProvider) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	st := n.parser.status
	st.Source = n.Name()
	st.Connected = n.scanner != nil
	return st
}

// sentenceParser folds RMC, GGA and GST sentences into fixes. RMC carries the
// position and validity; GGA and GST only refine the accuracy estimate.
type sentenceParser struct {
	uere   float64
	status Status

	hdop     float64
	gstError float64 // meters, 0 if the receiver never sent GST
}

func newSentenceParser(uere float64) *sentenceParser {
	if uere <= 0 {
		uere = DefaultUERE
	}
	return &sentenceParser{uere: uere}
}

// feed parses one line and returns a fix when the line was a valid RMC.
func (p *sentenceParser) feed(line string, now time.Time) *nav.Fix {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy GPS or partial sentences
		return nil
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		p.hdop = m.HDOP
		p.status.HDOP = m.HDOP
		p.status.Satellites = int(m.NumSatellites)
	case nmea.TypeGST:
		m := sentence.(nmea.GST)
		p.gstError = math.Hypot(m.LatitudeError, m.LongitudeError)
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		p.status.Valid = m.Validity == nmea.ValidRMC
		if !p.status.Valid {
			return nil
		}
		p.status.Speed = m.Speed * 1.852 // Knots to km/h
		p.status.LastFix = now
		return &nav.Fix{
			Point:    geo.Point{Lat: m.Latitude, Lon: m.Longitude},
			Accuracy: p.accuracy(),
			Time:     now,
		}
	}
	return nil
}

// accuracy prefers the receiver's own error estimate. Without GGA, HDOP is
// taken as 1.
func (p *sentenceParser) accuracy() float64 {
	if p.gstError > 0 {
		return p.gstError
	}
	hdop := p.hdop
	if hdop <= 0 {
		hdop = 1
	}
	return hdop * p.uere
}
