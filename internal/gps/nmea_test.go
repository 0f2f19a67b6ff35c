package gps

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/goradar/internal/nav"
)

const (
	rmcValid = "$GPRMC,123519,A,4851.396,N,00221.132,E,000.5,054.7,230394,003.1,W*62"
	rmcVoid  = "$GPRMC,123520,V,4851.396,N,00221.132,E,000.5,054.7,230394,003.1,W*7F"
	rmcGN    = "$GNRMC,123521,A,4851.450,N,00221.132,E,002.0,000.0,230394,003.1,W*7B"
	ggaGood  = "$GPGGA,123519,4851.396,N,00221.132,E,1,08,0.9,545.4,M,46.9,M,,*40"
	ggaPoor  = "$GPGGA,123521,4851.450,N,00221.132,E,1,05,4.0,545.4,M,46.9,M,,*46"
	gst      = "$GPGST,123519,1.2,3.0,2.0,45.0,1.5,2.0,3.5*47"
)

func TestSentenceParser_RMC(t *testing.T) {
	p := newSentenceParser(0)
	now := time.Date(2024, 3, 23, 12, 35, 19, 0, time.UTC)

	fix := p.feed(rmcValid, now)
	require.NotNil(t, fix)
	assert.InDelta(t, 48.8566, fix.Lat, 1e-4)
	assert.InDelta(t, 2.3522, fix.Lon, 1e-4)
	assert.Equal(t, DefaultUERE, fix.Accuracy, "no GGA yet: HDOP taken as 1")
	assert.Equal(t, now, fix.Time)
	assert.True(t, p.status.Valid)
	assert.InDelta(t, 0.926, p.status.Speed, 1e-3)
}

func TestSentenceParser_AccuracyFromHDOP(t *testing.T) {
	p := newSentenceParser(5)

	assert.Nil(t, p.feed(ggaGood, time.Now()))
	fix := p.feed(rmcValid, time.Now())
	require.NotNil(t, fix)
	assert.InDelta(t, 4.5, fix.Accuracy, 1e-9)
	assert.Equal(t, 8, p.status.Satellites)

	p.feed(ggaPoor, time.Now())
	fix = p.feed(rmcGN, time.Now())
	require.NotNil(t, fix, "GN talker is accepted")
	assert.InDelta(t, 20, fix.Accuracy, 1e-9)
	assert.Equal(t, 5, p.status.Satellites)
}

func TestSentenceParser_AccuracyFromGST(t *testing.T) {
	p := newSentenceParser(5)
	p.feed(ggaPoor, time.Now())
	p.feed(gst, time.Now())

	fix := p.feed(rmcValid, time.Now())
	require.NotNil(t, fix)
	assert.InDelta(t, 2.5, fix.Accuracy, 1e-9)
}

func TestSentenceParser_Rejects(t *testing.T) {
	p := newSentenceParser(5)

	assert.Nil(t, p.feed(rmcVoid, time.Now()), "void fix")
	assert.False(t, p.status.Valid)
	assert.Nil(t, p.feed("", time.Now()))
	assert.Nil(t, p.feed("garbage", time.Now()))
	assert.Nil(t, p.feed("$GPRMC,123519,A,4851.396,N,00221.132,E,000.5,054.7,230394,003.1,W*00", time.Now()), "bad checksum")
	assert.Nil(t, p.feed("$GPRMC,123519,A,4851.3", time.Now()), "truncated")
}

func TestNMEAProvider_NotConnected(t *testing.T) {
	n := NewNMEA(NMEAConfig{PortPath: "/dev/null-gps"})
	fix, err := n.Read()
	assert.Nil(t, fix)
	assert.Error(t, err)

	st := n.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, "NMEA GPS", st.Source)
	assert.NoError(t, n.Close())
}

// quietPort mimics a serial port with a read timeout: each timeout returns
// (0, nil) until the receiver starts talking again.
type quietPort struct {
	silent int
	data   *strings.Reader
}

func (q *quietPort) Read(b []byte) (int, error) {
	if q.silent > 0 {
		q.silent--
		return 0, nil
	}
	return q.data.Read(b)
}

func TestNMEAProvider_SurvivesSilence(t *testing.T) {
	n := NewNMEA(NMEAConfig{PortPath: "/dev/ttyGPS"})
	port := &quietPort{silent: 150, data: strings.NewReader(rmcValid + "\r\n")}
	n.attach(port)

	var fix *nav.Fix
	for i := 0; i < 5 && fix == nil; i++ {
		var err error
		fix, err = n.Read()
		require.NoError(t, err, "silence is not an error")
		assert.True(t, n.Status().Connected)
	}
	require.NotNil(t, fix, "sentence after a long silence is still read")
	assert.InDelta(t, 48.8566, fix.Lat, 1e-4)
	assert.Zero(t, port.silent)
}
