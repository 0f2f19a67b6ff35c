package gps

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTProvider_HandleMessage(t *testing.T) {
	m := NewMQTT(MQTTConfig{Broker: "tcp://localhost:1883"})

	fix, err := m.Read()
	require.NoError(t, err)
	assert.Nil(t, fix, "empty buffer")

	m.handleMessage([]byte(`{"lat":48.8566,"lon":2.3522,"accuracy":4.5,"time":1717236000000}`))
	fix, err = m.Read()
	require.NoError(t, err)
	require.NotNil(t, fix)
	assert.Equal(t, 48.8566, fix.Lat)
	assert.Equal(t, 2.3522, fix.Lon)
	assert.Equal(t, 4.5, fix.Accuracy)
	assert.Equal(t, time.UnixMilli(1717236000000), fix.Time)

	st := m.Status()
	assert.True(t, st.Valid)
	assert.False(t, st.Connected)
	assert.Equal(t, "MQTT (goradar/fix)", st.Source)
}

func TestMQTTProvider_BadPayloads(t *testing.T) {
	m := NewMQTT(MQTTConfig{})
	for _, p := range []string{`not json`, `{"lon":2.3}`, `{"lat":48.8}`, `[]`,
		`{"lat":48.8,"lon":2.3}`, `{"lat":48.8,"lon":2.3,"accuracy":null}`} {
		m.handleMessage([]byte(p))
	}
	fix, err := m.Read()
	require.NoError(t, err)
	assert.Nil(t, fix)
}

func TestMQTTProvider_ZeroCoordinatesAreKept(t *testing.T) {
	m := NewMQTT(MQTTConfig{})
	m.handleMessage([]byte(`{"lat":0,"lon":0,"accuracy":3}`))
	fix, _ := m.Read()
	require.NotNil(t, fix)
	assert.Zero(t, fix.Lat)
	assert.Zero(t, fix.Lon)
}

func TestMQTTProvider_KeepsNewest(t *testing.T) {
	m := NewMQTT(MQTTConfig{})
	n := cap(m.fixes) + 10
	for i := 0; i < n; i++ {
		m.handleMessage([]byte(fmt.Sprintf(`{"lat":%d,"lon":1,"accuracy":3}`, i)))
	}

	var last float64
	count := 0
	for {
		fix, _ := m.Read()
		if fix == nil {
			break
		}
		last = fix.Lat
		count++
	}
	assert.Equal(t, cap(m.fixes), count)
	assert.Equal(t, float64(n-1), last)
}

func TestMQTTProvider_ConnectWithoutBroker(t *testing.T) {
	m := NewMQTT(MQTTConfig{})
	assert.Error(t, m.Connect())
	assert.NoError(t, m.Close())
}
