package gps

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shaunagostinho/goradar/internal/geo"
	"github.com/shaunagostinho/goradar/internal/nav"
)

// MQTTConfig holds configuration for the MQTT fix subscriber.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"clientId"`
	Topic    string `yaml:"topic" json:"topic"`
}

// fixMessage is the payload published by a phone or a separate GPS producer.
type fixMessage struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy *float64 `json:"accuracy"` // Meters, required
	Time     int64    `json:"time,omitempty"` // Unix millis
}

// MQTTProvider takes fixes from an MQTT topic. Messages land in a small
// buffer; Read drains it without blocking.
type MQTTProvider struct {
	cfg    MQTTConfig
	client mqtt.Client
	fixes  chan nav.Fix

	mu sync.Mutex
	st Status
}

func NewMQTT(cfg MQTTConfig) *MQTTProvider {
	if cfg.ClientID == "" {
		cfg.ClientID = "goradar-gps"
	}
	if cfg.Topic == "" {
		cfg.Topic = "goradar/fix"
	}
	return &MQTTProvider{
		cfg:   cfg,
		fixes: make(chan nav.Fix, 32),
	}
}

func (m *MQTTProvider) Name() string { return "MQTT (" + m.cfg.Topic + ")" }

func (m *MQTTProvider) Connect() error {
	if m.cfg.Broker == "" {
		return fmt.Errorf("gps: mqtt broker not configured")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("gps: mqtt connect %s: %w", m.cfg.Broker, token.Error())
	}

	token := client.Subscribe(m.cfg.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		m.handleMessage(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("gps: mqtt subscribe %s: %w", m.cfg.Topic, token.Error())
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	log.Printf("[gps] subscribed to %s on %s", m.cfg.Topic, m.cfg.Broker)
	return nil
}

func (m *MQTTProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}

// Read returns the oldest buffered fix, or nil if none arrived.
func (m *MQTTProvider) Read() (*nav.Fix, error) {
	select {
	case f := <-m.fixes:
		return &f, nil
	default:
		return nil, nil
	}
}

func (m *MQTTProvider) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.st
	st.Source = m.Name()
	st.Connected = m.client != nil && m.client.IsConnectionOpen()
	return st
}

func (m *MQTTProvider) handleMessage(payload []byte) {
	var msg fixMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("[gps] bad mqtt payload: %v", err)
		return
	}
	if msg.Lat == nil || msg.Lon == nil || msg.Accuracy == nil {
		log.Printf("[gps] mqtt payload missing lat/lon/accuracy")
		return
	}

	ts := time.Now()
	if msg.Time > 0 {
		ts = time.UnixMilli(msg.Time)
	}
	fix := nav.Fix{
		Point:    geo.Point{Lat: *msg.Lat, Lon: *msg.Lon},
		Accuracy: *msg.Accuracy,
		Time:     ts,
	}

	m.mu.Lock()
	m.st.Valid = fix.Valid()
	m.st.LastFix = ts
	m.mu.Unlock()

	select {
	case m.fixes <- fix:
	default:
		// Drop the oldest so Read always sees recent positions.
		select {
		case <-m.fixes:
		default:
		}
		select {
		case m.fixes <- fix:
		default:
		}
	}
}
