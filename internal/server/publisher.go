package server

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shaunagostinho/goradar/internal/nav"
)

// Publisher mirrors navigation snapshots to an MQTT topic, retained, so a
// late subscriber sees the current state at once.
type Publisher struct {
	client mqtt.Client
	topic  string
	minGap time.Duration
	send   func(nav.State)

	mu      sync.Mutex
	last    time.Time
	pending *nav.State
	timer   *time.Timer
}

// NewPublisher connects to the broker in cfg. It returns nil, nil when no
// state topic is configured.
func NewPublisher(cfg MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" || cfg.StateTopic == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + "-state").
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("[mqtt] publishing state to %s on %s", cfg.StateTopic, cfg.Broker)
	p := &Publisher{client: client, topic: cfg.StateTopic, minGap: 200 * time.Millisecond}
	p.send = p.publish
	return p, nil
}

// Publish sends st without waiting for the broker. It is registered with
// Session.OnUpdate and so runs on the session goroutine. Fix updates closer
// than minGap are held back and the latest one goes out when the gap ends,
// so the retained message never lags the final state.
func (p *Publisher) Publish(st nav.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.due(st) {
		p.pending = &st
		if p.timer == nil {
			p.timer = time.AfterFunc(p.minGap-time.Since(p.last), p.flush)
		}
		return
	}
	p.pending = nil
	p.send(st)
}

func (p *Publisher) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timer = nil
	if p.pending == nil {
		return
	}
	st := *p.pending
	p.pending = nil
	p.last = time.Now()
	p.send(st)
}

// due reports whether st may go out now. Callers hold p.mu.
func (p *Publisher) due(st nav.State) bool {
	now := time.Now()
	if st.LastFix != nil && now.Sub(p.last) < p.minGap {
		return false
	}
	p.last = now
	return true
}

func (p *Publisher) publish(st nav.State) {
	payload, err := json.Marshal(st)
	if err != nil {
		log.Printf("[mqtt] marshal state: %v", err)
		return
	}
	p.client.Publish(p.topic, 0, true, payload)
}

// Close stops any held update and disconnects from the broker.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = nil
	p.mu.Unlock()
	p.client.Disconnect(250)
}
