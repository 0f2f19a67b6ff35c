package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/goradar/internal/gauge"
	"github.com/shaunagostinho/goradar/internal/geocode"
	"github.com/shaunagostinho/goradar/internal/gps"
	"github.com/shaunagostinho/goradar/internal/nav"
)

// Config holds all gauge configuration.
type Config struct {
	mu sync.RWMutex

	// Location source
	GPS GPSConfig `yaml:"gps" json:"gps"`

	// Broker shared by the mqtt GPS source and the state publisher
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`

	// Filter, smoothing and heading tunables
	Navigation NavigationConfig `yaml:"navigation" json:"navigation"`

	// Display geometry and distance bands
	Gauge GaugeConfig `yaml:"gauge" json:"gauge"`

	// Address lookup for destinations
	Geocode geocode.Config `yaml:"geocode" json:"geocode"`

	// Logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type GPSConfig struct {
	Type     string         `yaml:"type" json:"type"`          // "nmea", "mqtt", "demo" or "disabled"
	PortPath string         `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyGPS
	BaudRate int            `yaml:"baud_rate" json:"baudRate"`
	UERE     float64        `yaml:"uere_m" json:"uereM"` // HDOP to meters
	PollHz   int            `yaml:"poll_hz" json:"pollHz"`
	Demo     gps.DemoConfig `yaml:"demo" json:"demo"`
}

type MQTTConfig struct {
	Broker     string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID   string `yaml:"client_id" json:"clientId"`
	FixTopic   string `yaml:"fix_topic" json:"fixTopic"`
	StateTopic string `yaml:"state_topic" json:"stateTopic"` // Empty disables publishing
}

type NavigationConfig struct {
	nav.Config `yaml:",inline"`
	QueueSize  int `yaml:"queue_size" json:"queueSize"` // Pending fixes before dropping
}

type GaugeConfig struct {
	gauge.Mapper `yaml:",inline"`
	BlinkMs      int `yaml:"blink_ms" json:"blinkMs"` // Target marker blink period
}

type LoggingConfig struct {
	File       string `yaml:"file" json:"file"` // Empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb" json:"maxSizeMb"`
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"maxAgeDays"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listenAddr"`
	BroadcastHz int    `yaml:"broadcast_hz" json:"broadcastHz"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GPS: GPSConfig{
			Type:     "demo",
			PortPath: "/dev/ttyGPS",
			BaudRate: 9600,
			UERE:     gps.DefaultUERE,
			PollHz:   10,
			Demo:     gps.DefaultDemoConfig(),
		},
		MQTT: MQTTConfig{
			ClientID: "goradar",
			FixTopic: "goradar/fix",
		},
		Navigation: NavigationConfig{
			Config:    nav.DefaultConfig(),
			QueueSize: 16,
		},
		Gauge: GaugeConfig{
			Mapper:  gauge.DefaultMapper(),
			BlinkMs: 500,
		},
		Geocode: geocode.Config{
			Enabled:   true,
			URL:       geocode.DefaultNominatimURL,
			CachePath: "/var/lib/goradar/geocode.db",
			CacheTTL:  30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  16,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			BroadcastHz: 10,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD.
	// Real env takes precedence.
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		if _, err := os.Stat(ep); err != nil {
			continue
		}
		if err := godotenv.Load(ep); err != nil {
			log.Printf("[config] error loading %s: %v", ep, err)
			continue
		}
		log.Printf("[config] loaded .env from %s", ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		log.Printf("[config] %v", err)
	}
	return cfg
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: GPS_TYPE, GPS_PORT, GPS_BAUD, LISTEN_ADDR, MQTT_BROKER,
// NAV_MAX_ACCURACY_M, NAV_MAX_JUMP_M, NAV_WINDOW, GEOCODE_URL, LOG_FILE
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GPS_TYPE"); v != "" {
		c.GPS.Type = v
	}
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.GPS.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GPS.BaudRate = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	// Navigation
	if v := os.Getenv("NAV_MAX_ACCURACY_M"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Navigation.Filter.MaxAccuracy = n
		}
	}
	if v := os.Getenv("NAV_MAX_JUMP_M"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Navigation.Filter.MaxJump = n
		}
	}
	if v := os.Getenv("NAV_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Navigation.Window = n
		}
	}
	if v := os.Getenv("GEOCODE_URL"); v != "" {
		c.Geocode.URL = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate reports the first setting that would make the pipeline misbehave.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	switch c.GPS.Type {
	case "nmea", "mqtt", "demo", "disabled":
	default:
		return fmt.Errorf("config: unknown gps type %q", c.GPS.Type)
	}
	if c.GPS.Type == "mqtt" && c.MQTT.Broker == "" {
		return errors.New("config: gps type mqtt needs mqtt.broker")
	}

	f := c.Navigation.Filter
	if f.MaxAccuracy < 0 || f.MaxJump < 0 || f.RecoverAfter < 0 {
		return fmt.Errorf("config: navigation thresholds must not be negative (accuracy %v, jump %v, recover %d)",
			f.MaxAccuracy, f.MaxJump, f.RecoverAfter)
	}
	if c.Navigation.Window < 1 {
		return fmt.Errorf("config: navigation window must be at least 1, got %d", c.Navigation.Window)
	}
	h := c.Navigation.Heading
	if h.MinMove < 0 || h.MaxJump < 0 || h.Window < 0 {
		return errors.New("config: heading thresholds must not be negative")
	}
	if err := c.Gauge.Mapper.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Gauge.BlinkMs <= 0 {
		return fmt.Errorf("config: gauge blink period must be positive, got %d", c.Gauge.BlinkMs)
	}
	return nil
}

// Snapshot returns a detached copy for readers that must not hold the lock.
func (c *Config) Snapshot() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Config{
		GPS:        c.GPS,
		MQTT:       c.MQTT,
		Navigation: c.Navigation,
		Gauge:      c.Gauge,
		Geocode:    c.Geocode,
		Logging:    c.Logging,
		Server:     c.Server,
		path:       c.path,
	}
	out.Gauge.Mapper = c.Gauge.Mapper.Clone()
	return out
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/goradar/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port paths, baud rates, logging). An
// update that fails validation leaves the config untouched.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and unmarshal into a fresh config
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	next := &Config{}
	if err := json.Unmarshal(merged, next); err != nil {
		return fmt.Errorf("unmarshal merged config: %w", err)
	}
	if err := next.validate(); err != nil {
		return err
	}

	c.GPS = next.GPS
	c.MQTT = next.MQTT
	c.Navigation = next.Navigation
	c.Gauge = next.Gauge
	c.Geocode = next.Geocode
	c.Logging = next.Logging
	c.Server = next.Server
	return nil
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
