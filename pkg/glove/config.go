package glove

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const DefaultConfigFile = "glove.json"

// Handoff policies between the serial reader and the tick loop.
const (
	HandoffLatest = "latest"
	HandoffQueue  = "queue"
)

// Config holds the glove session configuration
type Config struct {
	Port          string `json:"port"`
	BaudRate      int    `json:"baud_rate,omitempty"`
	ReadTimeoutMs int    `json:"read_timeout_ms,omitempty"`
	Handoff       string `json:"handoff,omitempty"`

	// RequireCalibration suppresses mapping until Calibrate is called.
	// When false the baseline starts at zero and mapping is immediate.
	RequireCalibration    bool `json:"require_calibration"`
	LegacyWristDifference bool `json:"legacy_wrist_difference,omitempty"`
	AutoCalibrateAfterMs  int  `json:"auto_calibrate_after_ms,omitempty"`

	// Profile names a preset applied to every finger, Fingers overrides it.
	Profile string                 `json:"profile,omitempty"`
	Fingers map[FingerName]Profile `json:"fingers,omitempty"`

	Hz            int     `json:"hz,omitempty"`
	LogIntervalMs int     `json:"log_interval_ms,omitempty"`
	ReportGain    float64 `json:"report_gain,omitempty"`
	History       bool    `json:"history,omitempty"`
	CaptureFile   string  `json:"capture_file,omitempty"`
	HistoryFile   string  `json:"history_file,omitempty"`
	JoinTimeoutMs int     `json:"join_timeout_ms,omitempty"`

	WebSocketAddr string       `json:"websocket_addr,omitempty"`
	MQTT          *MQTTConfig  `json:"mqtt,omitempty"`
	Servo         *ServoConfig `json:"servo,omitempty"`
}

// MQTTConfig enables publishing pose snapshots to a broker.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id,omitempty"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	c := &Config{RequireCalibration: true}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.ReadTimeoutMs == 0 {
		c.ReadTimeoutMs = 100
	}
	if c.Handoff == "" {
		c.Handoff = HandoffLatest
	}
	if c.Profile == "" {
		c.Profile = DefaultPreset
	}
	if c.Hz == 0 {
		c.Hz = 60
	}
	if c.LogIntervalMs == 0 {
		c.LogIntervalMs = 1000
	}
	if c.ReportGain == 0 {
		c.ReportGain = 1
	}
	if c.CaptureFile == "" {
		c.CaptureFile = "captures.txt"
	}
	if c.HistoryFile == "" {
		c.HistoryFile = "history.txt"
	}
	if c.JoinTimeoutMs == 0 {
		c.JoinTimeoutMs = 200
	}
	if c.MQTT != nil && c.MQTT.Topic == "" {
		c.MQTT.Topic = "glove/pose"
	}
	if c.Servo != nil && c.Servo.BaudRate == 0 {
		c.Servo.BaudRate = 1_000_000
	}
}

// Validate checks values that defaults cannot fix.
func (c *Config) Validate() error {
	if c.Handoff != HandoffLatest && c.Handoff != HandoffQueue {
		return fmt.Errorf("handoff must be %q or %q, got %q", HandoffLatest, HandoffQueue, c.Handoff)
	}
	if _, err := Preset(c.Profile); err != nil {
		return err
	}
	for name := range c.Fingers {
		if FingerIndex(name) < 0 {
			return fmt.Errorf("unknown finger %q in fingers", name)
		}
	}
	if c.Hz < 0 || c.ReadTimeoutMs < 0 || c.LogIntervalMs < 0 || c.JoinTimeoutMs < 0 {
		return fmt.Errorf("rates and timeouts must be positive")
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is set")
	}
	if c.Servo != nil {
		if c.Servo.Port == "" {
			return fmt.Errorf("servo.port is required when servo is set")
		}
		for name, ch := range c.Servo.Fingers {
			if FingerIndex(name) < 0 {
				return fmt.Errorf("unknown finger %q in servo.fingers", name)
			}
			if ch.MaxDegrees <= 0 {
				return fmt.Errorf("servo.fingers.%s.max_degrees must be > 0", name)
			}
		}
	}
	return nil
}

// Profiles resolves the per-finger sensitivity profiles in sensor order.
func (c *Config) Profiles() ([NumFingers]Profile, error) {
	var out [NumFingers]Profile
	base, err := Preset(c.Profile)
	if err != nil {
		return out, err
	}
	for i, name := range AllFingers() {
		out[i] = base
		if p, ok := c.Fingers[name]; ok && !p.IsZero() {
			out[i] = p
		}
	}
	return out, nil
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

func (c *Config) LogInterval() time.Duration {
	return time.Duration(c.LogIntervalMs) * time.Millisecond
}

func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.JoinTimeoutMs) * time.Millisecond
}

func (c *Config) AutoCalibrateAfter() time.Duration {
	return time.Duration(c.AutoCalibrateAfterMs) * time.Millisecond
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Config{RequireCalibration: true}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
