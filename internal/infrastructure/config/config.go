package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for fanlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fan      FanConfig      `yaml:"fan"`
	Serial   SerialConfig   `yaml:"serial"`
	Transmit TransmitConfig `yaml:"transmit"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// FanConfig describes the fan accessory and its state reconciliation policy.
type FanConfig struct {
	// ID identifies this fan in MQTT topics and telemetry.
	ID string `yaml:"id"`

	// Name is the human-readable accessory name.
	Name string `yaml:"name"`

	// CatalogPath is the path to the IR signal catalog file (JSON).
	CatalogPath string `yaml:"catalog_path"`

	// DebounceMs is the per-property settle window in milliseconds.
	// A burst of writes to the same property within this window collapses
	// into a single transmission decision using the last value.
	DebounceMs int `yaml:"debounce_ms"`

	// Thresholds select which speed band signal is sent for a 0-100 speed.
	Thresholds ThresholdConfig `yaml:"thresholds"`

	// Signals names the catalog entries used by the reconciler.
	Signals SignalNamesConfig `yaml:"signals"`
}

// ThresholdConfig holds the speed band boundaries.
// speed < Medium selects the low band, speed < High the medium band,
// anything else the high band.
type ThresholdConfig struct {
	Medium int `yaml:"medium"`
	High   int `yaml:"high"`
}

// SignalNamesConfig maps reconciler outcomes to catalog signal names.
type SignalNamesConfig struct {
	Off  string `yaml:"off"`
	Low  string `yaml:"low"`
	Med  string `yaml:"med"`
	High string `yaml:"high"`
}

// SerialConfig contains settings for the serial-attached IR transmitter.
type SerialConfig struct {
	// Device is the serial device path (e.g., "/dev/ttyUSB0").
	Device string `yaml:"device"`

	// BaudRate is the line speed. The IR transmitter runs at 230400.
	BaudRate int `yaml:"baud_rate"`

	// ReconnectIntervalMs is the fixed period between reopen attempts once
	// the link is lost. The retry cadence is deliberately constant: the
	// device is either plugged back in or it is not, so backoff buys nothing.
	ReconnectIntervalMs int `yaml:"reconnect_interval_ms"`

	// ReadBufferSize is the size of the inbound drain buffer in bytes.
	ReadBufferSize int `yaml:"read_buffer_size"`
}

// TransmitConfig contains the chunked transmission policy.
type TransmitConfig struct {
	// ChunkSize is the maximum number of samples per wire command.
	// The device rejects commands carrying more than 64 durations.
	ChunkSize int `yaml:"chunk_size"`

	// Retries is the number of full-sequence attempts per signal.
	Retries int `yaml:"retries"`

	// InterChunkDelayMs is the pause after each chunk write+drain,
	// respecting the device ingestion rate.
	InterChunkDelayMs int `yaml:"inter_chunk_delay_ms"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// HealthIntervalSec is how often the bridge publishes health status.
	HealthIntervalSec int `yaml:"health_interval_sec"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	// PingIntervalSec is how often the server pings idle connections.
	PingIntervalSec int `yaml:"ping_interval_sec"`

	// PongTimeoutSec is how long to wait for a pong before dropping a client.
	PongTimeoutSec int `yaml:"pong_timeout_sec"`

	// MaxMessageSize is the maximum inbound message size in bytes.
	MaxMessageSize int `yaml:"max_message_size"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FANLINK_SECTION_KEY
// For example: FANLINK_SERIAL_DEVICE, FANLINK_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Fan: FanConfig{
			ID:          "fan-001",
			Name:        "Ceiling Fan",
			CatalogPath: "./configs/signals.json",
			DebounceMs:  300,
			Thresholds: ThresholdConfig{
				Medium: 33,
				High:   66,
			},
			Signals: SignalNamesConfig{
				Off:  "power_off",
				Low:  "speed_low",
				Med:  "speed_med",
				High: "speed_high",
			},
		},
		Serial: SerialConfig{
			Device:              "/dev/ttyUSB0",
			BaudRate:            230400,
			ReconnectIntervalMs: 5000,
			ReadBufferSize:      1024,
		},
		Transmit: TransmitConfig{
			ChunkSize:         64,
			Retries:           3,
			InterChunkDelayMs: 100,
		},
		Database: DatabaseConfig{
			Path:        "./data/fanlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fanlink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthIntervalSec: 30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8093,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				PingIntervalSec: 30,
				PongTimeoutSec:  10,
				MaxMessageSize:  4096,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FANLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("FANLINK_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("FANLINK_SERIAL_BAUD_RATE"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.BaudRate = baud
		}
	}

	// Fan
	if v := os.Getenv("FANLINK_FAN_CATALOG_PATH"); v != "" {
		cfg.Fan.CatalogPath = v
	}

	// Database
	if v := os.Getenv("FANLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FANLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FANLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FANLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FANLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Fan.ID == "" {
		errs = append(errs, "fan.id is required")
	}
	if c.Fan.CatalogPath == "" {
		errs = append(errs, "fan.catalog_path is required")
	}
	if c.Fan.DebounceMs <= 0 {
		errs = append(errs, "fan.debounce_ms must be positive")
	}
	if c.Fan.Thresholds.Medium <= 0 ||
		c.Fan.Thresholds.Medium >= c.Fan.Thresholds.High ||
		c.Fan.Thresholds.High > 100 {
		errs = append(errs, "fan.thresholds must satisfy 0 < medium < high <= 100")
	}
	if c.Fan.Signals.Off == "" || c.Fan.Signals.Low == "" ||
		c.Fan.Signals.Med == "" || c.Fan.Signals.High == "" {
		errs = append(errs, "fan.signals requires off, low, med, and high names")
	}

	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.ReconnectIntervalMs <= 0 {
		errs = append(errs, "serial.reconnect_interval_ms must be positive")
	}

	if c.Transmit.ChunkSize <= 0 {
		errs = append(errs, "transmit.chunk_size must be positive")
	}
	if c.Transmit.Retries <= 0 {
		errs = append(errs, "transmit.retries must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Debounce returns the per-property settle window as a Duration.
func (c *FanConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ReconnectInterval returns the fixed reopen period as a Duration.
func (c *SerialConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMs) * time.Millisecond
}

// InterChunkDelay returns the pause between chunk writes as a Duration.
func (c *TransmitConfig) InterChunkDelay() time.Duration {
	return time.Duration(c.InterChunkDelayMs) * time.Millisecond
}

// HealthInterval returns the bridge health publish period as a Duration.
func (c *MQTTConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSec) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PingInterval returns the WebSocket ping cadence as a Duration.
func (c *WebSocketConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

// PongTimeout returns the WebSocket pong deadline as a Duration.
func (c *WebSocketConfig) PongTimeout() time.Duration {
	return time.Duration(c.PongTimeoutSec) * time.Second
}
