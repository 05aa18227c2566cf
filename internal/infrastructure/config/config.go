package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for AquaSentinel Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Presence PresenceConfig `yaml:"presence"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Alerting AlertingConfig `yaml:"alerting"`
	Commands CommandConfig  `yaml:"commands"`
	Ops      OpsConfig      `yaml:"ops"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig identifies this Core instance.
// The ID is embedded in presence queries so devices can distinguish
// between multiple servers sharing a broker.
type ServerConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor readings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// PresenceConfig contains presence poller settings.
type PresenceConfig struct {
	// Interval is the time between poll cycles (seconds).
	Interval int `yaml:"interval"`

	// PerDeviceMs scales the response-collection timeout with fleet size.
	PerDeviceMs int `yaml:"per_device_ms"`

	// MinTimeoutMs / MaxTimeoutMs bound the adaptive collection timeout.
	MinTimeoutMs int `yaml:"min_timeout_ms"`
	MaxTimeoutMs int `yaml:"max_timeout_ms"`

	// MaxFailures is the consecutive-failure count that opens the circuit breaker.
	MaxFailures int `yaml:"max_failures"`

	// BackoffBase is the initial breaker backoff window (seconds).
	// The window doubles per failure beyond MaxFailures, capped at BackoffMax.
	BackoffBase int `yaml:"backoff_base"`
	BackoffMax  int `yaml:"backoff_max"`
}

// IngestConfig contains sensor ingestion queue settings.
type IngestConfig struct {
	// Workers is the consumer pool size.
	Workers int `yaml:"workers"`

	// BufferSize is the queue capacity before enqueue falls back to
	// synchronous inline processing.
	BufferSize int `yaml:"buffer_size"`

	// MaxRetries bounds per-job retry attempts before dead-lettering.
	MaxRetries int `yaml:"max_retries"`

	// RetryInitialMs is the initial retry backoff delay.
	RetryInitialMs int `yaml:"retry_initial_ms"`

	// RatePerSecond and Burst configure the global processing rate limit.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// AlertingConfig contains alert evaluation settings.
type AlertingConfig struct {
	// CooldownSeconds is the window during which repeated breaches of the
	// same (device, parameter) update the existing alert instead of
	// creating a new one.
	CooldownSeconds int `yaml:"cooldown_seconds"`

	// Thresholds maps parameter names to their warning/critical bands.
	Thresholds map[string]ThresholdBand `yaml:"thresholds"`
}

// ThresholdBand defines acceptable ranges for a single parameter.
// A value outside [CriticalMin, CriticalMax] is critical; a value outside
// [WarningMin, WarningMax] but inside the critical band is a warning.
type ThresholdBand struct {
	WarningMin  float64 `yaml:"warning_min"`
	WarningMax  float64 `yaml:"warning_max"`
	CriticalMin float64 `yaml:"critical_min"`
	CriticalMax float64 `yaml:"critical_max"`
}

// CommandConfig contains command dispatch settings.
type CommandConfig struct {
	// RetentionHours bounds how long commands queued for offline devices are kept.
	RetentionHours int `yaml:"retention_hours"`

	// DrainDelayMs is the pause between commands when draining a device's queue.
	DrainDelayMs int `yaml:"drain_delay_ms"`
}

// OpsConfig contains the operational HTTP server settings (health, metrics).
type OpsConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts OpsTimeoutConfig `yaml:"timeouts"`
}

// OpsTimeoutConfig contains HTTP timeout settings (seconds).
type OpsTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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
// Environment variables follow the pattern: AQUASENTINEL_SECTION_KEY
// For example: AQUASENTINEL_DATABASE_PATH, AQUASENTINEL_MQTT_HOST
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
		Server: ServerConfig{
			ID:   "aquasentinel-01",
			Name: "AquaSentinel",
		},
		Database: DatabaseConfig{
			Path:        "./data/aquasentinel.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "aquasentinel-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "aquasentinel",
			Bucket:        "readings",
			BatchSize:     100,
			FlushInterval: 5,
		},
		Presence: PresenceConfig{
			Interval:     60,
			PerDeviceMs:  200,
			MinTimeoutMs: 2000,
			MaxTimeoutMs: 15000,
			MaxFailures:  3,
			BackoffBase:  30,
			BackoffMax:   600,
		},
		Ingest: IngestConfig{
			Workers:        10,
			BufferSize:     1000,
			MaxRetries:     3,
			RetryInitialMs: 250,
			RatePerSecond:  100,
			Burst:          200,
		},
		Alerting: AlertingConfig{
			CooldownSeconds: 300,
			Thresholds:      DefaultThresholds(),
		},
		Commands: CommandConfig{
			RetentionHours: 168,
			DrainDelayMs:   100,
		},
		Ops: OpsConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: OpsTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// DefaultThresholds returns the standard water-quality threshold bands.
//
// Values follow common drinking-water guidance: pH 6.5-8.5 acceptable
// (6.0-9.0 hard limits), turbidity below 5 NTU (10 NTU hard limit),
// TDS below 500 ppm (1000 ppm hard limit), temperature 5-30 °C
// (0-35 °C hard limits).
func DefaultThresholds() map[string]ThresholdBand {
	return map[string]ThresholdBand{
		"ph": {
			WarningMin: 6.5, WarningMax: 8.5,
			CriticalMin: 6.0, CriticalMax: 9.0,
		},
		"turbidity": {
			WarningMin: 0, WarningMax: 5,
			CriticalMin: 0, CriticalMax: 10,
		},
		"tds": {
			WarningMin: 0, WarningMax: 500,
			CriticalMin: 0, CriticalMax: 1000,
		},
		"temperature": {
			WarningMin: 5, WarningMax: 30,
			CriticalMin: 0, CriticalMax: 35,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AQUASENTINEL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("AQUASENTINEL_SERVER_ID"); v != "" {
		cfg.Server.ID = v
	}

	// Database
	if v := os.Getenv("AQUASENTINEL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AQUASENTINEL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AQUASENTINEL_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("AQUASENTINEL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AQUASENTINEL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AQUASENTINEL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Ops
	if v := os.Getenv("AQUASENTINEL_OPS_HOST"); v != "" {
		cfg.Ops.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.ID == "" {
		errs = append(errs, "server.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Ops.Port < 1 || c.Ops.Port > 65535 {
		errs = append(errs, "ops.port must be between 1 and 65535")
	}

	if c.Presence.MaxFailures < 1 {
		errs = append(errs, "presence.max_failures must be at least 1")
	}
	if c.Presence.MinTimeoutMs > c.Presence.MaxTimeoutMs {
		errs = append(errs, "presence.min_timeout_ms must not exceed presence.max_timeout_ms")
	}

	// Worker count 0 selects synchronous inline ingestion.
	if c.Ingest.Workers < 0 {
		errs = append(errs, "ingest.workers must not be negative")
	}
	if c.Ingest.RatePerSecond <= 0 {
		errs = append(errs, "ingest.rate_per_second must be positive")
	}

	if c.Alerting.CooldownSeconds < 0 {
		errs = append(errs, "alerting.cooldown_seconds must not be negative")
	}
	for name, band := range c.Alerting.Thresholds {
		if band.WarningMin < band.CriticalMin || band.WarningMax > band.CriticalMax {
			errs = append(errs, fmt.Sprintf("alerting.thresholds.%s: warning band must sit inside critical band", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the presence poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Presence.Interval) * time.Second
}

// CommandRetention returns the pending-command retention as a Duration.
func (c *Config) CommandRetention() time.Duration {
	return time.Duration(c.Commands.RetentionHours) * time.Hour
}

// AlertCooldown returns the alert cooldown window as a Duration.
func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerting.CooldownSeconds) * time.Second
}

// GetReadTimeout returns the ops server read timeout as a Duration.
func (c OpsConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the ops server write timeout as a Duration.
func (c OpsConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the ops server idle timeout as a Duration.
func (c OpsConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
