package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FleetGlass Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Command   CommandConfig   `yaml:"command"`
	History   HistoryConfig   `yaml:"history"`
	Ledger    LedgerConfig    `yaml:"ledger"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// CommandConfig contains command dispatch settings.
type CommandConfig struct {
	// DefaultTimeout is the per-command acknowledgment timeout in seconds.
	DefaultTimeout int `yaml:"default_timeout"`

	// BatchMaxSize is the maximum number of devices in one batch operation.
	BatchMaxSize int `yaml:"batch_max_size"`

	// BatchGrace is the extra time in seconds a batch waits beyond the
	// per-command timeout before finalizing with partial results.
	BatchGrace int `yaml:"batch_grace"`
}

// HistoryConfig contains persistence sync and retention settings.
type HistoryConfig struct {
	// QueueSize bounds the snapshot queue between ingest and the writer.
	QueueSize int `yaml:"queue_size"`

	// RetentionDays is how long time-series rows are kept.
	RetentionDays int `yaml:"retention_days"`

	// RetentionInterval is how often the pruning job runs, in minutes.
	RetentionInterval int `yaml:"retention_interval"`

	// RegistryRefresh is how often the registered-device list is reloaded
	// from the durable store, in seconds.
	RegistryRefresh int `yaml:"registry_refresh"`
}

// LedgerConfig contains operation ledger settings.
type LedgerConfig struct {
	// TTLHours is how long operation records are retained.
	TTLHours int `yaml:"ttl_hours"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEETGLASS_SECTION_KEY
// For example: FLEETGLASS_DATABASE_PATH, FLEETGLASS_MQTT_HOST
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

// Default returns the built-in defaults without reading a file.
// Useful for tests and for first runs against a local broker.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/fleetglass.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetglass-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Command: CommandConfig{
			DefaultTimeout: 5,
			BatchMaxSize:   20,
			BatchGrace:     2,
		},
		History: HistoryConfig{
			QueueSize:         64,
			RetentionDays:     7,
			RetentionInterval: 60,
			RegistryRefresh:   60,
		},
		Ledger: LedgerConfig{
			TTLHours: 24,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLEETGLASS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEETGLASS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FLEETGLASS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETGLASS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETGLASS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FLEETGLASS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("FLEETGLASS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.Path != "" && !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}

	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
	}

	if c.Command.DefaultTimeout <= 0 {
		errs = append(errs, "command.default_timeout must be positive")
	}
	if c.Command.BatchMaxSize <= 0 {
		errs = append(errs, "command.batch_max_size must be positive")
	}

	if c.History.RetentionDays <= 0 {
		errs = append(errs, "history.retention_days must be positive")
	}
	if c.History.QueueSize <= 0 {
		errs = append(errs, "history.queue_size must be positive")
	}

	if c.Ledger.TTLHours <= 0 {
		errs = append(errs, "ledger.ttl_hours must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// CommandTimeout returns the per-command timeout as a Duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Command.DefaultTimeout) * time.Second
}

// BatchGracePeriod returns the batch finalization grace period as a Duration.
func (c *Config) BatchGracePeriod() time.Duration {
	return time.Duration(c.Command.BatchGrace) * time.Second
}

// RetentionHorizon returns the time-series retention horizon as a Duration.
func (c *Config) RetentionHorizon() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// RetentionInterval returns the pruning interval as a Duration.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.History.RetentionInterval) * time.Minute
}

// RegistryRefresh returns the registry reload interval as a Duration.
func (c *Config) RegistryRefresh() time.Duration {
	return time.Duration(c.History.RegistryRefresh) * time.Second
}

// LedgerTTL returns the operation ledger retention as a Duration.
func (c *Config) LedgerTTL() time.Duration {
	return time.Duration(c.Ledger.TTLHours) * time.Hour
}
