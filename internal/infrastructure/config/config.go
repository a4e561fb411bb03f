package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the INDI bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	INDI      INDIConfig      `yaml:"indi"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// INDIConfig contains the indiserver connection settings.
type INDIConfig struct {
	// Server is the indiserver address: "tcp://host:port", "unix:///path"
	// or a bare "host[:port]".
	Server string `yaml:"server"`

	// ConnectTimeout bounds the initial dial (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// WriteTimeout bounds each request written to the server (seconds).
	WriteTimeout int `yaml:"write_timeout"`

	// Devices restricts getProperties to these devices. Empty asks for all.
	Devices []string `yaml:"devices"`

	// BLOBMode is sent with enableBLOB for each configured device:
	// "Never", "Also" or "Only". Empty sends nothing.
	BLOBMode string `yaml:"blob_mode"`

	// ServerProcess optionally runs indiserver as a supervised child.
	ServerProcess ServerProcessConfig `yaml:"server_process"`
}

// ServerProcessConfig contains settings for managing a local indiserver.
type ServerProcessConfig struct {
	// Enabled starts indiserver with the drivers below. If false, the
	// server is expected to be running already.
	Enabled bool `yaml:"enabled"`

	// Binary is the path to the indiserver executable.
	// Default: "indiserver"
	Binary string `yaml:"binary"`

	// Port is passed as -p. Default: 7624
	Port int `yaml:"port"`

	// Drivers are the driver executables to load, e.g. "indi_simulator_ccd".
	Drivers []string `yaml:"drivers"`

	// Verbose adds -v to the command line.
	Verbose bool `yaml:"verbose"`

	// RestartDelay is the time to wait before restarting (seconds).
	// Default: 5
	RestartDelay int `yaml:"restart_delay"`

	// MaxRestarts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestarts int `yaml:"max_restarts"`

	// HealthCheckInterval is how often the port is dialled to confirm the
	// server is accepting clients. Default: 30s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig controls the property value history kept in SQLite.
type HistoryConfig struct {
	Enabled            bool `yaml:"enabled"`
	RetentionDays      int  `yaml:"retention_days"`
	MaxRowsPerProperty int  `yaml:"max_rows_per_property"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`

	// Embedded runs an in-process broker for installs without one.
	// The client then connects to it over loopback.
	Embedded MQTTEmbeddedConfig `yaml:"embedded"`
}

// MQTTEmbeddedConfig controls the in-process MQTT broker.
type MQTTEmbeddedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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

// WebSocketConfig contains settings for the property change stream.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MCPConfig enables the Model Context Protocol tool server on stdio.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
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
// Environment variables follow the pattern: INDIBRIDGE_SECTION_KEY
// For example: INDIBRIDGE_INDI_SERVER, INDIBRIDGE_DATABASE_PATH
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

// Default returns the built-in configuration with environment overrides
// applied, for running without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		INDI: INDIConfig{
			Server:         "localhost:7624",
			ConnectTimeout: 10,
			WriteTimeout:   5,
			ServerProcess: ServerProcessConfig{
				Binary:              "indiserver",
				Port:                7624,
				RestartDelay:        5,
				MaxRestarts:         10,
				HealthCheckInterval: 30 * time.Second,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/indibridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:            true,
			RetentionDays:      30,
			MaxRowsPerProperty: 10000,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "indi-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "indi",
			Embedded: MQTTEmbeddedConfig{
				Address: ":1883",
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "indi",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INDIBRIDGE_INDI_SERVER"); v != "" {
		cfg.INDI.Server = v
	}
	if v := os.Getenv("INDIBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("INDIBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("INDIBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("INDIBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("INDIBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("INDIBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.INDI.Server == "" {
		errs = append(errs, "indi.server is required")
	}
	switch c.INDI.BLOBMode {
	case "", "Never", "Also", "Only":
	default:
		errs = append(errs, fmt.Sprintf("indi.blob_mode %q must be Never, Also or Only", c.INDI.BLOBMode))
	}
	if sp := c.INDI.ServerProcess; sp.Enabled {
		if sp.Binary == "" {
			errs = append(errs, "indi.server_process.binary is required when enabled")
		}
		if len(sp.Drivers) == 0 {
			errs = append(errs, "indi.server_process.drivers must list at least one driver")
		}
		if sp.Port < 1 || sp.Port > 65535 {
			errs = append(errs, "indi.server_process.port must be between 1 and 65535")
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.History.RetentionDays < 0 || c.History.MaxRowsPerProperty < 0 {
		errs = append(errs, "history limits must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if c.MQTT.Embedded.Enabled && c.MQTT.Embedded.Address == "" {
		errs = append(errs, "mqtt.embedded.address is required when enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
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

// HistoryRetention returns the history retention window. Zero disables pruning.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
