package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
indi:
  server: "tcp://observatory.local:7624"
  devices: ["CCD Simulator", "Telescope Simulator"]
  blob_mode: "Also"
  server_process:
    enabled: true
    drivers: ["indi_simulator_ccd", "indi_simulator_telescope"]
database:
  path: "/tmp/test.db"
history:
  retention_days: 7
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  topic_prefix: "observatory"
api:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.INDI.Server != "tcp://observatory.local:7624" {
		t.Errorf("INDI.Server = %q", cfg.INDI.Server)
	}
	if len(cfg.INDI.Devices) != 2 || cfg.INDI.BLOBMode != "Also" {
		t.Errorf("INDI devices/blob_mode = %v/%q", cfg.INDI.Devices, cfg.INDI.BLOBMode)
	}
	sp := cfg.INDI.ServerProcess
	if !sp.Enabled || len(sp.Drivers) != 2 {
		t.Errorf("ServerProcess = %+v", sp)
	}
	if sp.Binary != "indiserver" || sp.Port != 7624 {
		t.Errorf("ServerProcess defaults lost: binary=%q port=%d", sp.Binary, sp.Port)
	}
	if cfg.MQTT.TopicPrefix != "observatory" || cfg.MQTT.Broker.ClientID != "indi-bridge" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if got := cfg.HistoryRetention(); got != 7*24*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 168h", got)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.INDI.ServerProcess.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 30s", cfg.INDI.ServerProcess.HealthCheckInterval)
	}
	if len(cfg.INDI.ServerProcess.Drivers) != 2 {
		t.Errorf("Drivers = %v, want 2 entries", cfg.INDI.ServerProcess.Drivers)
	}
	if cfg.HistoryRetention() != 30*24*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 720h", cfg.HistoryRetention())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing server", mutate: func(c *Config) { c.INDI.Server = "" }, wantErr: "indi.server is required"},
		{name: "bad blob mode", mutate: func(c *Config) { c.INDI.BLOBMode = "always" }, wantErr: "indi.blob_mode"},
		{
			name:    "server process without drivers",
			mutate:  func(c *Config) { c.INDI.ServerProcess.Enabled = true },
			wantErr: "indi.server_process.drivers",
		},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path is required"},
		{name: "bad qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "empty topic prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "" }, wantErr: "mqtt.topic_prefix"},
		{
			name:    "embedded broker without address",
			mutate:  func(c *Config) { c.MQTT.Embedded = MQTTEmbeddedConfig{Enabled: true} },
			wantErr: "mqtt.embedded.address",
		},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "bad api port", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "api disabled ignores port", mutate: func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.INDI.Server = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("Validate() error = %q, want both failures joined", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INDIBRIDGE_INDI_SERVER", "unix:///run/indiserver")
	t.Setenv("INDIBRIDGE_DATABASE_PATH", "/var/lib/indibridge/state.db")
	t.Setenv("INDIBRIDGE_MQTT_HOST", "mqtt.example")
	t.Setenv("INDIBRIDGE_MQTT_USERNAME", "bridge")
	t.Setenv("INDIBRIDGE_MQTT_PASSWORD", "secret")
	t.Setenv("INDIBRIDGE_API_HOST", "127.0.0.1")
	t.Setenv("INDIBRIDGE_INFLUXDB_TOKEN", "token")

	path := writeConfig(t, `
indi:
  server: "localhost"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"INDI.Server", cfg.INDI.Server, "unix:///run/indiserver"},
		{"Database.Path", cfg.Database.Path, "/var/lib/indibridge/state.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "bridge"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "secret"},
		{"API.Host", cfg.API.Host, "127.0.0.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
