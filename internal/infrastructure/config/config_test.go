package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  id: "test-server"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
presence:
  interval: 30
  max_failures: 5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ID != "test-server" {
		t.Errorf("Server.ID = %q, want %q", cfg.Server.ID, "test-server")
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}

	if cfg.Presence.MaxFailures != 5 {
		t.Errorf("Presence.MaxFailures = %d, want 5", cfg.Presence.MaxFailures)
	}

	// Unspecified sections keep their defaults.
	if cfg.Ingest.Workers != 10 {
		t.Errorf("Ingest.Workers = %d, want default 10", cfg.Ingest.Workers)
	}
	if cfg.Alerting.CooldownSeconds != 300 {
		t.Errorf("Alerting.CooldownSeconds = %d, want default 300", cfg.Alerting.CooldownSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
server:
  id: ""
database:
  path: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
server:
  id: "file-server"
mqtt:
  broker:
    host: "file-host"
`)

	t.Setenv("AQUASENTINEL_MQTT_HOST", "env-host")
	t.Setenv("AQUASENTINEL_MQTT_PORT", "8883")
	t.Setenv("AQUASENTINEL_INFLUXDB_TOKEN", "env-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-host" {
		t.Errorf("MQTT.Broker.Host = %q, want env override %q", cfg.MQTT.Broker.Host, "env-host")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want env override 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.InfluxDB.Token != "env-token" {
		t.Errorf("InfluxDB.Token = %q, want env override %q", cfg.InfluxDB.Token, "env-token")
	}
	// File value untouched by unrelated overrides.
	if cfg.Server.ID != "file-server" {
		t.Errorf("Server.ID = %q, want %q", cfg.Server.ID, "file-server")
	}
}

func TestValidate_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		band    ThresholdBand
		wantErr bool
	}{
		{
			name:    "warning inside critical",
			band:    ThresholdBand{WarningMin: 6.5, WarningMax: 8.5, CriticalMin: 6.0, CriticalMax: 9.0},
			wantErr: false,
		},
		{
			name:    "warning min below critical min",
			band:    ThresholdBand{WarningMin: 5.0, WarningMax: 8.5, CriticalMin: 6.0, CriticalMax: 9.0},
			wantErr: true,
		},
		{
			name:    "warning max above critical max",
			band:    ThresholdBand{WarningMin: 6.5, WarningMax: 9.5, CriticalMin: 6.0, CriticalMax: 9.0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Alerting.Thresholds = map[string]ThresholdBand{"ph": tt.band}

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_IngestWorkers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		wantErr bool
	}{
		{name: "worker pool", workers: 10, wantErr: false},
		{name: "zero selects inline mode", workers: 0, wantErr: false},
		{name: "negative rejected", workers: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Ingest.Workers = tt.workers

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultThresholds(t *testing.T) {
	bands := DefaultThresholds()

	for _, param := range []string{"ph", "turbidity", "tds", "temperature"} {
		if _, ok := bands[param]; !ok {
			t.Errorf("DefaultThresholds() missing %q", param)
		}
	}

	ph := bands["ph"]
	if ph.CriticalMin != 6.0 || ph.CriticalMax != 9.0 {
		t.Errorf("ph critical band = [%v, %v], want [6, 9]", ph.CriticalMin, ph.CriticalMax)
	}
}
