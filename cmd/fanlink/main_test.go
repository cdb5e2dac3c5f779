package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// writeTestConfig writes a config with MQTT and InfluxDB disabled so the
// daemon can start without external services.
func writeTestConfig(t *testing.T, catalogPath string, apiEnabled bool) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "fanlink.db")

	configContent := `
fan:
  id: test-fan
  name: Test Fan
  catalog_path: "` + catalogPath + `"
  debounce_ms: 50

serial:
  device: "/dev/nonexistent-test-port"
  baud_rate: 230400
  reconnect_interval_ms: 5000

transmit:
  chunk_size: 64
  retries: 3
  inter_chunk_delay_ms: 100

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  enabled: ` + strconv.FormatBool(apiEnabled) + `
  host: "127.0.0.1"
  port: 18093
  timeouts:
    read: 30
    write: 30
    idle: 60

logging:
  level: error
  format: text
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// writeTestCatalog writes a catalog carrying every signal the defaults need.
func writeTestCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.json")
	data := `{
		"signals": {
			"power_off":  {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 560]},
			"speed_low":  {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 1690]},
			"speed_med":  {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 560, 560]},
			"speed_high": {"frequency": 38000, "duty_cycle": 33, "samples": [9000, 4500, 1690, 560]}
		}
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write test catalog: %v", err)
	}
	return path
}

func setConfigEnv(t *testing.T, path string) {
	t.Helper()
	original := os.Getenv("FANLINK_CONFIG")
	t.Cleanup(func() { os.Setenv("FANLINK_CONFIG", original) })
	os.Setenv("FANLINK_CONFIG", path)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	setConfigEnv(t, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingCatalog verifies run fails when the signal catalog is absent.
func TestRun_MissingCatalog(t *testing.T) {
	configPath := writeTestConfig(t, "/nonexistent/signals.json", false)
	setConfigEnv(t, configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with missing signal catalog")
	}
}

// TestRun_StartupAndShutdownWithoutHardware verifies the daemon starts with
// no transmitter attached and no external services, then shuts down cleanly.
func TestRun_StartupAndShutdownWithoutHardware(t *testing.T) {
	configPath := writeTestConfig(t, writeTestCatalog(t), true)
	setConfigEnv(t, configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	original := os.Getenv("FANLINK_CONFIG")
	defer os.Setenv("FANLINK_CONFIG", original)

	os.Unsetenv("FANLINK_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	setConfigEnv(t, expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
