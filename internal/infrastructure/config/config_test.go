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
devices:
  paths:
    - /dev/input/event3
    - /dev/input/event7
  watch: true
  open_retry:
    base_delay: 25ms
    max_attempts: 4
keymap:
  file: /etc/keymux/keymap.yaml
output:
  name: "test keyboard"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
  qos: 0
api:
  enabled: true
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Devices.Paths) != 2 || cfg.Devices.Paths[1] != "/dev/input/event7" {
		t.Errorf("Devices.Paths = %v", cfg.Devices.Paths)
	}
	if !cfg.Devices.Watch {
		t.Error("Devices.Watch = false, want true")
	}
	if cfg.Devices.OpenRetry.BaseDelay != 25*time.Millisecond {
		t.Errorf("OpenRetry.BaseDelay = %v, want 25ms", cfg.Devices.OpenRetry.BaseDelay)
	}
	if cfg.Devices.OpenRetry.MaxAttempts != 4 {
		t.Errorf("OpenRetry.MaxAttempts = %d, want 4", cfg.Devices.OpenRetry.MaxAttempts)
	}
	if cfg.Keymap.File != "/etc/keymux/keymap.yaml" {
		t.Errorf("Keymap.File = %q", cfg.Keymap.File)
	}
	if cfg.Output.Name != "test keyboard" {
		t.Errorf("Output.Name = %q, want %q", cfg.Output.Name, "test keyboard")
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker = %+v", cfg.MQTT.Broker)
	}

	// Untouched sections keep their defaults.
	if cfg.Devices.RootDir != "/dev/input" {
		t.Errorf("Devices.RootDir = %q, want /dev/input", cfg.Devices.RootDir)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOptional() error = %v", err)
	}
	if cfg.Devices.OpenRetry.MaxAttempts != 6 {
		t.Errorf("OpenRetry.MaxAttempts = %d, want 6", cfg.Devices.OpenRetry.MaxAttempts)
	}
	// The keymap still has to exist; only the daemon settings are optional.
	if cfg.Keymap.File != DefaultKeymapPath {
		t.Errorf("Keymap.File = %q, want %q", cfg.Keymap.File, DefaultKeymapPath)
	}
}

func TestLoadOptional_InvalidFileStillFails(t *testing.T) {
	path := writeConfig(t, "devices: [oops")
	if _, err := LoadOptional(path); err == nil {
		t.Error("LoadOptional() expected parse error, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
devices:
  open_retry:
    max_attempts: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "max_attempts") {
		t.Errorf("Load() error = %v, want mention of max_attempts", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "explicit paths without root",
			mutate: func(c *Config) {
				c.Devices.RootDir = ""
				c.Devices.Paths = []string{"/dev/input/event0"}
			},
		},
		{
			name:    "no root and no paths",
			mutate:  func(c *Config) { c.Devices.RootDir = "" },
			wantErr: "devices.root_dir",
		},
		{
			name:    "negative base delay",
			mutate:  func(c *Config) { c.Devices.OpenRetry.BaseDelay = -time.Second },
			wantErr: "base_delay",
		},
		{
			name:    "empty output name",
			mutate:  func(c *Config) { c.Output.Name = "" },
			wantErr: "output.name",
		},
		{
			name:    "no keymap file",
			mutate:  func(c *Config) { c.Keymap.File = " " },
			wantErr: "keymap.file",
		},
		{
			name: "sound without sample rate",
			mutate: func(c *Config) {
				c.Sound.Enabled = true
				c.Sound.SampleRate = 0
			},
			wantErr: "sound.sample_rate",
		},
		{
			name: "disabled sound is not checked",
			mutate: func(c *Config) {
				c.Sound.AssetsDir = ""
				c.Sound.BufferMS = 0
			},
		},
		{
			name: "disabled mqtt is not checked",
			mutate: func(c *Config) {
				c.MQTT.QoS = 7
			},
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "database without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
		{
			name:    "telemetry without influxdb",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true },
			wantErr: "telemetry requires influxdb",
		},
		{
			name: "api port out of range",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Output.Name = ""
	cfg.Devices.OpenRetry.MaxAttempts = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if got := strings.Count(err.Error(), ";"); got != 1 {
		t.Errorf("Validate() error = %v, want two errors joined", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Telemetry: TelemetryConfig{Interval: 15},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := (&Config{Sound: SoundConfig{BufferMS: 80}}).GetSoundBuffer(); got != 80*time.Millisecond {
		t.Errorf("GetSoundBuffer() = %v, want 80ms", got)
	}
	if got := cfg.GetTelemetryInterval(); got != 15*time.Second {
		t.Errorf("GetTelemetryInterval() = %v, want 15s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("KEYMUX_DEVICES_ROOT_DIR", "/tmp/input")
	t.Setenv("KEYMUX_DEVICES_WATCH", "true")
	t.Setenv("KEYMUX_KEYMAP_FILE", "/tmp/keymap.yaml")
	t.Setenv("KEYMUX_DATABASE_PATH", "/custom/path.db")
	t.Setenv("KEYMUX_MQTT_HOST", "mqtt.example.com")
	t.Setenv("KEYMUX_MQTT_USERNAME", "testuser")
	t.Setenv("KEYMUX_MQTT_PASSWORD", "testpass")
	t.Setenv("KEYMUX_API_HOST", "192.168.1.1")
	t.Setenv("KEYMUX_INFLUXDB_TOKEN", "secret-token")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"Devices.RootDir", cfg.Devices.RootDir, "/tmp/input"},
		{"Keymap.File", cfg.Keymap.File, "/tmp/keymap.yaml"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if !cfg.Devices.Watch {
		t.Error("Devices.Watch = false, want true")
	}
}

func TestApplyEnvOverrides_InvalidBool(t *testing.T) {
	t.Setenv("KEYMUX_DEVICES_WATCH", "sometimes")
	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("applyEnvOverrides() expected error for invalid bool")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Devices.RootDir != "/dev/input" {
		t.Errorf("Devices.RootDir = %q, want /dev/input", cfg.Devices.RootDir)
	}
	if cfg.Devices.OpenRetry.BaseDelay != 10*time.Millisecond {
		t.Errorf("OpenRetry.BaseDelay = %v, want 10ms", cfg.Devices.OpenRetry.BaseDelay)
	}
	if cfg.Output.Name != "keymux virtual keyboard" {
		t.Errorf("Output.Name = %q", cfg.Output.Name)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}
