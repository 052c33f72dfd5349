package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor KEYMUX_CONFIG is set.
const DefaultPath = "configs/config.yaml"

// DefaultKeymapPath is the keymap read when keymap.file is not set.
const DefaultKeymapPath = "/etc/keymux/keymap.yaml"

// Config is the root configuration structure for keymux.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Devices   DevicesConfig   `yaml:"devices"`
	Keymap    KeymapConfig    `yaml:"keymap"`
	Output    OutputConfig    `yaml:"output"`
	Sound     SoundConfig     `yaml:"sound"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
}

// DevicesConfig selects which input devices are captured.
type DevicesConfig struct {
	// RootDir is scanned for event nodes when Paths is empty.
	RootDir string `yaml:"root_dir"`

	// Paths restricts capture to these nodes. Hot-plug notifications for
	// other nodes are ignored.
	Paths []string `yaml:"paths"`

	// Watch enables hot-plug discovery.
	Watch bool `yaml:"watch"`

	OpenRetry OpenRetryConfig `yaml:"open_retry"`
}

// OpenRetryConfig bounds the retry of device opens that fail with a
// permission error while udev rules are still being applied.
type OpenRetryConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// KeymapConfig locates the keymap file. The file must exist: keymux never
// captures devices without one.
type KeymapConfig struct {
	File string `yaml:"file"`
}

// OutputConfig describes the virtual output device.
type OutputConfig struct {
	Name    string `yaml:"name"`
	Vendor  uint16 `yaml:"vendor"`
	Product uint16 `yaml:"product"`
}

// SoundConfig contains audible feedback settings.
type SoundConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AssetsDir string `yaml:"assets_dir"`

	// SampleRate is the speaker rate in Hz; assets are resampled to it.
	SampleRate int `yaml:"sample_rate"`

	// BufferMS is the speaker buffer length in milliseconds.
	BufferMS int `yaml:"buffer_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// DatabaseConfig contains SQLite settings for the device session history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// TelemetryConfig controls the periodic per-device event summary.
type TelemetryConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values
//  2. YAML file values
//  3. Environment variables (KEYMUX_SECTION_KEY)
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOptional behaves like Load, except that a missing file yields the
// defaults. Use it for the implicit default path only; a path the user
// named explicitly must exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(Default())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for a single keyboard.
func Default() *Config {
	return &Config{
		Devices: DevicesConfig{
			RootDir: "/dev/input",
			OpenRetry: OpenRetryConfig{
				BaseDelay:   10 * time.Millisecond,
				MaxAttempts: 6,
			},
		},
		Keymap: KeymapConfig{
			File: DefaultKeymapPath,
		},
		Output: OutputConfig{
			Name:    "keymux virtual keyboard",
			Vendor:  0x1209,
			Product: 0x6b6d,
		},
		Sound: SoundConfig{
			AssetsDir:  "/usr/share/keymux/sounds",
			SampleRate: 44100,
			BufferMS:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Database: DatabaseConfig{
			Path:        "/var/lib/keymux/keymux.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "keymux",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "keymux",
			Bucket:        "keymux",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Telemetry: TelemetryConfig{
			Interval: 60,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9324,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KEYMUX_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Devices
	if v := os.Getenv("KEYMUX_DEVICES_ROOT_DIR"); v != "" {
		cfg.Devices.RootDir = v
	}
	if v := os.Getenv("KEYMUX_DEVICES_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KEYMUX_DEVICES_WATCH: %w", err)
		}
		cfg.Devices.Watch = b
	}

	if v := os.Getenv("KEYMUX_KEYMAP_FILE"); v != "" {
		cfg.Keymap.File = v
	}
	if v := os.Getenv("KEYMUX_SOUND_ASSETS_DIR"); v != "" {
		cfg.Sound.AssetsDir = v
	}
	if v := os.Getenv("KEYMUX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KEYMUX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("KEYMUX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KEYMUX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KEYMUX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("KEYMUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("KEYMUX_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	return nil
}

// Validate checks the configuration for errors. Disabled sections are not
// checked.
func (c *Config) Validate() error {
	var errs []string

	if c.Devices.RootDir == "" && len(c.Devices.Paths) == 0 {
		errs = append(errs, "devices.root_dir is required when devices.paths is empty")
	}
	if c.Devices.OpenRetry.MaxAttempts < 1 {
		errs = append(errs, "devices.open_retry.max_attempts must be at least 1")
	}
	if c.Devices.OpenRetry.BaseDelay < 0 {
		errs = append(errs, "devices.open_retry.base_delay must not be negative")
	}

	if strings.TrimSpace(c.Keymap.File) == "" {
		errs = append(errs, "keymap.file is required")
	}

	if c.Output.Name == "" {
		errs = append(errs, "output.name is required")
	}

	if c.Sound.Enabled {
		if c.Sound.AssetsDir == "" {
			errs = append(errs, "sound.assets_dir is required when sound is enabled")
		}
		if c.Sound.SampleRate < 1 || c.Sound.BufferMS < 1 {
			errs = append(errs, "sound.sample_rate and sound.buffer_ms must be positive")
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required")
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Interval < 1 {
			errs = append(errs, "telemetry.interval must be at least 1 second")
		}
		if !c.InfluxDB.Enabled {
			errs = append(errs, "telemetry requires influxdb.enabled")
		}
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

// GetSoundBuffer returns the speaker buffer length as a Duration.
func (c *Config) GetSoundBuffer() time.Duration {
	return time.Duration(c.Sound.BufferMS) * time.Millisecond
}

// GetTelemetryInterval returns the telemetry interval as a Duration.
func (c *Config) GetTelemetryInterval() time.Duration {
	return time.Duration(c.Telemetry.Interval) * time.Second
}
