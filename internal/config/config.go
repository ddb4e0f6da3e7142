// Package config loads the daemon configuration file.
//
// The file is YAML. Scheduler-facing values (device count, max duration,
// channel list location) are read once at startup; changing them requires a
// restart. Only the logging block is hot-reloadable (see Watcher).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// EnvVar overrides the configuration file path when set.
const EnvVar = "MAGNETO_CONFIG"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Recorder RecorderConfig `yaml:"recorder"`
	Web      WebConfig      `yaml:"web"`
	Storage  StorageConfig  `yaml:"storage"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LogConfig struct {
	Level   string        `yaml:"level"`
	Console bool          `yaml:"console"`
	File    LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type RecorderConfig struct {
	// Devices is the number of DVB adapters available for capture.
	Devices int `yaml:"devices"`
	// MaxDuration caps end-start for a single recording.
	MaxDuration Duration `yaml:"max_duration"`
	// Grace is how long past the scheduled end a capture process may keep
	// running before it is killed and the job marked failed.
	Grace        Duration `yaml:"grace"`
	OutputDir    string   `yaml:"output_dir"`
	ChannelsConf string   `yaml:"channels_conf"`
	// CaptureCommand is the capture binary (gnutv-compatible flags).
	CaptureCommand string `yaml:"capture_command"`
	// PoweroffCommand, when non-empty, replaces the logind D-Bus call used
	// for the shutdown post-action. Intended for tests and exotic hosts.
	PoweroffCommand string `yaml:"poweroff_command"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
	// RequestsPerMinute rate-limits scheduling submissions. 0 disables.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "none"/empty (disabled).
	Driver      string   `yaml:"driver"`
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
	// Retention bounds how long finished recordings stay in history.
	Retention Duration `yaml:"retention"`
}

type JanitorConfig struct {
	// Schedule is a cron spec or descriptor ("@daily") for the retention sweep.
	Schedule string `yaml:"schedule"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// Duration is a time.Duration that unmarshals from Go duration strings
// ("30s", "2h45m") or bare integers (seconds, for config.ini refugees).
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", node.Kind)
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs < 0 {
			return fmt.Errorf("duration must be >= 0, got %q", raw)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0, got %q", raw)
	}
	*d = Duration(v)
	return nil
}

// Path resolves the effective config file path, honoring EnvVar.
func Path(flagPath string) string {
	if env := strings.TrimSpace(os.Getenv(EnvVar)); env != "" {
		return env
	}
	return flagPath
}

// Load reads, strictly decodes, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if !c.Log.Console && !c.Log.File.Enabled {
		c.Log.Console = true
	}
	if c.Recorder.Devices <= 0 {
		c.Recorder.Devices = 1
	}
	if c.Recorder.MaxDuration <= 0 {
		c.Recorder.MaxDuration = Duration(4 * time.Hour)
	}
	if c.Recorder.Grace <= 0 {
		c.Recorder.Grace = Duration(30 * time.Second)
	}
	if strings.TrimSpace(c.Recorder.OutputDir) == "" {
		c.Recorder.OutputDir = "."
	}
	if strings.TrimSpace(c.Recorder.ChannelsConf) == "" {
		c.Recorder.ChannelsConf = "/etc/channels.conf"
	}
	if strings.TrimSpace(c.Recorder.CaptureCommand) == "" {
		c.Recorder.CaptureCommand = "/usr/bin/gnutv"
	}
	if strings.TrimSpace(c.Web.Listen) == "" {
		c.Web.Listen = ":8080"
	}
	if strings.TrimSpace(c.Janitor.Schedule) == "" {
		c.Janitor.Schedule = "@daily"
	}
	if c.Storage.Retention <= 0 {
		c.Storage.Retention = Duration(90 * 24 * time.Hour)
	}
}

func (c *Config) validate() error {
	if c.Recorder.Devices < 1 {
		return errors.New("recorder.devices must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.enabled requires telegram.token")
	}
	if c.Telegram.Enabled && c.Telegram.ChatID == 0 {
		return errors.New("telegram.enabled requires telegram.chat_id")
	}
	return nil
}
