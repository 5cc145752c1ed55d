package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable consulted when no --config flag is
// given.
const EnvPath = "GPSMON_CONFIG"

// UI modes.
const (
	UITview = "tview"
	UIANSI  = "ansi"
)

// Config represents the complete monitor configuration
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Logging LoggingConfig `yaml:"logging"`
	PPS     PPSConfig     `yaml:"pps"`
	Capture CaptureConfig `yaml:"capture"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// MonitorConfig holds event loop and command timing.
type MonitorConfig struct {
	SettleMS      *int   `yaml:"settle_ms"`
	WaitTimeoutMS int    `yaml:"wait_timeout_ms"`
	UI            string `yaml:"ui"`
}

// LoggingConfig contains diagnostic logging settings
type LoggingConfig struct {
	File                string `yaml:"file"`
	DedupeWindowSeconds *int   `yaml:"dedupe_window_seconds"`
}

// PPSConfig names the kernel PPS device; empty disables the watcher.
type PPSConfig struct {
	Device string `yaml:"device"`
}

// CaptureConfig controls the SQLite packet capture.
type CaptureConfig struct {
	Path         string `yaml:"path"`
	PerTypeLimit int    `yaml:"per_type_limit"`
}

// MQTTConfig controls latch publishing; an empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

const (
	defaultSettleMS     = 50
	defaultWaitMS       = 2000
	defaultDedupeWindow = 10
	defaultPerTypeLimit = 1000
	defaultTopic        = "gpsmon/latch"
	defaultClientID     = "gpsmon"
)

var ErrInvalid = errors.New("invalid configuration")

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve loads the file named by flagPath, else by $GPSMON_CONFIG, else
// returns the defaults.
func Resolve(flagPath string) (*Config, string, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPath))
	}
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func (c *Config) applyDefaults() {
	if c.Monitor.SettleMS == nil {
		v := defaultSettleMS
		c.Monitor.SettleMS = &v
	}
	if c.Monitor.WaitTimeoutMS <= 0 {
		c.Monitor.WaitTimeoutMS = defaultWaitMS
	}
	c.Monitor.UI = strings.ToLower(strings.TrimSpace(c.Monitor.UI))
	if c.Monitor.UI == "" {
		c.Monitor.UI = UITview
	}
	if c.Logging.DedupeWindowSeconds == nil {
		v := defaultDedupeWindow
		c.Logging.DedupeWindowSeconds = &v
	}
	if c.Capture.PerTypeLimit <= 0 {
		c.Capture.PerTypeLimit = defaultPerTypeLimit
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = defaultTopic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultClientID
	}
}

// Validate rejects values the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Monitor.UI != UITview && c.Monitor.UI != UIANSI {
		return fmt.Errorf("%w: monitor.ui %q (want %s or %s)", ErrInvalid, c.Monitor.UI, UITview, UIANSI)
	}
	if *c.Monitor.SettleMS < 0 {
		return fmt.Errorf("%w: monitor.settle_ms must be >= 0", ErrInvalid)
	}
	if *c.Logging.DedupeWindowSeconds < 0 {
		return fmt.Errorf("%w: logging.dedupe_window_seconds must be >= 0", ErrInvalid)
	}
	if c.MQTT.Broker != "" && !strings.Contains(c.MQTT.Broker, "://") {
		return fmt.Errorf("%w: mqtt.broker %q needs a scheme such as tcp://", ErrInvalid, c.MQTT.Broker)
	}
	return nil
}

// SettleDelay is the pause after a mode, speed or rate change.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(*c.Monitor.SettleMS) * time.Millisecond
}

// WaitTimeout is the event loop heartbeat.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Monitor.WaitTimeoutMS) * time.Millisecond
}

// DedupeWindow is how long repeated complaints are folded together.
func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(*c.Logging.DedupeWindowSeconds) * time.Second
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Monitor: ui=%s settle=%s wait=%s\n", c.Monitor.UI, c.SettleDelay(), c.WaitTimeout())
	if c.Logging.File != "" {
		fmt.Printf("Logging: %s (dedupe %s)\n", c.Logging.File, c.DedupeWindow())
	}
	if c.PPS.Device != "" {
		fmt.Printf("PPS: %s\n", c.PPS.Device)
	}
	if c.Capture.Path != "" {
		fmt.Printf("Capture: %s (per-type limit %d)\n", c.Capture.Path, c.Capture.PerTypeLimit)
	}
	if c.MQTT.Broker != "" {
		fmt.Printf("MQTT: %s (topic: %s)\n", c.MQTT.Broker, c.MQTT.Topic)
	}
}
