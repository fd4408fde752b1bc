package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device kinds accepted in the devices section.
const (
	DeviceKindPlug  = "plug"
	DeviceKindStrip = "strip"
)

// Config is the root configuration structure for kasametrics.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Devices   []DeviceConfig  `yaml:"devices"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	TSDB      TSDBConfig      `yaml:"tsdb"`
	Loki      LokiConfig      `yaml:"loki"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	History   HistoryConfig   `yaml:"history"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CollectorConfig controls the polling cycle.
type CollectorConfig struct {
	// Interval is the fixed cadence between cycle starts.
	// Default: 15s
	Interval time.Duration `yaml:"interval"`

	// DeviceTimeout bounds each individual device query.
	// Default: 5s
	DeviceTimeout time.Duration `yaml:"device_timeout"`

	// Measurement is the measurement name written for every point.
	// Default: "power"
	Measurement string `yaml:"measurement"`

	// WriteTimeout bounds the single batch write of a cycle.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DeviceConfig describes one polled device.
type DeviceConfig struct {
	// Address is the device IP or hostname, optionally with ":port".
	Address string `yaml:"address"`

	// Feed identifies the device in the time-series store.
	// A device without a feed is polled but never reported.
	Feed string `yaml:"feed"`

	// Kind is "plug" (single outlet) or "strip" (multi outlet).
	Kind string `yaml:"kind"`

	// Tags are merged into every measurement from this device.
	Tags map[string]string `yaml:"tags"`

	// Channels names the outlets of a strip by index.
	// A null or empty entry excludes that outlet.
	Channels ChannelNames `yaml:"channels"`
}

// ChannelNames is a strip's outlet names, indexed by outlet.
type ChannelNames []string

// UnmarshalYAML keeps null entries as "" so later outlets stay at their
// index. yaml.v3 drops nulls when decoding straight into []string.
func (c *ChannelNames) UnmarshalYAML(node *yaml.Node) error {
	if node.ShortTag() == "!!null" {
		*c = nil
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: channels must be a list", node.Line)
	}

	names := make(ChannelNames, len(node.Content))
	for i, n := range node.Content {
		if n.ShortTag() == "!!null" {
			continue
		}
		if err := n.Decode(&names[i]); err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
	}
	*c = names
	return nil
}

// InfluxDBConfig contains InfluxDB connection settings.
//
// Either Token (InfluxDB 2.x) or Username/Password/Database (1.x
// compatibility endpoints) authenticate the client.
type InfluxDBConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	Token           string `yaml:"token"`
	Org             string `yaml:"org"`
	Bucket          string `yaml:"bucket"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	RetentionPolicy string `yaml:"retention_policy"`
}

// TSDBConfig contains VictoriaMetrics connection settings.
type TSDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// LokiConfig contains settings for forwarding log records to Loki.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Level   string            `yaml:"level"`
	Labels  map[string]string `yaml:"labels"`
}

// MQTTConfig contains MQTT broker connection settings.
// When enabled, forwarded log records are published under TopicPrefix.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
	Level       string           `yaml:"level"`
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

// HistoryConfig contains the local cycle history store settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// APIConfig contains the HTTP status server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
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
// Environment variables follow the pattern: KASAMETRICS_SECTION_KEY
// For example: KASAMETRICS_INFLUXDB_TOKEN, KASAMETRICS_COLLECTOR_INTERVAL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			Interval:      15 * time.Second,
			DeviceTimeout: 5 * time.Second,
			Measurement:   "power",
			WriteTimeout:  10 * time.Second,
		},
		Loki: LokiConfig{
			Level: "warn",
			Labels: map[string]string{
				"application": "kasametrics",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "kasametrics",
			},
			QoS:         1,
			TopicPrefix: "kasametrics",
			Level:       "warn",
		},
		History: HistoryConfig{
			Path:          "./data/kasametrics.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9112,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Credentials belong here rather than in the config file.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("KASAMETRICS_COLLECTOR_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KASAMETRICS_COLLECTOR_INTERVAL: %w", err)
		}
		cfg.Collector.Interval = d
	}
	if v := os.Getenv("KASAMETRICS_COLLECTOR_DEVICE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KASAMETRICS_COLLECTOR_DEVICE_TIMEOUT: %w", err)
		}
		cfg.Collector.DeviceTimeout = d
	}

	// InfluxDB
	if v := os.Getenv("KASAMETRICS_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("KASAMETRICS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("KASAMETRICS_INFLUXDB_PASSWORD"); v != "" {
		cfg.InfluxDB.Password = v
	}

	// TSDB
	if v := os.Getenv("KASAMETRICS_TSDB_URL"); v != "" {
		cfg.TSDB.URL = v
	}

	// Loki
	if v := os.Getenv("KASAMETRICS_LOKI_URL"); v != "" {
		cfg.Loki.URL = v
	}

	// MQTT
	if v := os.Getenv("KASAMETRICS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KASAMETRICS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KASAMETRICS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("KASAMETRICS_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KASAMETRICS_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	return nil
}

// Validate checks the configuration for errors.
// All problems are collected into a single error so they can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	// Collector
	if c.Collector.Interval <= 0 {
		errs = append(errs, "collector.interval must be positive")
	}
	if c.Collector.DeviceTimeout <= 0 {
		errs = append(errs, "collector.device_timeout must be positive")
	}
	if c.Collector.Measurement == "" {
		errs = append(errs, "collector.measurement is required")
	}
	if c.Collector.WriteTimeout <= 0 {
		errs = append(errs, "collector.write_timeout must be positive")
	}

	// Devices
	errs = append(errs, validateDevices(c.Devices)...)

	// Sinks: exactly one time-series backend
	switch {
	case c.InfluxDB.Enabled && c.TSDB.Enabled:
		errs = append(errs, "only one of influxdb and tsdb may be enabled")
	case !c.InfluxDB.Enabled && !c.TSDB.Enabled:
		errs = append(errs, "one of influxdb or tsdb must be enabled")
	}
	if c.InfluxDB.Enabled {
		errs = append(errs, c.InfluxDB.validate()...)
	}
	if c.TSDB.Enabled && c.TSDB.URL == "" {
		errs = append(errs, "tsdb.url is required")
	}

	// Log forwarding
	if c.Loki.Enabled && c.Loki.URL == "" {
		errs = append(errs, "loki.url is required")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	// History
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required")
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks InfluxDB credentials for either the 2.x or 1.x style.
func (c InfluxDBConfig) validate() []string {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}
	switch {
	case c.Token != "":
		if c.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required with token authentication")
		}
	case c.Database != "":
		// 1.x compatibility; username/password are optional for open servers.
	default:
		errs = append(errs, "influxdb requires either token and bucket or database")
	}
	return errs
}

// validateDevices checks every device entry and reports problems by index.
func validateDevices(devices []DeviceConfig) []string {
	var errs []string
	seen := make(map[string]int, len(devices))
	feeds := make(map[string]int, len(devices))

	for i, d := range devices {
		prefix := fmt.Sprintf("devices[%d]", i)

		if d.Address == "" {
			errs = append(errs, prefix+".address is required")
		} else {
			key := NormaliseAddress(d.Address)
			if first, dup := seen[key]; dup {
				errs = append(errs, fmt.Sprintf("%s.address %q duplicates devices[%d]", prefix, d.Address, first))
			} else {
				seen[key] = i
			}
		}

		if d.Feed != "" {
			if first, dup := feeds[d.Feed]; dup {
				errs = append(errs, fmt.Sprintf("%s.feed %q duplicates devices[%d]", prefix, d.Feed, first))
			} else {
				feeds[d.Feed] = i
			}
		}

		switch NormaliseKind(d.Kind) {
		case DeviceKindPlug:
			if len(d.Channels) > 0 {
				errs = append(errs, prefix+".channels is only valid for kind \"strip\"")
			}
		case DeviceKindStrip:
		default:
			errs = append(errs, fmt.Sprintf("%s.kind %q must be %q or %q", prefix, d.Kind, DeviceKindPlug, DeviceKindStrip))
		}

		if _, ok := d.Tags["feed"]; ok {
			errs = append(errs, prefix+".tags must not contain \"feed\" (use the feed field)")
		}
	}

	return errs
}

// NormaliseKind trims and lower-cases a configured device kind.
func NormaliseKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// NormaliseAddress appends the default device port 9999 when addr has none.
func NormaliseAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "9999")
}

// APIAddress returns the listen address of the status server.
func (c *Config) APIAddress() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}
