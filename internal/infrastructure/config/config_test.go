package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temporary config.yaml and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns a minimal Config that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.InfluxDB = InfluxDBConfig{
		Enabled: true,
		URL:     "http://localhost:8086",
		Token:   "token",
		Org:     "home",
		Bucket:  "power",
	}
	cfg.Devices = []DeviceConfig{
		{Address: "192.168.1.70", Feed: "lamp", Kind: DeviceKindPlug},
	}
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
collector:
  interval: 30s
  device_timeout: 2s
influxdb:
  enabled: true
  url: "http://influxdb.test:8086"
  username: "user"
  password: "pass"
  database: "db"
devices:
  - address: "192.168.1.70"
    feed: "lounge"
    kind: plug
    tags:
      room: lounge
  - address: "192.168.1.75"
    feed: "desk"
    kind: strip
    channels: ["monitor", null, ""]
  - address: "192.168.1.80"
    kind: plug
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Collector.Interval != 30*time.Second {
		t.Errorf("Collector.Interval = %v, want %v", cfg.Collector.Interval, 30*time.Second)
	}
	if cfg.Collector.DeviceTimeout != 2*time.Second {
		t.Errorf("Collector.DeviceTimeout = %v, want %v", cfg.Collector.DeviceTimeout, 2*time.Second)
	}
	if cfg.Collector.Measurement != "power" {
		t.Errorf("Collector.Measurement = %q, want default %q", cfg.Collector.Measurement, "power")
	}
	if len(cfg.Devices) != 3 {
		t.Fatalf("len(Devices) = %d, want 3", len(cfg.Devices))
	}
	if cfg.Devices[0].Tags["room"] != "lounge" {
		t.Errorf("Devices[0].Tags[room] = %q, want %q", cfg.Devices[0].Tags["room"], "lounge")
	}

	channels := cfg.Devices[1].Channels
	if len(channels) != 3 {
		t.Fatalf("len(Devices[1].Channels) = %d, want 3", len(channels))
	}
	if channels[0] != "monitor" || channels[1] != "" || channels[2] != "" {
		t.Errorf("Devices[1].Channels = %q, want [monitor, \"\", \"\"]", channels)
	}

	if cfg.Devices[2].Feed != "" {
		t.Errorf("Devices[2].Feed = %q, want empty", cfg.Devices[2].Feed)
	}
}

func TestLoad_NullChannelKeepsIndex(t *testing.T) {
	tests := []struct {
		name     string
		channels string
		want     []string
	}{
		{name: "flow sequence", channels: `["kitchen", null, "lamp"]`, want: []string{"kitchen", "", "lamp"}},
		{name: "tilde", channels: `[~, "hall"]`, want: []string{"", "hall"}},
		{name: "leading null", channels: `[null, null, "lamp", null]`, want: []string{"", "", "lamp", ""}},
		{name: "block sequence", channels: "\n      - kitchen\n      -\n      - lamp", want: []string{"kitchen", "", "lamp"}},
		{name: "omitted", channels: "null", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `
tsdb:
  enabled: true
  url: "http://localhost:8428"
devices:
  - address: "192.168.1.75"
    feed: "desk"
    kind: strip
    channels: ` + tt.channels + "\n"

			cfg, err := Load(writeConfig(t, content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			got := cfg.Devices[0].Channels
			if len(got) != len(tt.want) {
				t.Fatalf("Channels = %q (len %d), want %q", got, len(got), tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Channels[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoad_ChannelsNotAList(t *testing.T) {
	content := `
tsdb:
  enabled: true
  url: "http://localhost:8428"
devices:
  - address: "192.168.1.75"
    kind: strip
    channels: "monitor"
`
	_, err := Load(writeConfig(t, content))
	if err == nil || !strings.Contains(err.Error(), "channels must be a list") {
		t.Errorf("Load() error = %v, want channels list error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
tsdb:
  enabled: true
  url: "http://localhost:8428"
devices:
  - address: "192.168.1.70"
    kind: kettle
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown kind, got nil")
	}
	if !strings.Contains(err.Error(), "devices[0].kind") {
		t.Errorf("Load() error = %v, want mention of devices[0].kind", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
influxdb:
  enabled: true
  url: "http://localhost:8086"
  bucket: "power"
  token: "from-file"
`
	t.Setenv("KASAMETRICS_INFLUXDB_TOKEN", "from-env")
	t.Setenv("KASAMETRICS_COLLECTOR_INTERVAL", "1m")
	t.Setenv("KASAMETRICS_API_PORT", "9200")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.InfluxDB.Token != "from-env" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "from-env")
	}
	if cfg.Collector.Interval != time.Minute {
		t.Errorf("Collector.Interval = %v, want %v", cfg.Collector.Interval, time.Minute)
	}
	if cfg.API.Port != 9200 {
		t.Errorf("API.Port = %d, want 9200", cfg.API.Port)
	}
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	content := `
tsdb:
  enabled: true
  url: "http://localhost:8428"
`
	t.Setenv("KASAMETRICS_COLLECTOR_DEVICE_TIMEOUT", "soon")

	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Error("Load() expected error for unparsable duration, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "no devices is valid",
			mutate: func(c *Config) { c.Devices = nil },
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Collector.Interval = 0 },
			wantErr: "collector.interval",
		},
		{
			name:    "negative device timeout",
			mutate:  func(c *Config) { c.Collector.DeviceTimeout = -time.Second },
			wantErr: "collector.device_timeout",
		},
		{
			name:    "empty measurement",
			mutate:  func(c *Config) { c.Collector.Measurement = "" },
			wantErr: "collector.measurement",
		},
		{
			name:    "no sink enabled",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = false },
			wantErr: "one of influxdb or tsdb",
		},
		{
			name: "both sinks enabled",
			mutate: func(c *Config) {
				c.TSDB = TSDBConfig{Enabled: true, URL: "http://localhost:8428"}
			},
			wantErr: "only one of influxdb and tsdb",
		},
		{
			name: "influxdb v1 credentials",
			mutate: func(c *Config) {
				c.InfluxDB.Token = ""
				c.InfluxDB.Bucket = ""
				c.InfluxDB.Database = "db"
				c.InfluxDB.Username = "user"
			},
		},
		{
			name: "influxdb without credentials",
			mutate: func(c *Config) {
				c.InfluxDB.Token = ""
				c.InfluxDB.Database = ""
			},
			wantErr: "influxdb requires",
		},
		{
			name:    "tsdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = false; c.TSDB.Enabled = true },
			wantErr: "tsdb.url",
		},
		{
			name:    "device without address",
			mutate:  func(c *Config) { c.Devices[0].Address = "" },
			wantErr: "devices[0].address",
		},
		{
			name: "duplicate address with default port",
			mutate: func(c *Config) {
				c.Devices = append(c.Devices, DeviceConfig{Address: "192.168.1.70:9999", Kind: DeviceKindPlug})
			},
			wantErr: "duplicates devices[0]",
		},
		{
			name:   "kind is case-insensitive",
			mutate: func(c *Config) { c.Devices[0].Kind = " Strip " },
		},
		{
			name: "duplicate feed",
			mutate: func(c *Config) {
				c.Devices = append(c.Devices, DeviceConfig{Address: "192.168.1.71", Feed: "lamp", Kind: DeviceKindPlug})
			},
			wantErr: "devices[1].feed \"lamp\" duplicates devices[0]",
		},
		{
			name: "devices without feed may repeat",
			mutate: func(c *Config) {
				c.Devices[0].Feed = ""
				c.Devices = append(c.Devices, DeviceConfig{Address: "192.168.1.71", Kind: DeviceKindPlug})
			},
		},
		{
			name:    "channels on plug",
			mutate:  func(c *Config) { c.Devices[0].Channels = []string{"a"} },
			wantErr: "only valid for kind",
		},
		{
			name:    "feed tag collides",
			mutate:  func(c *Config) { c.Devices[0].Tags = map[string]string{"feed": "x"} },
			wantErr: "must not contain \"feed\"",
		},
		{
			name:    "loki without url",
			mutate:  func(c *Config) { c.Loki.Enabled = true },
			wantErr: "loki.url",
		},
		{
			name:    "mqtt bad qos",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "history without path",
			mutate:  func(c *Config) { c.History.Enabled = true; c.History.Path = "" },
			wantErr: "history.path",
		},
		{
			name:    "api port out of range",
			mutate:  func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Collector.Interval = 0
	cfg.Devices[0].Kind = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	for _, want := range []string{"collector.interval", "devices[0].kind"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_APIAddress(t *testing.T) {
	cfg := validConfig()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 9112

	if got := cfg.APIAddress(); got != "127.0.0.1:9112" {
		t.Errorf("APIAddress() = %q, want %q", got, "127.0.0.1:9112")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("KASAMETRICS_INFLUXDB_TOKEN", "from-env")

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Devices) != 3 {
		t.Errorf("len(Devices) = %d, want 3", len(cfg.Devices))
	}
	if got := cfg.Devices[1].Channels; len(got) != 4 || got[2] != "" {
		t.Errorf("strip channels = %q, want 4 with an empty third", got)
	}
	if cfg.InfluxDB.Token != "from-env" {
		t.Errorf("InfluxDB.Token = %q, want env override", cfg.InfluxDB.Token)
	}
}
