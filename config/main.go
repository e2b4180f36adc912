// Package config loads shingo's configuration: defaults, then a YAML file, then SHINGO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
	"nyiyui.ca/hato/shingo/tal/layout/preset"
	"nyiyui.ca/hato/shingo/tal/plan"
)

type Config struct {
	Log      LogConfig     `yaml:"log"`
	Guide    GuideConfig   `yaml:"guide"`
	Layout   LayoutConfig  `yaml:"layout"`
	Adapter  AdapterConfig `yaml:"adapter"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Journal  JournalConfig `yaml:"journal"`
	Kujo     ServerConfig  `yaml:"kujo"`
	Sakuragi ServerConfig  `yaml:"sakuragi"`
	Trains   []TrainConfig `yaml:"trains"`
	Drives   []DriveConfig `yaml:"drives"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type GuideConfig struct {
	Lookahead       int    `yaml:"lookahead"`
	StallTimeoutMs  int    `yaml:"stall_timeout_ms"`
	ClearDebounceMs int    `yaml:"clear_debounce_ms"`
	MaxReplans      int    `yaml:"max_replans"`
	Metric          string `yaml:"metric"`
}

func (g GuideConfig) StallTimeout() time.Duration {
	return time.Duration(g.StallTimeoutMs) * time.Millisecond
}

func (g GuideConfig) ClearDebounce() time.Duration {
	return time.Duration(g.ClearDebounceMs) * time.Millisecond
}

type LayoutConfig struct {
	// Preset is one of layout.Presets.
	Preset string `yaml:"preset"`
}

type AdapterConfig struct {
	// Kind is sim or mqtt.
	Kind string    `yaml:"kind"`
	Sim  SimConfig `yaml:"sim"`
}

type SimConfig struct {
	SwitchTimeMs int `yaml:"switch_time_ms"`
	TickMs       int `yaml:"tick_ms"`
	// Scale is µm/s per speed step.
	Scale int64 `yaml:"scale"`
}

func (s SimConfig) SwitchTime() time.Duration { return time.Duration(s.SwitchTimeMs) * time.Millisecond }

func (s SimConfig) Tick() time.Duration { return time.Duration(s.TickMs) * time.Millisecond }

type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	TLS      bool   `yaml:"tls"`
}

// URL is the broker URL as paho wants it.
func (b MQTTBrokerConfig) URL() string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig is in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

type JournalConfig struct {
	// Driver is buntdb, sqlite, memory or none.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// AllowedOrigins are the origins allowed cross-origin reads. Only kujo uses it.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TrainConfig struct {
	ID           shingo.TrainID `yaml:"id"`
	Name         string         `yaml:"name"`
	Block        string         `yaml:"block"`
	Cruise       int            `yaml:"cruise"`
	Caution      int            `yaml:"caution"`
	Scale        int64          `yaml:"scale"`
	TopSpeedKmH  int64          `yaml:"top_speed_kmh"`
	Deceleration int64          `yaml:"deceleration"`
	Calibration  []plan.Point   `yaml:"calibration"`
	// RampStep is how many speed steps a speed change moves per ramp interval; 0 changes speed at once.
	RampStep       int `yaml:"ramp_step"`
	RampIntervalMs int `yaml:"ramp_interval_ms"`
}

func (t TrainConfig) RampInterval() time.Duration {
	return time.Duration(t.RampIntervalMs) * time.Millisecond
}

// Relation is the train's fitted speed relation. Without calibration, Scale (µm/s per step) is used, or else the
// prototype's top speed is put at the highest step.
func (t TrainConfig) Relation() plan.Relation {
	scale := t.Scale
	if scale <= 0 && t.TopSpeedKmH > 0 {
		scale = preset.ScaleKmH(t.TopSpeedKmH) / int64(shingo.SpeedMax)
	}
	if scale <= 0 {
		scale = 1000
	}
	return plan.Fit(t.Calibration, plan.Linear(scale))
}

type DriveConfig struct {
	Train   shingo.TrainID `yaml:"train"`
	Goal    string         `yaml:"goal"`
	AfterMs int            `yaml:"after_ms"`
	// Retries is how many more times a drive without a route is tried, RetryMs apart.
	Retries int `yaml:"retries"`
	RetryMs int `yaml:"retry_ms"`
}

func (d DriveConfig) After() time.Duration { return time.Duration(d.AfterMs) * time.Millisecond }

func (d DriveConfig) RetryAfter() time.Duration {
	if d.RetryMs == 0 {
		return 5 * time.Second
	}
	return time.Duration(d.RetryMs) * time.Millisecond
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Guide: GuideConfig{
			Lookahead:      2,
			StallTimeoutMs: 30000,
			MaxReplans:     2,
			Metric:         "hops",
		},
		Layout: LayoutConfig{Preset: "testbench2"},
		Adapter: AdapterConfig{
			Kind: "sim",
			Sim:  SimConfig{SwitchTimeMs: 200, TickMs: 100, Scale: 1000},
		},
		MQTT: MQTTConfig{
			Broker:      MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "shingo"},
			QoS:         1,
			TopicPrefix: "shingo",
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		Journal:  JournalConfig{Driver: "buntdb", Path: "shingo.db"},
		Kujo:     ServerConfig{Enabled: true, Listen: "0.0.0.0:8001"},
		Sakuragi: ServerConfig{Enabled: true, Listen: "0.0.0.0:8080"},
	}
}

// Load reads the config at path (if path is not empty) over the defaults, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("SHINGO_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("SHINGO_MQTT_HOST"); ok {
		c.MQTT.Broker.Host = v
	}
	if v, ok := lookup("SHINGO_MQTT_USERNAME"); ok {
		c.MQTT.Auth.Username = v
	}
	if v, ok := lookup("SHINGO_MQTT_PASSWORD"); ok {
		c.MQTT.Auth.Password = v
	}
	if v, ok := lookup("SHINGO_JOURNAL_PATH"); ok {
		c.Journal.Path = v
	}
}

// Validate reports every problem with c.
func (c *Config) Validate() error {
	var errs []error
	if c.Guide.Lookahead < 1 {
		errs = append(errs, fmt.Errorf("guide.lookahead must be at least 1, got %d", c.Guide.Lookahead))
	}
	if c.Guide.StallTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("guide.stall_timeout_ms must be positive, got %d", c.Guide.StallTimeoutMs))
	}
	if c.Guide.ClearDebounceMs < 0 {
		errs = append(errs, fmt.Errorf("guide.clear_debounce_ms must not be negative, got %d", c.Guide.ClearDebounceMs))
	}
	if c.Guide.MaxReplans < -1 {
		errs = append(errs, fmt.Errorf("guide.max_replans must be -1 (off) or more, got %d", c.Guide.MaxReplans))
	}
	if _, err := plan.ParseMetric(c.Guide.Metric); err != nil {
		errs = append(errs, fmt.Errorf("guide.metric: %w", err))
	}

	y, err := c.BuildLayout()
	if err != nil {
		errs = append(errs, err)
	}

	switch c.Adapter.Kind {
	case "sim":
		if c.Adapter.Sim.TickMs <= 0 {
			errs = append(errs, fmt.Errorf("adapter.sim.tick_ms must be positive, got %d", c.Adapter.Sim.TickMs))
		}
	case "mqtt":
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, errors.New("mqtt.broker.host is required"))
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, fmt.Errorf("mqtt.broker.port out of range: %d", c.MQTT.Broker.Port))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.kind must be sim or mqtt, got %q", c.Adapter.Kind))
	}

	switch c.Journal.Driver {
	case "none", "memory":
	case "buntdb", "sqlite":
		if c.Journal.Path == "" {
			errs = append(errs, fmt.Errorf("journal.path is required for %s", c.Journal.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.driver must be buntdb, sqlite, memory or none, got %q", c.Journal.Driver))
	}

	for _, s := range []struct {
		name string
		conf ServerConfig
	}{{"kujo", c.Kujo}, {"sakuragi", c.Sakuragi}} {
		if !s.conf.Enabled {
			continue
		}
		if _, _, err := net.SplitHostPort(s.conf.Listen); err != nil {
			errs = append(errs, fmt.Errorf("%s.listen: %w", s.name, err))
		}
	}

	seen := map[shingo.TrainID]bool{}
	for i, t := range c.Trains {
		if t.ID == shingo.NoTrain {
			errs = append(errs, fmt.Errorf("trains[%d]: id is required", i))
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("trains[%d]: duplicate id %d", i, t.ID))
		}
		seen[t.ID] = true
		if t.Cruise < 0 || t.Cruise > int(shingo.SpeedMax) || t.Caution < 0 || t.Caution > int(shingo.SpeedMax) {
			errs = append(errs, fmt.Errorf("trains[%d]: speeds must be within 0..%d", i, shingo.SpeedMax))
		}
		if t.RampStep < 0 || t.RampIntervalMs < 0 {
			errs = append(errs, fmt.Errorf("trains[%d]: ramp_step and ramp_interval_ms must not be negative", i))
		}
		if y != nil {
			if _, ok := y.LookupBlock(t.Block); !ok {
				errs = append(errs, fmt.Errorf("trains[%d]: unknown block %q", i, t.Block))
			}
		}
	}
	for i, d := range c.Drives {
		if !seen[d.Train] {
			errs = append(errs, fmt.Errorf("drives[%d]: unknown train %d", i, d.Train))
		}
		if y != nil {
			if _, ok := y.LookupBlock(d.Goal); !ok {
				errs = append(errs, fmt.Errorf("drives[%d]: unknown block %q", i, d.Goal))
			}
		}
		if d.AfterMs < 0 {
			errs = append(errs, fmt.Errorf("drives[%d]: after_ms must not be negative", i))
		}
		if d.Retries < 0 || d.RetryMs < 0 {
			errs = append(errs, fmt.Errorf("drives[%d]: retries and retry_ms must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// BuildLayout builds the configured layout preset.
func (c *Config) BuildLayout() (*layout.Layout, error) {
	build, ok := layout.Presets[c.Layout.Preset]
	if !ok {
		return nil, fmt.Errorf("layout.preset: unknown preset %q", c.Layout.Preset)
	}
	y, err := build()
	if err != nil {
		return nil, fmt.Errorf("layout.preset %s: %w", c.Layout.Preset, err)
	}
	return y, nil
}
