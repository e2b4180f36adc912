package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/shingo/tal/plan"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %s", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shingo.yaml")
	data := `
guide:
  lookahead: 3
  stall_timeout_ms: 5000
layout:
  preset: testbench1
journal:
  driver: memory
trains:
  - id: 3
    name: EF65
    block: "1"
    cruise: 80
    ramp_step: 5
    ramp_interval_ms: 200
    calibration:
      - {step: 10, velocity: 12000}
      - {step: 60, velocity: 72000}
drives:
  - {train: 3, goal: "4", after_ms: 1000, retries: 3, retry_ms: 250}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %s", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %s", err)
	}
	if c.Guide.Lookahead != 3 || c.Guide.StallTimeout() != 5*time.Second {
		t.Fatalf("guide: %#v", c.Guide)
	}
	// untouched sections keep their defaults
	if c.Guide.MaxReplans != 2 || c.MQTT.Broker.Port != 1883 || !c.Kujo.Enabled {
		t.Fatalf("defaults lost: %#v", c)
	}
	want := []plan.Point{{Step: 10, Velocity: 12000}, {Step: 60, Velocity: 72000}}
	if diff := cmp.Diff(want, c.Trains[0].Calibration); diff != "" {
		t.Fatalf("calibration: %s", diff)
	}
	if v := c.Trains[0].Relation().Velocity(30); v < 35000 || v > 37000 {
		t.Fatalf("fitted velocity at 30: %d", v)
	}
	if c.Trains[0].RampStep != 5 || c.Trains[0].RampInterval() != 200*time.Millisecond {
		t.Fatalf("ramp: %#v", c.Trains[0])
	}
	if c.Drives[0].After() != time.Second {
		t.Fatalf("after: %s", c.Drives[0].After())
	}
	if c.Drives[0].Retries != 3 || c.Drives[0].RetryAfter() != 250*time.Millisecond {
		t.Fatalf("retry: %#v", c.Drives[0])
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("loaded a missing file")
	}
}

func TestEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"SHINGO_LOG_LEVEL":     "debug",
		"SHINGO_MQTT_HOST":     "broker.local",
		"SHINGO_MQTT_PASSWORD": "hunter2",
	}
	c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if c.Log.Level != "debug" || c.MQTT.Broker.Host != "broker.local" || c.MQTT.Auth.Password != "hunter2" {
		t.Fatalf("env not applied: %#v", c)
	}
	if c.MQTT.Auth.Username != "" {
		t.Fatalf("unset variable applied")
	}
	if got := c.MQTT.Broker.URL(); got != "tcp://broker.local:1883" {
		t.Fatalf("url: %s", got)
	}
}

func TestValidateReportsEverything(t *testing.T) {
	c := Default()
	c.Guide.Lookahead = 0
	c.Adapter.Kind = "serial"
	c.Journal.Driver = "postgres"
	c.Trains = []TrainConfig{{ID: 3, Block: "nowhere"}, {ID: 3, Block: "1", RampStep: -1}}
	c.Drives = []DriveConfig{{Train: 4, Goal: "1"}, {Train: 3, Goal: "1", Retries: -1}}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{
		"guide.lookahead",
		"adapter.kind",
		"journal.driver",
		`unknown block "nowhere"`,
		"duplicate id 3",
		"trains[1]: ramp_step",
		"drives[0]: unknown train 4",
		"drives[1]: retries",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %s", want, err)
		}
	}
}

func TestValidateLayout(t *testing.T) {
	c := Default()
	c.Layout.Preset = "nope"
	c.Trains = []TrainConfig{{ID: 1, Block: "1"}}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown preset") {
		t.Fatalf("expected unknown preset, got %v", err)
	}
	// block lookups are skipped without a layout
	if strings.Contains(err.Error(), "unknown block") {
		t.Fatalf("block checked against no layout: %s", err)
	}
}

func TestRelationFallback(t *testing.T) {
	cases := []struct {
		name string
		tc   TrainConfig
		want int64
	}{
		{"default", TrainConfig{}, 1000 * 100},
		{"scale", TrainConfig{Scale: 1500}, 1500 * 100},
		// 120km/h at 1:150 is 222222µm/s, so 1763µm/s per step
		{"top speed", TrainConfig{TopSpeedKmH: 120}, 1763 * 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.tc.Relation().Velocity(100); got != c.want {
				t.Fatalf("velocity at 100: got %d, expected %d", got, c.want)
			}
		})
	}
}
