package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
area:
  name: metro-north
  center_lat: 40.7128
  center_lon: -74.0060
  radius_km: 12
stations:
  - id: station-1
    lat: 40.7201
    lon: -74.0021
fleets:
  - id: metro-ems
    station: station-1
    units:
      - type: ambulance
        count: 2
broker:
  mode: inproc
`

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.Fleets) != 1 || cfg.Fleets[0].ID != "metro-ems" {
		t.Errorf("unexpected fleet data: %+v", cfg.Fleets)
	}
	if cfg.Fleets[0].Units[0].Type != "ambulance" || cfg.Fleets[0].Units[0].Count != 2 {
		t.Errorf("unexpected units: %+v", cfg.Fleets[0].Units)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Intervals.TickSeconds != 1 || cfg.Intervals.HeartbeatEvery != 10 {
		t.Errorf("unexpected interval defaults: %+v", cfg.Intervals)
	}
	if cfg.Intervals.LivenessTimeoutSeconds != 90 || cfg.Intervals.CommandTimeoutSeconds != 30 {
		t.Errorf("unexpected sweep defaults: %+v", cfg.Intervals)
	}
	if cfg.Emergencies.RatePerHour != 6 || cfg.Emergencies.MeanOnSceneMinutes != 4 {
		t.Errorf("unexpected emergency defaults: %+v", cfg.Emergencies)
	}
	if cfg.AmbientTempCelsius != 22 {
		t.Errorf("unexpected ambient default: %v", cfg.AmbientTempCelsius)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_BROKER_MODE", "redis")
	t.Setenv("AEGIS_REDIS_ADDR", "redis.example:6379")
	t.Setenv("AEGIS_SCENARIO", "mass-casualty")
	t.Setenv("AEGIS_CHAOS", "true")
	t.Setenv("AEGIS_SEED", "1234")

	cfg, err := Load(writeConfig(t, validYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Broker.Mode != "redis" || cfg.Broker.RedisAddr != "redis.example:6379" {
		t.Errorf("broker override not applied: %+v", cfg.Broker)
	}
	if cfg.Scenario != "mass-casualty" || !cfg.Chaos || cfg.Seed != 1234 {
		t.Errorf("overrides not applied: scenario=%q chaos=%v seed=%d", cfg.Scenario, cfg.Chaos, cfg.Seed)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := map[string]string{
		"unknown station": `
area: {name: a, center_lat: 0, center_lon: 0, radius_km: 5}
stations: [{id: station-1, lat: 0, lon: 0}]
fleets: [{id: f1, station: ghost, units: [{type: ambulance, count: 1}]}]
`,
		"unknown vehicle type": `
area: {name: a, center_lat: 0, center_lon: 0, radius_km: 5}
stations: [{id: station-1, lat: 0, lon: 0}]
fleets: [{id: f1, station: station-1, units: [{type: hovercraft, count: 1}]}]
`,
		"no fleets": `
area: {name: a, center_lat: 0, center_lon: 0, radius_km: 5}
stations: [{id: station-1, lat: 0, lon: 0}]
fleets: []
`,
		"redis without addr": `
area: {name: a, center_lat: 0, center_lon: 0, radius_km: 5}
stations: [{id: station-1, lat: 0, lon: 0}]
fleets: [{id: f1, station: station-1, units: [{type: police, count: 1}]}]
broker: {mode: redis}
`,
	}
	for name, yaml := range cases {
		if _, err := Load(writeConfig(t, yaml), ""); err == nil {
			t.Errorf("%s: expected Load to fail", name)
		}
	}
}

func TestStationLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	st, ok := cfg.StationByID("station-1")
	if !ok || st.Lat != 40.7201 {
		t.Errorf("unexpected station: %+v ok=%v", st, ok)
	}
	if _, ok := cfg.StationByID("station-9"); ok {
		t.Error("expected lookup miss for unknown station")
	}
}

func TestCueSchemaValidation(t *testing.T) {
	schema := filepath.Join("..", "..", "schema.cue")
	if _, err := os.Stat(schema); err != nil {
		t.Skipf("schema not found: %v", err)
	}

	if err := ValidateWithCue(writeConfig(t, validYAML), schema); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := `
area: {name: a, center_lat: 0, center_lon: 0, radius_km: -3}
stations: [{id: station-1, lat: 0, lon: 0}]
fleets: [{id: f1, station: station-1, units: [{type: ambulance, count: 1}]}]
broker: {mode: inproc}
`
	if err := ValidateWithCue(writeConfig(t, bad), schema); err == nil {
		t.Error("expected schema to reject negative radius")
	}
}
