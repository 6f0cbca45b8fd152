// Package config loads the simulator's YAML configuration, validates
// it against the CUE schema, and applies AEGIS_-prefixed environment
// overrides for runtime knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Area is the operational area emergencies are scattered over.
type Area struct {
	Name      string  `yaml:"name"`
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
	RadiusKM  float64 `yaml:"radius_km"`
}

// Station is a home base vehicles start at and return to.
type Station struct {
	ID  string  `yaml:"id"`
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Units declares how many vehicles of one type a fleet runs.
type Units struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

// Fleet groups vehicles under one fleet id and home station.
type Fleet struct {
	ID      string  `yaml:"id"`
	Station string  `yaml:"station"`
	Units   []Units `yaml:"units"`
}

// Broker selects the message transport.
type Broker struct {
	Mode      string `yaml:"mode"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

// Intervals holds the periodic knobs, all in seconds except the
// heartbeat, which counts ticks.
type Intervals struct {
	TickSeconds            int `yaml:"tick_seconds"`
	HeartbeatEvery         int `yaml:"heartbeat_every"`
	LivenessTimeoutSeconds int `yaml:"liveness_timeout_seconds"`
	CommandTimeoutSeconds  int `yaml:"command_timeout_seconds"`
	FleetStatusSeconds     int `yaml:"fleet_status_seconds"`
}

// Emergencies tunes the incident generator.
type Emergencies struct {
	RatePerHour        float64 `yaml:"rate_per_hour"`
	MeanOnSceneMinutes float64 `yaml:"mean_on_scene_minutes"`
}

// Config is the root simulation configuration.
type Config struct {
	Area        Area        `yaml:"area"`
	Stations    []Station   `yaml:"stations"`
	Fleets      []Fleet     `yaml:"fleets"`
	Broker      Broker      `yaml:"broker"`
	Intervals   Intervals   `yaml:"intervals"`
	Emergencies Emergencies `yaml:"emergencies"`

	AmbientTempCelsius float64 `yaml:"ambient_temp_celsius"`
	Scenario           string  `yaml:"scenario,omitempty"`
	Chaos              bool    `yaml:"chaos,omitempty"`
	Seed               int64   `yaml:"seed,omitempty"`
}

// Load reads the YAML config, validates it against the CUE schema when
// a schema path is given, and applies defaults and env overrides.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Mode == "" {
		c.Broker.Mode = "inproc"
	}
	if c.Intervals.TickSeconds <= 0 {
		c.Intervals.TickSeconds = 1
	}
	if c.Intervals.HeartbeatEvery <= 0 {
		c.Intervals.HeartbeatEvery = 10
	}
	if c.Intervals.LivenessTimeoutSeconds <= 0 {
		c.Intervals.LivenessTimeoutSeconds = 90
	}
	if c.Intervals.CommandTimeoutSeconds <= 0 {
		c.Intervals.CommandTimeoutSeconds = 30
	}
	if c.Intervals.FleetStatusSeconds <= 0 {
		c.Intervals.FleetStatusSeconds = 5
	}
	if c.Emergencies.RatePerHour <= 0 {
		c.Emergencies.RatePerHour = 6
	}
	if c.Emergencies.MeanOnSceneMinutes <= 0 {
		c.Emergencies.MeanOnSceneMinutes = 4
	}
	if c.AmbientTempCelsius == 0 {
		c.AmbientTempCelsius = 22
	}
}

// applyEnv overrides runtime knobs from AEGIS_-prefixed variables.
// Malformed numeric values are ignored; the YAML value stands.
func (c *Config) applyEnv() {
	if v := os.Getenv("AEGIS_BROKER_MODE"); v != "" {
		c.Broker.Mode = v
	}
	if v := os.Getenv("AEGIS_REDIS_ADDR"); v != "" {
		c.Broker.RedisAddr = v
	}
	if v := os.Getenv("AEGIS_SCENARIO"); v != "" {
		c.Scenario = v
	}
	if v := os.Getenv("AEGIS_CHAOS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chaos = b
		}
	}
	if v := os.Getenv("AEGIS_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if v := os.Getenv("AEGIS_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Intervals.TickSeconds = n
		}
	}
}

// StationByID looks up a station.
func (c *Config) StationByID(id string) (Station, bool) {
	for _, s := range c.Stations {
		if s.ID == id {
			return s, true
		}
	}
	return Station{}, false
}
