package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

var knownVehicleTypes = map[string]bool{
	"ambulance":  true,
	"fire_truck": true,
	"police":     true,
}

// ValidateWithCue validates a YAML configuration file against a CUE
// schema file.
func ValidateWithCue(configFile, cueFile string) error {
	ctx := cuecontext.New()

	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	configVal := ctx.CompileBytes(yamlBytes, yaml.Parse)

	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes)

	final := configVal.Unify(schemaVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}
	if err := final.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// Validate checks the structural constraints the CUE schema cannot
// express: cross-references and run-ability.
func (c *Config) Validate() error {
	if c.Area.RadiusKM <= 0 {
		return fmt.Errorf("area %q needs a positive radius_km", c.Area.Name)
	}
	if len(c.Fleets) == 0 {
		return fmt.Errorf("no fleets defined")
	}
	stations := make(map[string]bool, len(c.Stations))
	for _, s := range c.Stations {
		if s.ID == "" {
			return fmt.Errorf("station with empty id")
		}
		if stations[s.ID] {
			return fmt.Errorf("duplicate station %q", s.ID)
		}
		stations[s.ID] = true
	}
	fleets := make(map[string]bool, len(c.Fleets))
	for _, f := range c.Fleets {
		if f.ID == "" {
			return fmt.Errorf("fleet with empty id")
		}
		if fleets[f.ID] {
			return fmt.Errorf("duplicate fleet %q", f.ID)
		}
		fleets[f.ID] = true
		if !stations[f.Station] {
			return fmt.Errorf("fleet %q references unknown station %q", f.ID, f.Station)
		}
		if len(f.Units) == 0 {
			return fmt.Errorf("fleet %q has no units", f.ID)
		}
		for _, u := range f.Units {
			if !knownVehicleTypes[u.Type] {
				return fmt.Errorf("fleet %q has unknown vehicle type %q", f.ID, u.Type)
			}
			if u.Count <= 0 {
				return fmt.Errorf("fleet %q has non-positive count for %s", f.ID, u.Type)
			}
		}
	}
	switch c.Broker.Mode {
	case "inproc":
	case "redis":
		if c.Broker.RedisAddr == "" {
			return fmt.Errorf("broker mode redis needs redis_addr")
		}
	default:
		return fmt.Errorf("unknown broker mode %q", c.Broker.Mode)
	}
	return nil
}
