// Package scenario defines scripted simulation runs: ordered phases
// that inject vehicle failures and raise emergencies, advancing on
// elapsed time or resolution counts. The simulation harness owns
// progression; this package only describes the script.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"aegis-sim/internal/failure"
)

// Trigger event types.
const (
	EventTimeElapsed         = "time_elapsed"
	EventEmergenciesResolved = "emergencies_resolved"
)

// Scenario is a named script with ordered phases. Phases[0] is where a
// run starts; a phase without triggers is terminal.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase describes one stage of the script: what breaks, what happens
// in the city, and what moves the run forward.
type Phase struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Injections  []Injection     `yaml:"injections,omitempty"`
	Emergencies []EmergencySpec `yaml:"emergencies,omitempty"`
	Triggers    []Trigger       `yaml:"triggers,omitempty"`
}

// Injection activates a failure scenario on the vehicles a selector
// matches when the phase begins.
type Injection struct {
	Vehicle  string `yaml:"vehicle"`
	Scenario string `yaml:"scenario"`
}

// Matches reports whether the selector covers the vehicle. A selector
// is an exact id, a prefix ending in '*', or "*" for every vehicle.
func (i Injection) Matches(vehicleID string) bool {
	if i.Vehicle == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(i.Vehicle, "*"); ok {
		return strings.HasPrefix(vehicleID, prefix)
	}
	return i.Vehicle == vehicleID
}

// EmergencySpec raises incidents when the phase begins. Count defaults
// to one.
type EmergencySpec struct {
	Type          string `yaml:"type"`
	SeverityLevel int    `yaml:"severity_level"`
	Count         int    `yaml:"count,omitempty"`
}

// Trigger moves the script to another phase once the event's value
// reaches the threshold.
type Trigger struct {
	Event string `yaml:"event"`
	Value int    `yaml:"value"`
	Next  string `yaml:"next"`
}

// Event is a runtime occurrence that may advance the script.
type Event struct {
	Type  string
	Value int
}

// Load reads a YAML scenario from disk and validates it.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the script is runnable: at least one phase, unique
// phase names, trigger targets that exist, known failure scenarios,
// and recognized trigger events.
func (s *Scenario) Validate() error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("scenario %q has no phases", s.Name)
	}
	names := make(map[string]bool, len(s.Phases))
	for _, p := range s.Phases {
		if p.Name == "" {
			return fmt.Errorf("scenario %q has an unnamed phase", s.Name)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate phase %q", p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range s.Phases {
		for _, inj := range p.Injections {
			if !failure.Known(failure.Scenario(inj.Scenario)) {
				return fmt.Errorf("phase %q injects unknown failure %q", p.Name, inj.Scenario)
			}
			if inj.Vehicle == "" {
				return fmt.Errorf("phase %q has an injection without a vehicle selector", p.Name)
			}
		}
		for _, tr := range p.Triggers {
			if tr.Event != EventTimeElapsed && tr.Event != EventEmergenciesResolved {
				return fmt.Errorf("phase %q has unknown trigger event %q", p.Name, tr.Event)
			}
			if !names[tr.Next] {
				return fmt.Errorf("phase %q triggers unknown phase %q", p.Name, tr.Next)
			}
		}
	}
	return nil
}

// Phase returns the named phase.
func (s *Scenario) Phase(name string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// NextPhase returns the phase the event advances to from current, if
// any trigger matches.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	for _, p := range s.Phases {
		if p.Name != current {
			continue
		}
		for _, tr := range p.Triggers {
			if tr.Event == ev.Type && ev.Value >= tr.Value {
				return tr.Next, true
			}
		}
	}
	return "", false
}
