// Package dispatch picks response units for emergencies and tracks the
// commands sent to them. Selection is nearest-available per required
// vehicle type; command outcomes are resolved from the acknowledgments
// vehicles publish, with a sweep that times out the silent ones.
package dispatch

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"aegis-sim/internal/fleet"
	"aegis-sim/internal/telemetry"
)

// CriteriaNearest is the only selection strategy implemented: straight
// great-circle distance, closest unit first.
const CriteriaNearest = "nearest_available"

// unitOrder fixes the fill order across vehicle types so a dispatch is
// deterministic for a given roster.
var unitOrder = []telemetry.VehicleType{
	telemetry.TypeAmbulance,
	telemetry.TypeFireTruck,
	telemetry.TypePolice,
}

// Assignment pairs one selected vehicle with its distance to the scene
// at selection time.
type Assignment struct {
	VehicleID  string                `json:"vehicle_id"`
	Type       telemetry.VehicleType `json:"vehicle_type"`
	DistanceKM float64               `json:"distance_km"`
}

// Dispatch is the outcome of unit selection for one emergency. A
// shortfall means the roster could not cover the requirement; the
// selected units still roll.
type Dispatch struct {
	DispatchID  string                        `json:"dispatch_id"`
	EmergencyID string                        `json:"emergency_id"`
	Units       []Assignment                  `json:"units"`
	Shortfall   map[telemetry.VehicleType]int `json:"shortfall,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
	Criteria    string                        `json:"criteria"`
}

// Complete reports whether every required unit was covered.
func (d Dispatch) Complete() bool { return len(d.Shortfall) == 0 }

// Engine selects units off the fleet roster. The gate, when set, vetoes
// individual vehicles; it is how open critical alerts keep a nominally
// idle vehicle out of a dispatch.
type Engine struct {
	roster *fleet.Manager
	gate   func(vehicleID string) bool

	now func() time.Time
}

// NewEngine builds a selection engine over the given roster. gate may
// be nil, in which case every idle vehicle is eligible.
func NewEngine(roster *fleet.Manager, gate func(vehicleID string) bool) *Engine {
	return &Engine{roster: roster, gate: gate, now: time.Now}
}

// SelectUnits chooses the nearest eligible vehicle of each required
// type and optimistically marks the chosen ones dispatched on the
// roster. The vehicles' own status messages correct the roster if a
// dispatch command is later rejected. Requirements the roster cannot
// cover land in Shortfall; partial dispatches are returned, not
// refused.
func (e *Engine) SelectUnits(emergencyID string, scene telemetry.Position, required map[telemetry.VehicleType]int) Dispatch {
	d := Dispatch{
		DispatchID:  uuid.NewString(),
		EmergencyID: emergencyID,
		CreatedAt:   e.now().UTC(),
		Criteria:    CriteriaNearest,
	}

	byType := make(map[telemetry.VehicleType][]fleet.VehicleState)
	for _, v := range e.roster.Available("") {
		if e.gate != nil && e.gate(v.VehicleID) {
			continue
		}
		byType[v.Type] = append(byType[v.Type], v)
	}

	for _, t := range unitOrder {
		need := required[t]
		if need <= 0 {
			continue
		}
		candidates := byType[t]
		sort.Slice(candidates, func(i, j int) bool {
			di := telemetry.DistanceKM(candidates[i].Snapshot.Location, scene)
			dj := telemetry.DistanceKM(candidates[j].Snapshot.Location, scene)
			if di != dj {
				return di < dj
			}
			return candidates[i].VehicleID < candidates[j].VehicleID
		})

		taken := 0
		for _, c := range candidates {
			if taken == need {
				break
			}
			if !e.roster.MarkDispatched(c.VehicleID, emergencyID) {
				continue
			}
			d.Units = append(d.Units, Assignment{
				VehicleID:  c.VehicleID,
				Type:       t,
				DistanceKM: telemetry.DistanceKM(c.Snapshot.Location, scene),
			})
			taken++
		}
		if taken < need {
			if d.Shortfall == nil {
				d.Shortfall = make(map[telemetry.VehicleType]int)
			}
			d.Shortfall[t] = need - taken
		}
	}
	return d
}

// Release detaches every vehicle assigned to the emergency and returns
// their ids so the caller can stand them down.
func (e *Engine) Release(emergencyID string) []string {
	ids := e.roster.AssignedTo(emergencyID)
	for _, id := range ids {
		e.roster.ClearAssignment(id)
	}
	return ids
}

// AvailableCount tallies eligible vehicles by type, for coverage
// monitoring.
func (e *Engine) AvailableCount() map[telemetry.VehicleType]int {
	counts := make(map[telemetry.VehicleType]int)
	for _, v := range e.roster.Available("") {
		if e.gate != nil && e.gate(v.VehicleID) {
			continue
		}
		counts[v.Type]++
	}
	return counts
}
