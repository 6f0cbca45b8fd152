// Package emergency models incidents and generates synthetic ones
// over a service area during simulation runs.
package emergency

import (
	"time"

	"aegis-sim/internal/telemetry"
)

// IncidentType categorizes an emergency.
type IncidentType string

const (
	IncidentMedical         IncidentType = "medical"
	IncidentFire            IncidentType = "fire"
	IncidentCrime           IncidentType = "crime"
	IncidentAccident        IncidentType = "accident"
	IncidentHazmat          IncidentType = "hazmat"
	IncidentRescue          IncidentType = "rescue"
	IncidentNaturalDisaster IncidentType = "natural_disaster"
)

// Status is the lifecycle state of an emergency.
type Status string

const (
	StatusPending    Status = "pending"     // received, awaiting dispatch
	StatusDispatched Status = "dispatched"  // units en route
	StatusInProgress Status = "in_progress" // units on scene
	StatusResolved   Status = "resolved"
	StatusCancelled  Status = "cancelled"
)

// Severity runs 1 (low) to 5 (critical).
type Severity int

const (
	SeverityLow      Severity = 1
	SeverityModerate Severity = 2
	SeverityHigh     Severity = 3
	SeveritySevere   Severity = 4
	SeverityCritical Severity = 5
)

// UnitsRequired counts how many vehicles of each type an incident
// needs.
type UnitsRequired map[telemetry.VehicleType]int

// Total returns the number of units across all types.
func (u UnitsRequired) Total() int {
	var n int
	for _, c := range u {
		n += c
	}
	return n
}

// DefaultUnits returns the standard response package for an incident
// type.
func DefaultUnits(t IncidentType) UnitsRequired {
	switch t {
	case IncidentMedical:
		return UnitsRequired{telemetry.TypeAmbulance: 1}
	case IncidentFire:
		return UnitsRequired{telemetry.TypeAmbulance: 1, telemetry.TypeFireTruck: 2}
	case IncidentCrime:
		return UnitsRequired{telemetry.TypePolice: 2}
	case IncidentAccident:
		return UnitsRequired{telemetry.TypeAmbulance: 2, telemetry.TypePolice: 1}
	case IncidentHazmat:
		return UnitsRequired{telemetry.TypeAmbulance: 1, telemetry.TypeFireTruck: 2, telemetry.TypePolice: 1}
	case IncidentRescue:
		return UnitsRequired{telemetry.TypeAmbulance: 1, telemetry.TypeFireTruck: 1}
	case IncidentNaturalDisaster:
		return UnitsRequired{telemetry.TypeAmbulance: 2, telemetry.TypeFireTruck: 2, telemetry.TypePolice: 2}
	default:
		return UnitsRequired{telemetry.TypeAmbulance: 1}
	}
}

// Emergency is one incident requiring a dispatch response.
type Emergency struct {
	ID          string             `json:"emergency_id"`
	Type        IncidentType       `json:"emergency_type"`
	Status      Status             `json:"status"`
	Severity    Severity           `json:"severity"`
	Location    telemetry.Position `json:"location"`
	Address     string             `json:"address,omitempty"`
	Description string             `json:"description"`
	ReportedBy  string             `json:"reported_by"`

	UnitsRequired UnitsRequired `json:"units_required"`
	AssignedUnits []string      `json:"assigned_units,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	DispatchedAt time.Time `json:"dispatched_at,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the emergency still needs attention.
func (e *Emergency) Open() bool {
	return e.Status != StatusResolved && e.Status != StatusCancelled
}
