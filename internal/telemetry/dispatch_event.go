package telemetry

import "time"

const (
	DispatchEventAssignment = "assignment"
	DispatchEventRelease    = "release"
	DispatchEventTimeout    = "timeout"
)

// DispatchEventRow represents one dispatch coordination event.
type DispatchEventRow struct {
	FleetID     string    `json:"fleet_id"`
	EventType   string    `json:"event_type"`
	EmergencyID string    `json:"emergency_id"`
	VehicleIDs  []string  `json:"vehicle_ids"`
	Timestamp   time.Time `json:"ts"`
}
