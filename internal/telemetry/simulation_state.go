package telemetry

import "time"

// SimulationStateRow captures per-tick harness metrics.
type SimulationStateRow struct {
	FleetID           string    `json:"fleet_id"`
	ActiveVehicles    int       `json:"active_vehicles"`
	ActiveFailures    int       `json:"active_failures"`
	ActiveEmergencies int       `json:"active_emergencies"`
	MessagesPublished int       `json:"messages_published"`
	PublishFailures   int       `json:"publish_failures"`
	ChaosMode         bool      `json:"chaos_mode"`
	Timestamp         time.Time `json:"ts"`
}
