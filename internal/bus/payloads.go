package bus

import (
	"time"

	"aegis-sim/internal/telemetry"
)

// HeartbeatPayload is the liveness beacon each agent publishes on the
// heartbeat interval, independent of telemetry.
type HeartbeatPayload struct {
	VehicleID             string       `json:"vehicle_id"`
	UptimeSeconds         int64        `json:"uptime_seconds"`
	LastTelemetrySequence uint64       `json:"last_telemetry_sequence"`
	AgentVersion          string       `json:"agent_version"`
	SystemHealth          SystemHealth `json:"system_health"`
}

// SystemHealth reports the agent process, not the vehicle.
type SystemHealth struct {
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	BrokerConnected bool    `json:"broker_connected"`
}

// StatusChangePayload reports an operational status transition. It
// doubles as the command acknowledgment: a transition performed for a
// command echoes its correlation id on the envelope, and a refused
// command comes back with Rejected set and the status unchanged.
type StatusChangePayload struct {
	VehicleID      string                      `json:"vehicle_id"`
	PreviousStatus telemetry.OperationalStatus `json:"previous_status"`
	NewStatus      telemetry.OperationalStatus `json:"new_status"`
	Reason         string                      `json:"reason"`
	Rejected       bool                        `json:"rejected,omitempty"`
}

// LocalDecisionPayload reports an autonomous safety action the agent
// already carried out; it informs, it does not ask.
type LocalDecisionPayload struct {
	VehicleID                    string             `json:"vehicle_id"`
	DecisionType                 string             `json:"decision_type"`
	Reason                       string             `json:"reason"`
	TelemetrySnapshot            map[string]float64 `json:"telemetry_snapshot,omitempty"`
	AlertIDs                     []string           `json:"alert_ids,omitempty"`
	ActionTaken                  string             `json:"action_taken"`
	RequiresOrchestratorOverride bool               `json:"requires_orchestrator_override"`
}

// CommandType identifies an orchestrator instruction.
type CommandType string

const (
	CommandStandby         CommandType = "standby"
	CommandDispatch        CommandType = "dispatch"
	CommandReturnToBase    CommandType = "return_to_base"
	CommandMaintenanceMode CommandType = "maintenance_mode"
	CommandEmergencyStop   CommandType = "emergency_stop"
	CommandUpdateConfig    CommandType = "update_config"
)

// Precedence orders commands that arrive within the same tick window.
// The highest wins; the rest are rejected.
func (c CommandType) Precedence() int {
	switch c {
	case CommandEmergencyStop:
		return 5
	case CommandMaintenanceMode:
		return 4
	case CommandReturnToBase:
		return 3
	case CommandDispatch:
		return 2
	case CommandStandby:
		return 1
	case CommandUpdateConfig:
		return 0
	default:
		return -1
	}
}

// CommandPayload is an orchestrator instruction to one vehicle.
type CommandPayload struct {
	CommandType            CommandType    `json:"command_type"`
	Parameters             map[string]any `json:"parameters,omitempty"`
	Reason                 string         `json:"reason"`
	IssuedBy               string         `json:"issued_by"`
	RequiresAcknowledgment bool           `json:"requires_acknowledgment"`
}

// AlertAcknowledgmentPayload closes the loop on a generated alert.
type AlertAcknowledgmentPayload struct {
	AlertID        string `json:"alert_id"`
	AcknowledgedBy string `json:"acknowledged_by"`
	ActionTaken    string `json:"action_taken"`
}

// FleetStatusPayload is the aggregated snapshot published for
// monitors on the dashboard channel.
type FleetStatusPayload struct {
	FleetID           string         `json:"fleet_id"`
	Timestamp         time.Time      `json:"timestamp"`
	TotalVehicles     int            `json:"total_vehicles"`
	StatusSummary     map[string]int `json:"status_summary"`
	TypeSummary       map[string]int `json:"type_summary"`
	AvailableVehicles int            `json:"available_vehicles"`
	ActiveAlerts      map[string]int `json:"active_alerts"`
	ActiveEmergencies int            `json:"active_emergencies"`
}

// EmergencyPayload announces a new or resolved emergency.
type EmergencyPayload struct {
	EmergencyID   string             `json:"emergency_id"`
	Type          string             `json:"type"`
	SeverityLevel int                `json:"severity_level"`
	Location      telemetry.Position `json:"location"`
	UnitsRequired map[string]int     `json:"units_required,omitempty"`
	ReportedAt    time.Time          `json:"reported_at"`
}
