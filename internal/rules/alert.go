// Package rules evaluates telemetry snapshots against static
// thresholds and tracks per-component alert episodes.
package rules

import (
	"os"
	"time"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for escalation checks.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// CategoryRecovery marks the info-severity signal emitted once when a
// component's episode clears; the orchestrator uses it to close open
// alerts.
const CategoryRecovery = "recovery"

// Alert is one predictive alert record. Alerts are immutable once
// created; an escalation is a new record carrying the superseded id.
type Alert struct {
	AlertID   string    `json:"alert_id"`
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"ts"`
	Severity  Severity  `json:"severity"`
	Category  string    `json:"category"`
	Component string    `json:"component"`

	FailureProbability float64 `json:"failure_probability"`
	Confidence         float64 `json:"confidence"`

	PredictedFailureMinHours    float64 `json:"predicted_failure_min_hours"`
	PredictedFailureMaxHours    float64 `json:"predicted_failure_max_hours"`
	PredictedFailureLikelyHours float64 `json:"predicted_failure_likely_hours"`

	CanCompleteMission bool   `json:"can_complete_current_mission"`
	SafeToOperate      bool   `json:"safe_to_operate"`
	RecommendedAction  string `json:"recommended_action"`

	ContributingFactors []string           `json:"contributing_factors,omitempty"`
	RelatedTelemetry    map[string]float64 `json:"related_telemetry,omitempty"`

	// Set on escalations and recovery signals.
	SupersedesAlertID string `json:"supersedes_alert_id,omitempty"`
}

// AlertTableName holds the history table name for alerts, overridable
// via the ALERTS_TABLE environment variable.
var AlertTableName = func() string {
	if env := os.Getenv("ALERTS_TABLE"); env != "" {
		return env
	}
	return "vehicle_alerts"
}()

func (Alert) TableName() string {
	return AlertTableName
}

// Assessment is the composite safety judgment for one tick. It is
// recomputed from current values every tick and never cached, because
// it gates the agent's autonomous decision step.
type Assessment struct {
	SafeToOperate      bool     `json:"safe_to_operate"`
	CanCompleteMission bool     `json:"can_complete_current_mission"`
	CriticalComponents []string `json:"critical_components,omitempty"`
}
