// Package bus defines the fleet messaging protocol: one JSON envelope
// for every message, named channels per fleet and vehicle, Redis
// pub/sub as the production transport and an in-process broker for
// tests and broker-less runs.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType routes an envelope to its handler.
type MessageType string

const (
	// Vehicle to orchestrator.
	TypeTelemetryUpdate MessageType = "telemetry.update"
	TypeHeartbeat       MessageType = "vehicle.heartbeat"
	TypeAlertGenerated  MessageType = "alert.generated"
	TypeStatusChange    MessageType = "vehicle.status_change"
	TypeLocalDecision   MessageType = "vehicle.local_decision"

	// Orchestrator to vehicle.
	TypeCommand          MessageType = "vehicle.command"
	TypeAlertAcknowledge MessageType = "alert.acknowledge"

	// Orchestrator to monitors.
	TypeFleetStatus MessageType = "fleet.status"

	// Emergency lifecycle.
	TypeEmergencyNew      MessageType = "emergency.new"
	TypeDispatchAssigned  MessageType = "dispatch.assigned"
	TypeEmergencyResolved MessageType = "emergency.resolved"
)

// Priority hints at delivery urgency; the broker does not reorder, but
// consumers may shed low-priority traffic under load.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// SchemaVersion stamps every envelope; bump on breaking changes.
const SchemaVersion = "1.0.0"

// DefaultTTLSeconds bounds how long a message is worth acting on.
const DefaultTTLSeconds = 60

// DestinationOrchestrator addresses the fleet orchestrator. An empty
// destination is a broadcast.
const DestinationOrchestrator = "orchestrator"

// Message is the universal envelope. Payload stays raw until a handler
// that knows the message type decodes it.
type Message struct {
	MessageID     string          `json:"message_id"`
	MessageType   MessageType     `json:"message_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	Destination   string          `json:"destination,omitempty"`
	Priority      Priority        `json:"priority"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	TTLSeconds    int             `json:"ttl_seconds"`
	SchemaVersion string          `json:"schema_version"`
}

// NewMessage wraps payload in a fully populated envelope. A payload
// that cannot encode must never reach the broker, so the error
// surfaces here.
func NewMessage(mt MessageType, source, destination string, prio Priority, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", mt, err)
	}
	return Message{
		MessageID:     uuid.NewString(),
		MessageType:   mt,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Destination:   destination,
		Priority:      prio,
		Payload:       raw,
		TTLSeconds:    DefaultTTLSeconds,
		SchemaVersion: SchemaVersion,
	}, nil
}

// Expired reports whether the envelope's TTL has lapsed at now.
// A non-positive TTL means the message never expires.
func (m Message) Expired(now time.Time) bool {
	if m.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(m.Timestamp) > time.Duration(m.TTLSeconds)*time.Second
}

// Decode unmarshals the payload into dst.
func (m Message) Decode(dst any) error {
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.MessageType, err)
	}
	return nil
}
