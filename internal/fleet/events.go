package fleet

import "time"

// maxEvents bounds the in-memory event history; older entries fall off.
const maxEvents = 512

// EventType classifies fleet log entries.
type EventType string

const (
	EventVehicleRegistered EventType = "vehicle_registered"
	EventVehicleOffline    EventType = "vehicle_offline"
	EventVehicleRecovered  EventType = "vehicle_recovered"
	EventStatusChanged     EventType = "status_changed"
	EventSequenceGap       EventType = "sequence_gap"
	EventCommandRejected   EventType = "command_rejected"
)

// Event is one entry in the fleet history log.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	VehicleID string    `json:"vehicle_id"`
	Details   string    `json:"details"`
}

// Events returns a copy of the recorded history, oldest first.
func (m *Manager) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]Event, len(m.events))
	copy(events, m.events)
	return events
}

func (m *Manager) logEvent(t EventType, vehicleID, details string) {
	m.events = append(m.events, Event{
		Timestamp: m.now().UTC(),
		Type:      t,
		VehicleID: vehicleID,
		Details:   details,
	})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}
