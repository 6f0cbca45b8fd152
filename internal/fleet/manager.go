// Package fleet maintains the coordination side's view of every
// vehicle: last accepted telemetry, sequence accounting, liveness, and
// operational status. The manager consumes what agents publish and
// never talks back to them; commands are the dispatcher's job.
package fleet

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/telemetry"
)

// DefaultLivenessTimeout marks a vehicle offline when nothing has been
// heard from it for this long.
const DefaultLivenessTimeout = 90 * time.Second

// VehicleState is the manager's record for one vehicle. Snapshot is
// the last accepted telemetry reading.
type VehicleState struct {
	VehicleID string
	FleetID   string
	Type      telemetry.VehicleType

	Status          telemetry.OperationalStatus
	EmergencyID     string
	LastSeen        time.Time
	LastHeartbeat   time.Time
	AgentVersion    string
	BrokerConnected bool

	LastSeq    uint64
	MissedSeqs uint64
	Duplicates uint64

	Snapshot telemetry.Snapshot

	// What Status held before the liveness sweep marked the vehicle
	// offline; restored on recovery when no fresher status is known.
	beforeOffline telemetry.OperationalStatus
}

// IngestResult reports what a telemetry snapshot did to the registry.
type IngestResult struct {
	Registered bool
	Duplicate  bool
	Recovered  bool
	Gap        uint64
}

// Manager tracks all vehicles across fleets. All methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	vehicles map[string]*VehicleState
	events   []Event

	livenessTimeout time.Duration
	now             func() time.Time
}

// NewManager builds an empty registry. A non-positive timeout falls
// back to DefaultLivenessTimeout.
func NewManager(livenessTimeout time.Duration) *Manager {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
	}
	return &Manager{
		vehicles:        make(map[string]*VehicleState),
		livenessTimeout: livenessTimeout,
		now:             time.Now,
	}
}

// Ingest records one telemetry snapshot. Snapshots with a sequence at
// or below the last accepted one are duplicates and change nothing;
// gaps are counted but the fresher snapshot is still accepted.
func (m *Manager) Ingest(snap telemetry.Snapshot) IngestResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res IngestResult
	now := m.now()

	v, ok := m.vehicles[snap.VehicleID]
	if !ok {
		v = &VehicleState{
			VehicleID: snap.VehicleID,
			FleetID:   snap.FleetID,
			Type:      InferType(snap.VehicleID),
		}
		m.vehicles[snap.VehicleID] = v
		res.Registered = true
		m.logEvent(EventVehicleRegistered, snap.VehicleID,
			fmt.Sprintf("first contact, status %s", snap.Status))
	} else {
		if snap.SequenceNumber <= v.LastSeq {
			v.Duplicates++
			res.Duplicate = true
			return res
		}
		if gap := snap.SequenceNumber - v.LastSeq - 1; gap > 0 {
			v.MissedSeqs += gap
			res.Gap = gap
			m.logEvent(EventSequenceGap, snap.VehicleID,
				fmt.Sprintf("%d snapshots missed before seq %d", gap, snap.SequenceNumber))
		}
	}

	if v.Status == telemetry.StatusOffline {
		res.Recovered = true
		m.logEvent(EventVehicleRecovered, snap.VehicleID,
			fmt.Sprintf("telemetry resumed with status %s", snap.Status))
	}

	v.Status = snap.Status
	if v.Status == telemetry.StatusIdle || v.Status == telemetry.StatusMaintenance ||
		v.Status == telemetry.StatusOutOfService {
		// The vehicle reports itself untasked; drop any stale
		// dispatch assignment.
		v.EmergencyID = ""
	}
	v.LastSeq = snap.SequenceNumber
	v.LastSeen = now
	v.Snapshot = snap
	return res
}

// Heartbeat records an agent heartbeat. A heartbeat carries no
// operational status, so recovery from offline restores the status the
// vehicle held before the sweep.
func (m *Manager) Heartbeat(hb bus.HeartbeatPayload) (recovered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[hb.VehicleID]
	if !ok {
		v = &VehicleState{VehicleID: hb.VehicleID, Type: InferType(hb.VehicleID)}
		m.vehicles[hb.VehicleID] = v
		m.logEvent(EventVehicleRegistered, hb.VehicleID, "first contact via heartbeat")
	}
	if v.Status == telemetry.StatusOffline {
		v.Status = v.beforeOffline
		recovered = true
		m.logEvent(EventVehicleRecovered, hb.VehicleID,
			fmt.Sprintf("heartbeat resumed, status restored to %s", v.Status))
	}
	v.LastSeen = m.now()
	v.LastHeartbeat = v.LastSeen
	v.AgentVersion = hb.AgentVersion
	v.BrokerConnected = hb.SystemHealth.BrokerConnected
	return recovered
}

// ApplyStatusChange records an agent-reported transition. Rejected
// commands are logged and leave the status untouched.
func (m *Manager) ApplyStatusChange(p bus.StatusChangePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[p.VehicleID]
	if !ok {
		return
	}
	v.LastSeen = m.now()
	if p.Rejected {
		m.logEvent(EventCommandRejected, p.VehicleID, p.Reason)
		return
	}
	if v.Status != p.NewStatus {
		m.logEvent(EventStatusChanged, p.VehicleID,
			fmt.Sprintf("%s -> %s: %s", p.PreviousStatus, p.NewStatus, p.Reason))
	}
	v.Status = p.NewStatus
}

// SweepLiveness marks every silent vehicle offline and returns their
// ids. Offline vehicles keep their previous status for restoration.
func (m *Manager) SweepLiveness() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.livenessTimeout)
	var marked []string
	for id, v := range m.vehicles {
		if v.Status == telemetry.StatusOffline || !v.LastSeen.Before(cutoff) {
			continue
		}
		v.beforeOffline = v.Status
		v.Status = telemetry.StatusOffline
		marked = append(marked, id)
		m.logEvent(EventVehicleOffline, id,
			fmt.Sprintf("no contact since %s", v.LastSeen.UTC().Format(time.RFC3339)))
	}
	sort.Strings(marked)
	return marked
}

// Vehicle returns a copy of one vehicle's record.
func (m *Manager) Vehicle(id string) (VehicleState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return VehicleState{}, false
	}
	return *v, true
}

// Vehicles returns copies of all records ordered by vehicle id.
func (m *Manager) Vehicles() []VehicleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VehicleState, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Summary aggregates per-status counts. An empty fleetID covers every
// fleet the manager has seen.
func (m *Manager) Summary(fleetID string) bus.FleetStatusPayload {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := bus.FleetStatusPayload{
		FleetID:       fleetID,
		Timestamp:     m.now().UTC(),
		StatusSummary: make(map[string]int),
		TypeSummary:   make(map[string]int),
	}
	for _, v := range m.vehicles {
		if fleetID != "" && v.FleetID != fleetID {
			continue
		}
		sum.TotalVehicles++
		sum.StatusSummary[string(v.Status)]++
		sum.TypeSummary[string(v.Type)]++
	}
	return sum
}

// Available returns vehicles of the given fleet that dispatch may
// consider, ordered by vehicle id. Idle vehicles only; anything
// already tasked, silent, or held back is excluded.
func (m *Manager) Available(fleetID string) []VehicleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VehicleState
	for _, v := range m.vehicles {
		if fleetID != "" && v.FleetID != fleetID {
			continue
		}
		if v.Status != telemetry.StatusIdle {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// MarkDispatched optimistically flags a vehicle en_route to an
// emergency. The vehicle's own status messages correct the record if
// the command is rejected.
func (m *Manager) MarkDispatched(vehicleID, emergencyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return false
	}
	v.Status = telemetry.StatusEnRoute
	v.EmergencyID = emergencyID
	return true
}

// AssignedTo lists the vehicles currently tied to an emergency.
func (m *Manager) AssignedTo(emergencyID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, v := range m.vehicles {
		if v.EmergencyID == emergencyID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ClearAssignment detaches a vehicle from its emergency. The status is
// left to the vehicle's own reporting.
func (m *Manager) ClearAssignment(vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vehicles[vehicleID]; ok {
		v.EmergencyID = ""
	}
}

// InferType guesses a vehicle's type from its id prefix. Fleet naming
// uses amb- for ambulances, eng-/lad- for fire apparatus, and pol- for
// police units; unknown prefixes default to ambulance.
func InferType(vehicleID string) telemetry.VehicleType {
	id := strings.ToLower(vehicleID)
	switch {
	case strings.HasPrefix(id, "amb"):
		return telemetry.TypeAmbulance
	case strings.HasPrefix(id, "eng"), strings.HasPrefix(id, "lad"), strings.HasPrefix(id, "fire"):
		return telemetry.TypeFireTruck
	case strings.HasPrefix(id, "pol"):
		return telemetry.TypePolice
	default:
		return telemetry.TypeAmbulance
	}
}
