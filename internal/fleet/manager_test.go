package fleet

import (
	"testing"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/telemetry"
)

func TestIngestRegistersVehicle(t *testing.T) {
	m, _ := testManager()

	res := m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	if !res.Registered {
		t.Fatal("expected first snapshot to register the vehicle")
	}

	v, ok := m.Vehicle("amb-001")
	if !ok {
		t.Fatal("vehicle not found after ingest")
	}
	if v.Status != telemetry.StatusIdle || v.LastSeq != 1 {
		t.Errorf("unexpected record: status %s seq %d", v.Status, v.LastSeq)
	}

	sum := m.Summary("metro-ems")
	if sum.TotalVehicles != 1 || sum.StatusSummary["idle"] != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestIngestDeduplicatesBySequence(t *testing.T) {
	m, _ := testManager()

	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	m.Ingest(snapshot("amb-001", 2, telemetry.StatusEnRoute))

	res := m.Ingest(snapshot("amb-001", 2, telemetry.StatusIdle))
	if !res.Duplicate {
		t.Fatal("expected replayed sequence to be flagged duplicate")
	}
	res = m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	if !res.Duplicate {
		t.Fatal("expected stale sequence to be flagged duplicate")
	}

	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusEnRoute {
		t.Errorf("duplicate must not regress status, got %s", v.Status)
	}
	if v.LastSeq != 2 || v.Duplicates != 2 {
		t.Errorf("expected seq 2 with 2 duplicates, got seq %d duplicates %d", v.LastSeq, v.Duplicates)
	}
}

func TestIngestCountsSequenceGaps(t *testing.T) {
	m, _ := testManager()

	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	res := m.Ingest(snapshot("amb-001", 5, telemetry.StatusIdle))

	if res.Gap != 3 {
		t.Fatalf("expected gap of 3, got %d", res.Gap)
	}
	v, _ := m.Vehicle("amb-001")
	if v.MissedSeqs != 3 || v.LastSeq != 5 {
		t.Errorf("expected 3 missed with seq 5, got %d missed seq %d", v.MissedSeqs, v.LastSeq)
	}
	if !hasEvent(m, EventSequenceGap, "amb-001") {
		t.Error("expected a sequence_gap event")
	}
}

func TestLivenessSweepMarksSilentVehiclesOffline(t *testing.T) {
	m, clock := testManager()

	m.Ingest(snapshot("amb-001", 1, telemetry.StatusEnRoute))
	m.Ingest(snapshot("eng-002", 1, telemetry.StatusIdle))

	clock.advance(30 * time.Second)
	m.Ingest(snapshot("eng-002", 2, telemetry.StatusIdle))

	clock.advance(70 * time.Second) // amb-001 silent for 100s, eng-002 for 70s
	marked := m.SweepLiveness()

	if len(marked) != 1 || marked[0] != "amb-001" {
		t.Fatalf("expected [amb-001] marked offline, got %v", marked)
	}
	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusOffline {
		t.Errorf("expected offline, got %s", v.Status)
	}
	if !hasEvent(m, EventVehicleOffline, "amb-001") {
		t.Error("expected a vehicle_offline event")
	}

	// A later sweep must not re-mark amb-001; only eng-002 has newly
	// crossed the timeout.
	clock.advance(30 * time.Second)
	if again := m.SweepLiveness(); len(again) != 1 || again[0] != "eng-002" {
		t.Errorf("second sweep should only catch eng-002, got %v", again)
	}
}

func TestHeartbeatRecoveryRestoresPreviousStatus(t *testing.T) {
	m, clock := testManager()

	m.Ingest(snapshot("amb-001", 1, telemetry.StatusEnRoute))
	clock.advance(2 * time.Minute)
	m.SweepLiveness()

	recovered := m.Heartbeat(bus.HeartbeatPayload{VehicleID: "amb-001", AgentVersion: "1.0.0"})
	if !recovered {
		t.Fatal("expected heartbeat to recover the offline vehicle")
	}
	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusEnRoute {
		t.Errorf("expected status restored to en_route, got %s", v.Status)
	}
	if v.AgentVersion != "1.0.0" {
		t.Errorf("expected agent version recorded, got %q", v.AgentVersion)
	}
	if !hasEvent(m, EventVehicleRecovered, "amb-001") {
		t.Error("expected a vehicle_recovered event")
	}
}

func TestTelemetryRecoveryUsesSnapshotStatus(t *testing.T) {
	m, clock := testManager()

	m.Ingest(snapshot("amb-001", 1, telemetry.StatusEnRoute))
	clock.advance(2 * time.Minute)
	m.SweepLiveness()

	res := m.Ingest(snapshot("amb-001", 2, telemetry.StatusReturning))
	if !res.Recovered {
		t.Fatal("expected telemetry to recover the offline vehicle")
	}
	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusReturning {
		t.Errorf("snapshot status is authoritative on recovery, got %s", v.Status)
	}
}

func TestStatusChangeApplied(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))

	m.ApplyStatusChange(bus.StatusChangePayload{
		VehicleID:      "amb-001",
		PreviousStatus: telemetry.StatusIdle,
		NewStatus:      telemetry.StatusEnRoute,
		Reason:         "dispatched to em-1",
	})

	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusEnRoute {
		t.Fatalf("expected en_route, got %s", v.Status)
	}
	if !hasEvent(m, EventStatusChanged, "amb-001") {
		t.Error("expected a status_changed event")
	}
}

func TestRejectedStatusChangeLeavesStatus(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))

	m.ApplyStatusChange(bus.StatusChangePayload{
		VehicleID:      "amb-001",
		PreviousStatus: telemetry.StatusIdle,
		NewStatus:      telemetry.StatusIdle,
		Reason:         "vehicle is not safe to operate",
		Rejected:       true,
	})

	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusIdle {
		t.Fatalf("rejection must not change status, got %s", v.Status)
	}
	if !hasEvent(m, EventCommandRejected, "amb-001") {
		t.Error("expected a command_rejected event")
	}
}

func TestSummaryFiltersByFleet(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	m.Ingest(snapshot("amb-002", 1, telemetry.StatusEnRoute))
	other := snapshot("pol-001", 1, telemetry.StatusIdle)
	other.FleetID = "metro-pd"
	m.Ingest(other)

	sum := m.Summary("metro-ems")
	if sum.TotalVehicles != 2 {
		t.Errorf("expected 2 metro-ems vehicles, got %d", sum.TotalVehicles)
	}
	if sum.TypeSummary["ambulance"] != 2 {
		t.Errorf("unexpected type summary: %v", sum.TypeSummary)
	}
	all := m.Summary("")
	if all.TotalVehicles != 3 {
		t.Errorf("expected 3 vehicles across fleets, got %d", all.TotalVehicles)
	}
	if all.StatusSummary["idle"] != 2 || all.StatusSummary["en_route"] != 1 {
		t.Errorf("unexpected status summary: %v", all.StatusSummary)
	}
	if all.TypeSummary["ambulance"] != 2 || all.TypeSummary["police"] != 1 {
		t.Errorf("unexpected type summary: %v", all.TypeSummary)
	}
}

func TestAvailableListsOnlyIdleVehicles(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-003", 1, telemetry.StatusIdle))
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	m.Ingest(snapshot("amb-002", 1, telemetry.StatusEnRoute))
	m.Ingest(snapshot("amb-004", 1, telemetry.StatusMaintenance))

	avail := m.Available("metro-ems")
	if len(avail) != 2 {
		t.Fatalf("expected 2 available vehicles, got %d", len(avail))
	}
	if avail[0].VehicleID != "amb-001" || avail[1].VehicleID != "amb-003" {
		t.Errorf("expected sorted [amb-001 amb-003], got [%s %s]",
			avail[0].VehicleID, avail[1].VehicleID)
	}
}

func TestInferTypeFromIDPrefix(t *testing.T) {
	cases := map[string]telemetry.VehicleType{
		"amb-001":  telemetry.TypeAmbulance,
		"AMB-17":   telemetry.TypeAmbulance,
		"eng-002":  telemetry.TypeFireTruck,
		"lad-001":  telemetry.TypeFireTruck,
		"fire-3":   telemetry.TypeFireTruck,
		"pol-001":  telemetry.TypePolice,
		"unit-042": telemetry.TypeAmbulance,
	}
	for id, want := range cases {
		if got := InferType(id); got != want {
			t.Errorf("InferType(%q) = %s, want %s", id, got, want)
		}
	}
}

func TestMarkDispatchedTracksAssignment(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	m.Ingest(snapshot("amb-002", 1, telemetry.StatusIdle))

	if !m.MarkDispatched("amb-001", "em-1") {
		t.Fatal("expected mark to succeed for a known vehicle")
	}
	if m.MarkDispatched("ghost-9", "em-1") {
		t.Error("expected mark to fail for an unknown vehicle")
	}

	v, _ := m.Vehicle("amb-001")
	if v.Status != telemetry.StatusEnRoute || v.EmergencyID != "em-1" {
		t.Errorf("expected en_route on em-1, got %s on %q", v.Status, v.EmergencyID)
	}
	if got := m.AssignedTo("em-1"); len(got) != 1 || got[0] != "amb-001" {
		t.Errorf("expected [amb-001] assigned, got %v", got)
	}

	m.ClearAssignment("amb-001")
	if got := m.AssignedTo("em-1"); len(got) != 0 {
		t.Errorf("expected no assignments after clear, got %v", got)
	}
}

func TestIdleReportDropsStaleAssignment(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))
	m.MarkDispatched("amb-001", "em-1")

	// The agent rejected or finished the dispatch; its own idle report
	// wins over the optimistic mark.
	m.Ingest(snapshot("amb-001", 2, telemetry.StatusIdle))

	v, _ := m.Vehicle("amb-001")
	if v.EmergencyID != "" {
		t.Errorf("expected assignment cleared by idle report, got %q", v.EmergencyID)
	}
}

func TestEventLogIsBounded(t *testing.T) {
	m, _ := testManager()
	m.Ingest(snapshot("amb-001", 1, telemetry.StatusIdle))

	for i := 0; i < maxEvents+50; i++ {
		m.ApplyStatusChange(bus.StatusChangePayload{
			VehicleID: "amb-001",
			NewStatus: telemetry.StatusIdle,
			Reason:    "rejected",
			Rejected:  true,
		})
	}

	if got := len(m.Events()); got != maxEvents {
		t.Errorf("expected event log capped at %d, got %d", maxEvents, got)
	}
}

// helpers

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func testManager() (*Manager, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(90 * time.Second)
	m.now = func() time.Time { return clock.current }
	return m, clock
}

func snapshot(id string, seq uint64, status telemetry.OperationalStatus) telemetry.Snapshot {
	return telemetry.Snapshot{
		VehicleID:      id,
		FleetID:        "metro-ems",
		SequenceNumber: seq,
		Status:         status,
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func hasEvent(m *Manager, t EventType, vehicleID string) bool {
	for _, ev := range m.Events() {
		if ev.Type == t && ev.VehicleID == vehicleID {
			return true
		}
	}
	return false
}
