package dispatch

import (
	"testing"
	"time"

	"aegis-sim/internal/fleet"
	"aegis-sim/internal/telemetry"
)

var scene = telemetry.Position{Lat: 40.7128, Lon: -74.0060}

func positioned(id string, lat, lon float64, status telemetry.OperationalStatus) telemetry.Snapshot {
	return telemetry.Snapshot{
		VehicleID:      id,
		FleetID:        "metro-ems",
		SequenceNumber: 1,
		Status:         status,
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Location:       telemetry.Position{Lat: lat, Lon: lon},
	}
}

func testRoster(snaps ...telemetry.Snapshot) *fleet.Manager {
	m := fleet.NewManager(0)
	for _, s := range snaps {
		m.Ingest(s)
	}
	return m
}

func TestSelectNearestOfRequiredType(t *testing.T) {
	roster := testRoster(
		positioned("amb-002", 40.80, -74.0060, telemetry.StatusIdle), // ~9.7 km out
		positioned("amb-001", 40.72, -74.0060, telemetry.StatusIdle), // ~0.8 km out
		positioned("eng-001", 40.71, -74.0100, telemetry.StatusIdle),
	)
	e := NewEngine(roster, nil)

	d := e.SelectUnits("em-1", scene, map[telemetry.VehicleType]int{telemetry.TypeAmbulance: 1})
	if !d.Complete() {
		t.Fatalf("expected full coverage, shortfall %v", d.Shortfall)
	}
	if len(d.Units) != 1 || d.Units[0].VehicleID != "amb-001" {
		t.Fatalf("expected nearest amb-001 selected, got %+v", d.Units)
	}
	if d.Units[0].DistanceKM <= 0 || d.Units[0].DistanceKM > 2 {
		t.Errorf("implausible distance %.2f km", d.Units[0].DistanceKM)
	}
	if d.Criteria != CriteriaNearest {
		t.Errorf("expected criteria %q, got %q", CriteriaNearest, d.Criteria)
	}

	v, _ := roster.Vehicle("amb-001")
	if v.Status != telemetry.StatusEnRoute || v.EmergencyID != "em-1" {
		t.Errorf("expected optimistic en_route on em-1, got %s on %q", v.Status, v.EmergencyID)
	}
}

func TestSelectCoversEveryRequiredType(t *testing.T) {
	roster := testRoster(
		positioned("amb-001", 40.72, -74.00, telemetry.StatusIdle),
		positioned("eng-001", 40.71, -74.01, telemetry.StatusIdle),
		positioned("eng-002", 40.73, -74.02, telemetry.StatusIdle),
		positioned("pol-001", 40.70, -74.00, telemetry.StatusIdle),
	)
	e := NewEngine(roster, nil)

	d := e.SelectUnits("em-2", scene, map[telemetry.VehicleType]int{
		telemetry.TypeAmbulance: 1,
		telemetry.TypeFireTruck: 2,
		telemetry.TypePolice:    1,
	})
	if len(d.Units) != 4 || !d.Complete() {
		t.Fatalf("expected 4 units with no shortfall, got %d units shortfall %v", len(d.Units), d.Shortfall)
	}
	// Fill order is fixed: ambulances, then fire apparatus, then police.
	if d.Units[0].Type != telemetry.TypeAmbulance || d.Units[3].Type != telemetry.TypePolice {
		t.Errorf("unexpected fill order: %+v", d.Units)
	}
}

func TestShortfallReportedNotRefused(t *testing.T) {
	roster := testRoster(positioned("pol-001", 40.72, -74.00, telemetry.StatusIdle))
	e := NewEngine(roster, nil)

	d := e.SelectUnits("em-3", scene, map[telemetry.VehicleType]int{telemetry.TypePolice: 2})
	if len(d.Units) != 1 {
		t.Fatalf("expected the one available unit dispatched, got %d", len(d.Units))
	}
	if d.Complete() || d.Shortfall[telemetry.TypePolice] != 1 {
		t.Errorf("expected shortfall of 1 police unit, got %v", d.Shortfall)
	}
}

func TestGateVetoesVehicle(t *testing.T) {
	roster := testRoster(
		positioned("amb-001", 40.72, -74.0060, telemetry.StatusIdle),
		positioned("amb-002", 40.80, -74.0060, telemetry.StatusIdle),
	)
	gate := func(id string) bool { return id == "amb-001" }
	e := NewEngine(roster, gate)

	d := e.SelectUnits("em-4", scene, map[telemetry.VehicleType]int{telemetry.TypeAmbulance: 1})
	if len(d.Units) != 1 || d.Units[0].VehicleID != "amb-002" {
		t.Fatalf("expected the farther amb-002 when amb-001 is vetoed, got %+v", d.Units)
	}
}

func TestBusyVehiclesAreNotCandidates(t *testing.T) {
	roster := testRoster(
		positioned("amb-001", 40.72, -74.0060, telemetry.StatusEnRoute),
		positioned("amb-002", 40.80, -74.0060, telemetry.StatusIdle),
	)
	e := NewEngine(roster, nil)

	d := e.SelectUnits("em-5", scene, map[telemetry.VehicleType]int{telemetry.TypeAmbulance: 1})
	if len(d.Units) != 1 || d.Units[0].VehicleID != "amb-002" {
		t.Fatalf("expected only idle amb-002 eligible, got %+v", d.Units)
	}
}

func TestSelectedUnitsNotReusedAcrossEmergencies(t *testing.T) {
	roster := testRoster(
		positioned("amb-001", 40.72, -74.0060, telemetry.StatusIdle),
		positioned("amb-002", 40.73, -74.0060, telemetry.StatusIdle),
	)
	e := NewEngine(roster, nil)

	first := e.SelectUnits("em-6", scene, map[telemetry.VehicleType]int{telemetry.TypeAmbulance: 1})
	second := e.SelectUnits("em-7", scene, map[telemetry.VehicleType]int{telemetry.TypeAmbulance: 1})

	if first.Units[0].VehicleID == second.Units[0].VehicleID {
		t.Fatalf("vehicle %s dispatched to two emergencies", first.Units[0].VehicleID)
	}
}

func TestDistanceTieBreaksOnVehicleID(t *testing.T) {
	roster := testRoster(
		positioned("amb-002", 40.72, -74.0060, telemetry.StatusIdle),
		positioned("amb-001", 40.72, -74.0060, telemetry.StatusIdle),
	)
	e := NewEngine(roster, nil)

	d := e.SelectUnits("em-8", scene, map[telemetry.VehicleType]int{telemetry.TypeAmbulance: 1})
	if d.Units[0].VehicleID != "amb-001" {
		t.Errorf("expected lexical tiebreak to pick amb-001, got %s", d.Units[0].VehicleID)
	}
}

func TestReleaseDetachesAssignedUnits(t *testing.T) {
	roster := testRoster(
		positioned("amb-001", 40.72, -74.0060, telemetry.StatusIdle),
		positioned("eng-001", 40.71, -74.0100, telemetry.StatusIdle),
	)
	e := NewEngine(roster, nil)
	e.SelectUnits("em-9", scene, map[telemetry.VehicleType]int{
		telemetry.TypeAmbulance: 1,
		telemetry.TypeFireTruck: 1,
	})

	released := e.Release("em-9")
	if len(released) != 2 || released[0] != "amb-001" || released[1] != "eng-001" {
		t.Fatalf("expected [amb-001 eng-001] released, got %v", released)
	}
	if left := roster.AssignedTo("em-9"); len(left) != 0 {
		t.Errorf("expected no assignments after release, got %v", left)
	}
}

func TestAvailableCountByType(t *testing.T) {
	roster := testRoster(
		positioned("amb-001", 40.72, -74.00, telemetry.StatusIdle),
		positioned("amb-002", 40.73, -74.00, telemetry.StatusEnRoute),
		positioned("eng-001", 40.71, -74.01, telemetry.StatusIdle),
		positioned("pol-001", 40.70, -74.00, telemetry.StatusIdle),
	)
	gate := func(id string) bool { return id == "pol-001" }
	e := NewEngine(roster, gate)

	counts := e.AvailableCount()
	if counts[telemetry.TypeAmbulance] != 1 || counts[telemetry.TypeFireTruck] != 1 || counts[telemetry.TypePolice] != 0 {
		t.Errorf("unexpected availability: %v", counts)
	}
}
