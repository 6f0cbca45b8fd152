package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aegis-sim/internal/config"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/sink"
	"aegis-sim/internal/telemetry"
)

func writerTestConfig() *config.Config {
	return &config.Config{
		Fleets: []config.Fleet{
			{ID: "metro-ems", Station: "station-1", Units: []config.Units{{Type: "ambulance", Count: 2}}},
		},
		Intervals: config.Intervals{TickSeconds: 1},
	}
}

func TestNewHistoryWriterJSONStdout(t *testing.T) {
	t.Setenv("TIMESCALE_DSN", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, cleanup, err := newHistoryWriter(context.Background(), writerTestConfig(), true, "")
	if err != nil {
		t.Fatalf("newHistoryWriter returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*sink.JSONWriter); !ok {
		t.Fatalf("expected *sink.JSONWriter, got %T", w)
	}
}

func TestNewHistoryWriterFallsBackWithoutEndpoints(t *testing.T) {
	t.Setenv("TIMESCALE_DSN", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, cleanup, err := newHistoryWriter(context.Background(), writerTestConfig(), false, "")
	if err != nil {
		t.Fatalf("newHistoryWriter returned error: %v", err)
	}
	cleanup()
	// Test binaries run with piped stdout, so the terminal branch is
	// skipped even without --json.
	if _, ok := w.(*sink.JSONWriter); !ok {
		t.Fatalf("expected *sink.JSONWriter, got %T", w)
	}
}

func TestNewHistoryWriterLogFile(t *testing.T) {
	t.Setenv("TIMESCALE_DSN", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "history.log")
	w, cleanup, err := newHistoryWriter(context.Background(), writerTestConfig(), true, path)
	if err != nil {
		t.Fatalf("newHistoryWriter returned error: %v", err)
	}
	if _, ok := w.(*sink.MultiWriter); !ok {
		t.Fatalf("expected *sink.MultiWriter, got %T", w)
	}

	snap := telemetry.Snapshot{VehicleID: "amb-001", FleetID: "metro-ems", Timestamp: time.Now().UTC()}
	if err := w.Write(snap); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	al := rules.Alert{AlertID: "al-1", VehicleID: "amb-001", Severity: rules.SeverityWarning, Timestamp: time.Now().UTC()}
	if err := w.WriteAlert(al); err != nil {
		t.Fatalf("write alert failed: %v", err)
	}
	ev := telemetry.DispatchEventRow{FleetID: "metro-ems", EventType: telemetry.DispatchEventAssignment, EmergencyID: "em-1", VehicleIDs: []string{"amb-001"}, Timestamp: time.Now().UTC()}
	if err := w.WriteDispatchEvent(ev); err != nil {
		t.Fatalf("write dispatch event failed: %v", err)
	}
	st := telemetry.SimulationStateRow{FleetID: "metro-ems", ActiveVehicles: 2, MessagesPublished: 4, Timestamp: time.Now().UTC()}
	if err := w.WriteState(st); err != nil {
		t.Fatalf("write state failed: %v", err)
	}
	cleanup()

	for _, p := range []string{path, path + ".alerts", path + ".dispatch", path + ".state"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s failed: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
}

func TestNewReplayWriterIsJSON(t *testing.T) {
	t.Setenv("TIMESCALE_DSN", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, cleanup, err := newReplayWriter(context.Background(), false)
	if err != nil {
		t.Fatalf("newReplayWriter returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*sink.JSONWriter); !ok {
		t.Fatalf("expected *sink.JSONWriter, got %T", w)
	}
}

func TestFleetLabelAndTotals(t *testing.T) {
	cfg := &config.Config{Fleets: []config.Fleet{
		{ID: "metro-ems", Units: []config.Units{{Type: "ambulance", Count: 2}}},
		{ID: "metro-fire", Units: []config.Units{{Type: "fire_truck", Count: 1}, {Type: "command", Count: 1}}},
	}}
	if got := fleetLabel(cfg); got != "metro-ems,metro-fire" {
		t.Fatalf("expected joined fleet label, got %q", got)
	}
	if got := totalVehicles(cfg); got != 4 {
		t.Fatalf("expected 4 vehicles, got %d", got)
	}
}

func TestResolveScenario(t *testing.T) {
	s, err := resolveScenario("")
	if err != nil || s != nil {
		t.Fatalf("expected nil scenario for empty name, got %v, %v", s, err)
	}
	s, err = resolveScenario("rush-hour")
	if err != nil {
		t.Fatalf("built-in lookup failed: %v", err)
	}
	if s == nil || s.Name != "Rush Hour" {
		t.Fatalf("expected rush-hour scenario, got %+v", s)
	}
	if _, err := resolveScenario("no-such-scenario.yaml"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}
