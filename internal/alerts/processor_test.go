package alerts

import (
	"fmt"
	"testing"
	"time"

	"aegis-sim/internal/rules"
)

func TestProcessOpensNewEpisode(t *testing.T) {
	p := testProcessor()

	out := p.Process(alert("al-1", "amb-001", "engine", rules.SeverityWarning, 4), false)
	if !out.Opened || out.Duplicate || out.Escalated {
		t.Fatalf("expected a fresh episode, got %+v", out)
	}

	open := p.Open()
	if len(open) != 1 {
		t.Fatalf("expected 1 open record, got %d", len(open))
	}
	if open[0].Occurrences != 1 || open[0].Alert.AlertID != "al-1" {
		t.Errorf("unexpected record: %+v", open[0])
	}
}

func TestProcessDeduplicatesWithinEpisode(t *testing.T) {
	p := testProcessor()

	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityWarning, 4), false)
	out := p.Process(alert("al-2", "amb-001", "engine", rules.SeverityWarning, 4), false)

	if !out.Duplicate {
		t.Fatalf("expected duplicate classification, got %+v", out)
	}
	open := p.Open()
	if len(open) != 1 || open[0].Occurrences != 2 {
		t.Errorf("expected one record with 2 occurrences, got %+v", open)
	}
	if open[0].Alert.AlertID != "al-1" {
		t.Errorf("duplicate must not replace the open alert, got %s", open[0].Alert.AlertID)
	}
}

func TestEscalationSupersedesOpenRecord(t *testing.T) {
	p := testProcessor()

	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityWarning, 4), false)
	out := p.Process(alert("al-2", "amb-001", "engine", rules.SeverityCritical, 1), false)

	if !out.Escalated || !out.Opened {
		t.Fatalf("expected escalation, got %+v", out)
	}
	open := p.Open()
	if len(open) != 1 || open[0].Alert.Severity != rules.SeverityCritical {
		t.Fatalf("expected the critical record open, got %+v", open)
	}

	hist := p.History()
	if len(hist) != 1 || !hist[0].Superseded {
		t.Errorf("expected superseded warning in history, got %+v", hist)
	}
}

func TestEscalationKeepsEpisodeStart(t *testing.T) {
	p := testProcessor()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := start
	p.now = func() time.Time { return current }

	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityWarning, 4), false)
	current = current.Add(10 * time.Minute)
	p.Process(alert("al-2", "amb-001", "engine", rules.SeverityCritical, 1), false)

	open := p.Open()
	if !open[0].FirstSeen.Equal(start) {
		t.Errorf("escalated record should keep episode start %v, got %v", start, open[0].FirstSeen)
	}
	if !open[0].LastSeen.Equal(current) {
		t.Errorf("expected last seen %v, got %v", current, open[0].LastSeen)
	}
}

func TestRecoveryClosesEpisode(t *testing.T) {
	p := testProcessor()

	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityCritical, 1), false)
	rec := alert("al-2", "amb-001", "engine", rules.SeverityInfo, 0)
	rec.Category = rules.CategoryRecovery
	out := p.Process(rec, false)

	if !out.Resolved {
		t.Fatalf("expected resolution, got %+v", out)
	}
	if len(p.Open()) != 0 {
		t.Error("expected no open records after recovery")
	}
	hist := p.History()
	if len(hist) != 1 || !hist[0].Resolved {
		t.Errorf("expected resolved record in history, got %+v", hist)
	}
}

func TestRecoveryWithoutOpenEpisode(t *testing.T) {
	p := testProcessor()

	rec := alert("al-1", "amb-001", "engine", rules.SeverityInfo, 0)
	rec.Category = rules.CategoryRecovery
	out := p.Process(rec, false)

	if !out.Resolved {
		t.Fatalf("stray recovery should still classify as resolved, got %+v", out)
	}
	if len(p.History()) != 0 {
		t.Error("stray recovery must not invent history")
	}
}

func TestPriorityScoring(t *testing.T) {
	cases := map[string]struct {
		severity rules.Severity
		likely   float64
		mission  bool
		expected int
	}{
		"critical imminent on mission caps at 100": {rules.SeverityCritical, 0.4, true, 100},
		"critical within the hour":                 {rules.SeverityCritical, 1, false, 90},
		"critical with a day of margin":            {rules.SeverityCritical, 24, false, 70},
		"warning within two hours":                 {rules.SeverityWarning, 2, false, 55},
		"warning within a shift":                   {rules.SeverityWarning, 6, false, 45},
		"warning far out on mission":               {rules.SeverityWarning, 12, true, 60},
		"info with no prediction":                  {rules.SeverityInfo, 0, false, 10},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := testProcessor()
			out := p.Process(alert("al-1", "amb-001", "engine", tc.severity, tc.likely), tc.mission)
			if out.Priority != tc.expected {
				t.Errorf("expected priority %d, got %d", tc.expected, out.Priority)
			}
		})
	}
}

func TestAcknowledge(t *testing.T) {
	p := testProcessor()
	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityCritical, 1), false)

	if err := p.Acknowledge("al-1", "operator-7", "dispatched replacement unit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	open := p.Open()
	if !open[0].Acknowledged || open[0].AcknowledgedBy != "operator-7" {
		t.Errorf("acknowledgment not recorded: %+v", open[0])
	}

	if err := p.Acknowledge("missing", "operator-7", ""); err != ErrUnknownAlert {
		t.Errorf("expected ErrUnknownAlert, got %v", err)
	}
}

func TestFindSearchesOpenAndHistory(t *testing.T) {
	p := testProcessor()
	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityWarning, 4), false)

	rec, ok := p.Find("al-1")
	if !ok || rec.Alert.VehicleID != "amb-001" {
		t.Fatalf("expected open record for al-1, got %+v ok=%v", rec, ok)
	}

	// Escalation closes al-1 into history; Find must still see it.
	p.Process(alert("al-2", "amb-001", "engine", rules.SeverityCritical, 1), false)
	if rec, ok := p.Find("al-1"); !ok || !rec.Superseded {
		t.Errorf("expected superseded al-1 in history, got %+v ok=%v", rec, ok)
	}

	if _, ok := p.Find("missing"); ok {
		t.Error("expected miss for unknown alert id")
	}
}

func TestUnacknowledgedCritical(t *testing.T) {
	p := testProcessor()
	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityCritical, 1), false)
	p.Process(alert("al-2", "amb-002", "battery", rules.SeverityCritical, 1), false)
	p.Process(alert("al-3", "amb-003", "fuel", rules.SeverityWarning, 2), false)

	if err := p.Acknowledge("al-1", "operator-7", "handled"); err != nil {
		t.Fatal(err)
	}

	unacked := p.UnacknowledgedCritical()
	if len(unacked) != 1 || unacked[0].Alert.AlertID != "al-2" {
		t.Errorf("expected only al-2 unacknowledged, got %+v", unacked)
	}
}

func TestHasOpenCritical(t *testing.T) {
	p := testProcessor()
	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityCritical, 1), false)
	p.Process(alert("al-2", "amb-002", "fuel", rules.SeverityWarning, 2), false)

	if !p.HasOpenCritical("amb-001") {
		t.Error("expected amb-001 flagged with an open critical")
	}
	if p.HasOpenCritical("amb-002") {
		t.Error("warning alone must not flag amb-002")
	}

	rec := alert("al-3", "amb-001", "engine", rules.SeverityInfo, 0)
	rec.Category = rules.CategoryRecovery
	p.Process(rec, false)

	if p.HasOpenCritical("amb-001") {
		t.Error("expected recovery to clear the critical flag")
	}
}

func TestOpenOrdersByPriority(t *testing.T) {
	p := testProcessor()
	p.Process(alert("al-1", "amb-001", "fuel", rules.SeverityWarning, 6), false)
	p.Process(alert("al-2", "amb-002", "engine", rules.SeverityCritical, 1), true)
	p.Process(alert("al-3", "amb-003", "battery", rules.SeverityWarning, 2), false)

	open := p.Open()
	if open[0].Alert.AlertID != "al-2" || open[1].Alert.AlertID != "al-3" || open[2].Alert.AlertID != "al-1" {
		t.Errorf("unexpected ordering: %s %s %s",
			open[0].Alert.AlertID, open[1].Alert.AlertID, open[2].Alert.AlertID)
	}
}

func TestCountsBySeverity(t *testing.T) {
	p := testProcessor()
	p.Process(alert("al-1", "amb-001", "engine", rules.SeverityCritical, 1), false)
	p.Process(alert("al-2", "amb-002", "battery", rules.SeverityWarning, 2), false)
	p.Process(alert("al-3", "amb-003", "fuel", rules.SeverityWarning, 2), false)

	counts := p.Counts()
	if counts["critical"] != 1 || counts["warning"] != 2 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	p := testProcessor()

	for i := 0; i < maxHistory+20; i++ {
		vehicle := fmt.Sprintf("amb-%03d", i)
		p.Process(alert(fmt.Sprintf("al-%d-open", i), vehicle, "engine", rules.SeverityWarning, 4), false)
		rec := alert(fmt.Sprintf("al-%d-close", i), vehicle, "engine", rules.SeverityInfo, 0)
		rec.Category = rules.CategoryRecovery
		p.Process(rec, false)
	}

	if got := len(p.History()); got != maxHistory {
		t.Errorf("expected history capped at %d, got %d", maxHistory, got)
	}
}

// helpers

func testProcessor() *Processor {
	p := NewProcessor()
	p.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func alert(id, vehicleID, component string, sev rules.Severity, likelyHours float64) rules.Alert {
	return rules.Alert{
		AlertID:                     id,
		VehicleID:                   vehicleID,
		Timestamp:                   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Severity:                    sev,
		Category:                    "mechanical",
		Component:                   component,
		FailureProbability:          0.8,
		Confidence:                  0.9,
		PredictedFailureLikelyHours: likelyHours,
	}
}
