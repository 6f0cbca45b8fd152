package sink

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"aegis-sim/internal/telemetry"
)

type collectWriter struct{ rows []telemetry.Snapshot }

func (c *collectWriter) Write(r telemetry.Snapshot) error {
	c.rows = append(c.rows, r)
	return nil
}

func TestReplayLog(t *testing.T) {
	rows := []telemetry.Snapshot{
		{VehicleID: "amb-001", SequenceNumber: 1, Timestamp: time.Unix(0, 0)},
		{VehicleID: "amb-001", SequenceNumber: 2, Timestamp: time.Unix(1, 0)},
		{VehicleID: "fire-007", SequenceNumber: 1, Timestamp: time.Unix(1, 0)},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	cw := &collectWriter{}
	if err := ReplayLog(&buf, cw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].VehicleID != r.VehicleID || cw.rows[i].SequenceNumber != r.SequenceNumber {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReplayLogEmptyInput(t *testing.T) {
	cw := &collectWriter{}
	if err := ReplayLog(bytes.NewReader(nil), cw, 1); err != nil {
		t.Fatalf("ReplayLog on empty input: %v", err)
	}
	if len(cw.rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(cw.rows))
	}
}
