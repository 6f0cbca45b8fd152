package sink

import (
	"testing"

	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

type countWriter struct {
	writes int
	alerts int
	events int
	states int
}

func (c *countWriter) Write(telemetry.Snapshot) error {
	c.writes++
	return nil
}

func (c *countWriter) WriteAlert(rules.Alert) error {
	c.alerts++
	return nil
}

func (c *countWriter) WriteDispatchEvent(telemetry.DispatchEventRow) error {
	c.events++
	return nil
}

func (c *countWriter) WriteState(telemetry.SimulationStateRow) error {
	c.states++
	return nil
}

type batchCountWriter struct {
	countWriter
	batches int
}

func (c *batchCountWriter) WriteBatch(rows []telemetry.Snapshot) error {
	c.batches++
	c.writes += len(rows)
	return nil
}

func TestMultiWriterFansOut(t *testing.T) {
	a := &countWriter{}
	b := &countWriter{}
	mw := NewMultiWriter(
		[]TelemetryWriter{a, b},
		[]AlertWriter{a},
		[]DispatchEventWriter{b},
		[]StateWriter{a, b},
	)

	if err := mw.Write(telemetry.Snapshot{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mw.WriteAlert(rules.Alert{}); err != nil {
		t.Fatalf("WriteAlert: %v", err)
	}
	if err := mw.WriteDispatchEvent(telemetry.DispatchEventRow{}); err != nil {
		t.Fatalf("WriteDispatchEvent: %v", err)
	}
	if err := mw.WriteState(telemetry.SimulationStateRow{}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	if a.writes != 1 || b.writes != 1 {
		t.Errorf("telemetry fan-out: a=%d b=%d", a.writes, b.writes)
	}
	if a.alerts != 1 || b.alerts != 0 {
		t.Errorf("alert fan-out: a=%d b=%d", a.alerts, b.alerts)
	}
	if a.events != 0 || b.events != 1 {
		t.Errorf("dispatch fan-out: a=%d b=%d", a.events, b.events)
	}
	if a.states != 1 || b.states != 1 {
		t.Errorf("state fan-out: a=%d b=%d", a.states, b.states)
	}
}

func TestMultiWriterUsesBatchModeWhenSupported(t *testing.T) {
	plain := &countWriter{}
	batched := &batchCountWriter{}
	mw := NewMultiWriter([]TelemetryWriter{plain, batched}, nil, nil, nil)

	rows := make([]telemetry.Snapshot, 3)
	if err := mw.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	if plain.writes != 3 {
		t.Errorf("plain writer should receive row-by-row, got %d writes", plain.writes)
	}
	if batched.batches != 1 || batched.writes != 3 {
		t.Errorf("batch writer should receive one batch of 3, got batches=%d writes=%d",
			batched.batches, batched.writes)
	}
}
