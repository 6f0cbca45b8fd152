package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// JSONWriter prints every stream as JSON lines, one object per line.
type JSONWriter struct {
	out io.Writer
}

// NewJSONWriter creates a JSONWriter writing to os.Stdout.
func NewJSONWriter() *JSONWriter {
	return &JSONWriter{out: os.Stdout}
}

// Write outputs a telemetry snapshot in JSON format.
func (w *JSONWriter) Write(row telemetry.Snapshot) error {
	data, _ := json.Marshal(row)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteBatch outputs multiple telemetry snapshots.
func (w *JSONWriter) WriteBatch(rows []telemetry.Snapshot) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteAlert outputs an alert in JSON format.
func (w *JSONWriter) WriteAlert(a rules.Alert) error {
	data, _ := json.Marshal(a)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteAlerts outputs multiple alerts.
func (w *JSONWriter) WriteAlerts(rows []rules.Alert) error {
	for _, a := range rows {
		_ = w.WriteAlert(a)
	}
	return nil
}

// WriteDispatchEvent outputs a dispatch event in JSON format.
func (w *JSONWriter) WriteDispatchEvent(e telemetry.DispatchEventRow) error {
	data, _ := json.Marshal(e)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteDispatchEvents outputs multiple dispatch events.
func (w *JSONWriter) WriteDispatchEvents(rows []telemetry.DispatchEventRow) error {
	for _, e := range rows {
		_ = w.WriteDispatchEvent(e)
	}
	return nil
}

// WriteState outputs a simulation state row in JSON format.
func (w *JSONWriter) WriteState(row telemetry.SimulationStateRow) error {
	data, _ := json.Marshal(row)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteStates outputs multiple simulation state rows.
func (w *JSONWriter) WriteStates(rows []telemetry.SimulationStateRow) error {
	for _, r := range rows {
		_ = w.WriteState(r)
	}
	return nil
}
