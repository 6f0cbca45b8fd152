package sink

import (
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// MultiWriter fans each stream out to multiple writers.
type MultiWriter struct {
	teleWriters     []TelemetryWriter
	alertWriters    []AlertWriter
	dispatchWriters []DispatchEventWriter
	stateWriters    []StateWriter
}

// NewMultiWriter creates a new MultiWriter. Any slice may be empty.
func NewMultiWriter(tws []TelemetryWriter, aws []AlertWriter, dws []DispatchEventWriter, sws []StateWriter) *MultiWriter {
	return &MultiWriter{
		teleWriters:     tws,
		alertWriters:    aws,
		dispatchWriters: dws,
		stateWriters:    sws,
	}
}

// Write sends a telemetry snapshot to all telemetry writers.
func (mw *MultiWriter) Write(row telemetry.Snapshot) error {
	for _, w := range mw.teleWriters {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple snapshots to all telemetry writers, using
// batch mode where supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.Snapshot) error {
	for _, w := range mw.teleWriters {
		if bw, ok := w.(batchTelemetryWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteAlert sends an alert to all alert writers.
func (mw *MultiWriter) WriteAlert(a rules.Alert) error {
	for _, w := range mw.alertWriters {
		if err := w.WriteAlert(a); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlerts sends multiple alerts to all alert writers, using batch
// mode where supported.
func (mw *MultiWriter) WriteAlerts(rows []rules.Alert) error {
	for _, w := range mw.alertWriters {
		if bw, ok := w.(batchAlertWriter); ok {
			if err := bw.WriteAlerts(rows); err != nil {
				return err
			}
			continue
		}
		for _, a := range rows {
			if err := w.WriteAlert(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteDispatchEvent sends a dispatch event to all dispatch writers.
func (mw *MultiWriter) WriteDispatchEvent(e telemetry.DispatchEventRow) error {
	for _, w := range mw.dispatchWriters {
		if err := w.WriteDispatchEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteDispatchEvents sends multiple dispatch events to all dispatch
// writers, using batch mode where supported.
func (mw *MultiWriter) WriteDispatchEvents(rows []telemetry.DispatchEventRow) error {
	for _, w := range mw.dispatchWriters {
		if bw, ok := w.(batchDispatchEventWriter); ok {
			if err := bw.WriteDispatchEvents(rows); err != nil {
				return err
			}
			continue
		}
		for _, e := range rows {
			if err := w.WriteDispatchEvent(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteState sends a state row to all state writers.
func (mw *MultiWriter) WriteState(row telemetry.SimulationStateRow) error {
	for _, w := range mw.stateWriters {
		if err := w.WriteState(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteStates sends multiple state rows to all state writers, using
// batch mode where supported.
func (mw *MultiWriter) WriteStates(rows []telemetry.SimulationStateRow) error {
	for _, w := range mw.stateWriters {
		if bw, ok := w.(batchStateWriter); ok {
			if err := bw.WriteStates(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteState(r); err != nil {
				return err
			}
		}
	}
	return nil
}
