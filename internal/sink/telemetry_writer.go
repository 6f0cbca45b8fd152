// Package sink persists the fleet's data streams: telemetry snapshots,
// alerts, dispatch events, and harness state rows. Writers share one
// shape per stream; batch support is an optional upgrade detected by
// type assertion.
package sink

import "aegis-sim/internal/telemetry"

// TelemetryWriter handles telemetry snapshots.
type TelemetryWriter interface {
	Write(telemetry.Snapshot) error
}

// Optional: writers may support batch mode for telemetry.
type batchTelemetryWriter interface {
	WriteBatch([]telemetry.Snapshot) error
}
