package sink

import "aegis-sim/internal/telemetry"

// DispatchEventWriter handles dispatch coordination events.
type DispatchEventWriter interface {
	WriteDispatchEvent(telemetry.DispatchEventRow) error
}

// Optional: dispatch writers may support batch mode.
type batchDispatchEventWriter interface {
	WriteDispatchEvents([]telemetry.DispatchEventRow) error
}
