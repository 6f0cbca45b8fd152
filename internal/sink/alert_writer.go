package sink

import "aegis-sim/internal/rules"

// AlertWriter handles alert records.
type AlertWriter interface {
	WriteAlert(rules.Alert) error
}

// Optional: alert writers may support batch mode.
type batchAlertWriter interface {
	WriteAlerts([]rules.Alert) error
}
