// ColorWriter prints human-friendly, colorized fleet output to STDOUT.
package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorWriter prints telemetry, alerts, dispatch events, and state
// rows using ANSI colors.
type ColorWriter struct {
	fleetID  string
	vehicles int
	tick     time.Duration
	out      io.Writer
	once     sync.Once
}

// NewColorWriter creates a ColorWriter writing to os.Stdout.
func NewColorWriter(fleetID string, vehicles int, tick time.Duration) *ColorWriter {
	return &ColorWriter{
		fleetID:  fleetID,
		vehicles: vehicles,
		tick:     tick,
		out:      os.Stdout,
	}
}

func (w *ColorWriter) printOverview() {
	fmt.Fprintln(w.out, "Fleet Simulation:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fleet:\t%s\n", w.fleetID)
	fmt.Fprintf(tw, "Vehicles:\t%d\n", w.vehicles)
	fmt.Fprintf(tw, "Tick:\t%s\n", w.tick)
	tw.Flush()
	fmt.Fprintln(w.out)
}

func statusColor(s telemetry.OperationalStatus) string {
	switch s {
	case telemetry.StatusEnRoute, telemetry.StatusOnScene:
		return colorCyan
	case telemetry.StatusMaintenance, telemetry.StatusReturning:
		return colorYellow
	case telemetry.StatusOutOfService, telemetry.StatusOffline:
		return colorRed
	default:
		return colorGreen
	}
}

func severityColor(s rules.Severity) string {
	switch s {
	case rules.SeverityCritical:
		return colorRed
	case rules.SeverityWarning:
		return colorYellow
	default:
		return colorGreen
	}
}

// Write outputs a single telemetry snapshot in colorized format.
func (w *ColorWriter) Write(row telemetry.Snapshot) error {
	w.once.Do(w.printOverview)

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%svehicle=%s%s ", colorBlue, row.VehicleID, colorReset)
	fmt.Fprintf(w.out, "%sstatus=%s%s ", statusColor(row.Status), row.Status, colorReset)
	fmt.Fprintf(w.out, "seq=%d ", row.SequenceNumber)
	fmt.Fprintf(w.out, "%sspd=%.1f%s ", colorYellow, row.SpeedKMH, colorReset)
	fmt.Fprintf(w.out, "%seng=%.1fC%s ", colorMagenta, row.EngineTempCelsius, colorReset)
	fmt.Fprintf(w.out, "%sbatt=%.1fV%s ", colorCyan, row.BatteryVoltage, colorReset)
	fmt.Fprintf(w.out, "%sfuel=%.0f%%%s ", colorGreen, row.FuelLevelPercent, colorReset)
	fmt.Fprintf(w.out, "%spos=(%.5f,%.5f)%s", colorGray, row.Location.Lat, row.Location.Lon, colorReset)
	if row.SirenActive {
		fmt.Fprintf(w.out, " %ssiren%s", colorRed, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple telemetry snapshots.
func (w *ColorWriter) WriteBatch(rows []telemetry.Snapshot) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteAlert prints an alert with severity coloring.
func (w *ColorWriter) WriteAlert(a rules.Alert) error {
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s[%s]%s %sALERT%s vehicle=%s component=%s severity=%s%s%s prob=%.2f action=%q\n",
		colorGray, a.Timestamp.Format(time.RFC3339), colorReset,
		severityColor(a.Severity), colorReset, a.VehicleID, a.Component,
		severityColor(a.Severity), a.Severity, colorReset,
		a.FailureProbability, a.RecommendedAction)
	return nil
}

// WriteAlerts prints multiple alerts.
func (w *ColorWriter) WriteAlerts(rows []rules.Alert) error {
	for _, a := range rows {
		_ = w.WriteAlert(a)
	}
	return nil
}

// WriteDispatchEvent prints a dispatch coordination event.
func (w *ColorWriter) WriteDispatchEvent(e telemetry.DispatchEventRow) error {
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s[%s]%s %sDISPATCH%s type=%s emergency=%s vehicles=%s\n",
		colorGray, e.Timestamp.Format(time.RFC3339), colorReset,
		colorCyan, colorReset, e.EventType, e.EmergencyID,
		strings.Join(e.VehicleIDs, ","))
	return nil
}

// WriteDispatchEvents prints multiple dispatch events.
func (w *ColorWriter) WriteDispatchEvents(rows []telemetry.DispatchEventRow) error {
	for _, e := range rows {
		_ = w.WriteDispatchEvent(e)
	}
	return nil
}

// WriteState prints harness metrics.
func (w *ColorWriter) WriteState(row telemetry.SimulationStateRow) error {
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s[%s]%s %sSTATE%s vehicles=%d failures=%d emergencies=%d msgs=%d drops=%d chaos=%t\n",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, colorReset, row.ActiveVehicles, row.ActiveFailures,
		row.ActiveEmergencies, row.MessagesPublished, row.PublishFailures, row.ChaosMode)
	return nil
}

// WriteStates prints multiple state rows.
func (w *ColorWriter) WriteStates(rows []telemetry.SimulationStateRow) error {
	for _, r := range rows {
		_ = w.WriteState(r)
	}
	return nil
}
