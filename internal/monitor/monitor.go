// Package monitor renders a live terminal view of the fleet: the
// telemetry feed, open alerts, and dispatch activity, all read off the
// broker the same way the orchestrator reads them.
package monitor

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/config"
	"aegis-sim/internal/dispatch"
	"aegis-sim/internal/emergency"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a telemetry feed line for the main viewport.
type logMsg struct{ line string }

// alertMsg carries an alert line and its row for the counters.
type alertMsg struct {
	line string
	row  rules.Alert
}

// dispatchMsg carries a dispatch activity line.
type dispatchMsg struct{ line string }

// fleetMsg carries one fleet's status payload.
type fleetMsg struct{ bus.FleetStatusPayload }

// vehicleMsg carries a snapshot for the position and fuel counters.
type vehicleMsg struct{ telemetry.Snapshot }

// Monitor subscribes to the broker and feeds a bubbletea program.
type Monitor struct {
	bus         bus.Bus
	cfg         *config.Config
	program     teaProgram
	fleetColors map[string]string
	done        chan struct{}
	sendSignal  atomic.Bool
}

// New starts the bubbletea program and returns the monitor. Call Run
// to start consuming the broker and Close to tear the screen down.
func New(cfg *config.Config, b bus.Bus) *Monitor {
	colors := make(map[string]string)
	for i, f := range cfg.Fleets {
		colors[f.ID] = fleetPalette[i%len(fleetPalette)]
	}

	w := &Monitor{
		bus:         b,
		cfg:         cfg,
		fleetColors: colors,
		done:        make(chan struct{}),
	}
	w.sendSignal.Store(true)

	m := newModel(cfg, colors, w.raiseEmergency)
	p := tea.NewProgram(m, tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		// The user quit from inside the TUI; interrupt the process so
		// the surrounding command unwinds like on ctrl+c.
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Run consumes broker streams into the TUI until the context is
// canceled.
func (w *Monitor) Run(ctx context.Context) error {
	streams := []string{
		bus.Pattern(bus.ComponentTelemetry),
		bus.Pattern(bus.ComponentAlerts),
		bus.Pattern(bus.ComponentDashboard),
		bus.EmergencyChannel,
		bus.DispatchAssignedPattern,
		bus.DispatchResolvedPattern,
	}
	for _, pattern := range streams {
		ch, err := w.bus.Subscribe(ctx, pattern)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", pattern, err)
		}
		go func() {
			for in := range ch {
				w.consume(in)
			}
		}()
	}
	logging.FromContext(ctx).Info("monitor attached",
		"fleets", len(w.cfg.Fleets), "broker", w.cfg.Broker.Mode)
	<-ctx.Done()
	return nil
}

func (w *Monitor) consume(in bus.Inbound) {
	switch in.Message.MessageType {
	case bus.TypeTelemetryUpdate:
		var snap telemetry.Snapshot
		if in.Message.Decode(&snap) != nil {
			return
		}
		w.program.Send(logMsg{line: telemetryLine(w.fleetColors[snap.FleetID], snap)})
		w.program.Send(vehicleMsg{Snapshot: snap})
	case bus.TypeAlertGenerated:
		var al rules.Alert
		if in.Message.Decode(&al) != nil {
			return
		}
		w.program.Send(alertMsg{line: alertLine(al), row: al})
	case bus.TypeFleetStatus:
		var sum bus.FleetStatusPayload
		if in.Message.Decode(&sum) != nil {
			return
		}
		w.program.Send(fleetMsg{FleetStatusPayload: sum})
	case bus.TypeEmergencyNew:
		var p bus.EmergencyPayload
		if in.Message.Decode(&p) != nil {
			return
		}
		w.program.Send(dispatchMsg{line: emergencyLine(p)})
	case bus.TypeDispatchAssigned:
		var d dispatch.Dispatch
		if in.Message.Decode(&d) != nil {
			return
		}
		w.program.Send(dispatchMsg{line: assignmentLine(d)})
	case bus.TypeEmergencyResolved:
		var p bus.EmergencyPayload
		if in.Message.Decode(&p) != nil {
			return
		}
		w.program.Send(dispatchMsg{line: resolvedLine(p)})
	}
}

// raiseEmergency publishes an operator-entered incident on the shared
// emergency channel, exactly like the simulation harness does.
func (w *Monitor) raiseEmergency(spec raiseSpec) {
	em := bus.EmergencyPayload{
		EmergencyID:   fmt.Sprintf("em-op-%s", uuid.NewString()[:8]),
		Type:          spec.incident,
		SeverityLevel: spec.severity,
		Location:      telemetry.Position{Lat: spec.lat, Lon: spec.lon},
		ReportedAt:    time.Now().UTC(),
	}
	prio := bus.PriorityHigh
	if spec.severity >= int(emergency.SeveritySevere) {
		prio = bus.PriorityCritical
	}
	msg, err := bus.NewMessage(bus.TypeEmergencyNew, "monitor", bus.DestinationOrchestrator, prio, em)
	if err != nil {
		return
	}
	_ = w.bus.Publish(context.Background(), bus.EmergencyChannel, msg)
}

// Close shuts the TUI down and waits for the terminal to restore.
func (w *Monitor) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func telemetryLine(fleetColor string, s telemetry.Snapshot) string {
	if fleetColor == "" {
		fleetColor = colorBlue
	}
	statusColor := colorGreen
	switch s.Status {
	case telemetry.StatusEnRoute, telemetry.StatusOnScene:
		statusColor = colorCyan
	case telemetry.StatusMaintenance, telemetry.StatusReturning:
		statusColor = colorYellow
	case telemetry.StatusOutOfService, telemetry.StatusOffline:
		statusColor = colorRed
	}

	line := fmt.Sprintf("%s[%s]%s %sfleet=%s%s %svehicle=%s%s %sstatus=%s%s %sspd=%.1f%s %sfuel=%.0f%%%s %seng=%.1fC%s %sbatt=%.1fV%s %spos=(%.5f,%.5f)%s",
		colorGray, s.Timestamp.Format(time.RFC3339), colorReset,
		fleetColor, s.FleetID, colorReset,
		colorWhite, s.VehicleID, colorReset,
		statusColor, s.Status, colorReset,
		colorYellow, s.SpeedKMH, colorReset,
		colorGreen, s.FuelLevelPercent, colorReset,
		colorMagenta, s.EngineTempCelsius, colorReset,
		colorCyan, s.BatteryVoltage, colorReset,
		colorGray, s.Location.Lat, s.Location.Lon, colorReset,
	)
	if s.SirenActive {
		line += fmt.Sprintf(" %ssiren%s", colorRed, colorReset)
	}
	return line
}

func alertLine(al rules.Alert) string {
	sevColor := colorGreen
	switch al.Severity {
	case rules.SeverityCritical:
		sevColor = colorRed
	case rules.SeverityWarning:
		sevColor = colorYellow
	}
	line := fmt.Sprintf("%s[%s]%s %sALERT%s %svehicle=%s%s %s%s%s %scomponent=%s%s %sprob=%.2f%s",
		colorGray, al.Timestamp.Format(time.RFC3339), colorReset,
		sevColor, colorReset,
		colorWhite, al.VehicleID, colorReset,
		sevColor, al.Severity, colorReset,
		colorBlue, al.Component, colorReset,
		colorMagenta, al.FailureProbability, colorReset)
	if al.RecommendedAction != "" {
		line += fmt.Sprintf(" %s%s%s", colorGray, al.RecommendedAction, colorReset)
	}
	return line
}

func emergencyLine(p bus.EmergencyPayload) string {
	return fmt.Sprintf("%s[%s]%s %sEMERGENCY%s %s%s%s %stype=%s%s %sseverity=%d%s %sat=(%.5f,%.5f)%s",
		colorGray, p.ReportedAt.Format(time.RFC3339), colorReset,
		colorRed, colorReset,
		colorWhite, p.EmergencyID, colorReset,
		colorMagenta, p.Type, colorReset,
		colorYellow, p.SeverityLevel, colorReset,
		colorGray, p.Location.Lat, p.Location.Lon, colorReset)
}

func assignmentLine(d dispatch.Dispatch) string {
	units := make([]string, len(d.Units))
	for i, u := range d.Units {
		units[i] = u.VehicleID
	}
	line := fmt.Sprintf("%s[%s]%s %sDISPATCH%s %s%s%s %sunits=%v%s",
		colorGray, d.CreatedAt.Format(time.RFC3339), colorReset,
		colorCyan, colorReset,
		colorWhite, d.EmergencyID, colorReset,
		colorBlue, units, colorReset)
	if len(d.Shortfall) > 0 {
		line += fmt.Sprintf(" %sshort=%v%s", colorRed, d.Shortfall, colorReset)
	}
	return line
}

func resolvedLine(p bus.EmergencyPayload) string {
	return fmt.Sprintf("%s%s%s %sRESOLVED%s %s%s%s",
		colorGray, time.Now().UTC().Format(time.RFC3339), colorReset,
		colorGreen, colorReset,
		colorWhite, p.EmergencyID, colorReset)
}
