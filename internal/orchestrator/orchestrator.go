// Package orchestrator runs the coordination core. It consumes every
// vehicle stream off the broker into the fleet registry and alert
// ledger, turns emergencies into dispatches, sweeps liveness and
// command timeouts, and publishes fleet status for monitors. Vehicles
// never talk to each other; everything meets here.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aegis-sim/internal/alerts"
	"aegis-sim/internal/bus"
	"aegis-sim/internal/config"
	"aegis-sim/internal/dispatch"
	"aegis-sim/internal/emergency"
	"aegis-sim/internal/fleet"
	"aegis-sim/internal/sink"
)

// Options carries the optional wiring the CLI sets up.
type Options struct {
	// Cache mirrors latest vehicle state into Redis for external
	// consumers. Nil disables it.
	Cache *StateCache

	// DispatchHistory records assignment and release events. Nil
	// disables it.
	DispatchHistory sink.DispatchEventWriter
}

// Orchestrator is the fleet coordination runtime.
type Orchestrator struct {
	cfg  *config.Config
	bus  bus.Bus
	opts Options

	roster    *fleet.Manager
	alertProc *alerts.Processor
	engine    *dispatch.Engine
	commander *dispatch.Commander

	emergencies *emergencyBook

	now func() time.Time
}

// New wires the coordination core over the given broker. The dispatch
// engine's availability gate is the alert ledger: a vehicle with an
// open critical alert is never selected, however idle it reports
// itself.
func New(cfg *config.Config, b bus.Bus, opts Options) *Orchestrator {
	roster := fleet.NewManager(time.Duration(cfg.Intervals.LivenessTimeoutSeconds) * time.Second)
	alertProc := alerts.NewProcessor()
	o := &Orchestrator{
		cfg:  cfg,
		bus:  b,
		opts: opts,

		roster:    roster,
		alertProc: alertProc,
		engine:    dispatch.NewEngine(roster, alertProc.HasOpenCritical),
		commander: dispatch.NewCommander(b, time.Duration(cfg.Intervals.CommandTimeoutSeconds)*time.Second),

		emergencies: newEmergencyBook(),

		now: time.Now,
	}
	return o
}

// Roster exposes the fleet registry for the admin surface.
func (o *Orchestrator) Roster() *fleet.Manager { return o.roster }

// Alerts exposes the alert ledger for the admin surface.
func (o *Orchestrator) Alerts() *alerts.Processor { return o.alertProc }

// CommandResults returns resolved command outcomes, oldest first.
func (o *Orchestrator) CommandResults() []dispatch.Result { return o.commander.Results() }

// PendingCommands reports commands still awaiting acknowledgment.
func (o *Orchestrator) PendingCommands() int { return o.commander.PendingCount() }

// ActiveEmergencies returns open incidents ordered by creation time.
func (o *Orchestrator) ActiveEmergencies() []emergency.Emergency {
	out := o.emergencies.list()
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// FleetSummaries assembles one status payload per configured fleet,
// in configuration order.
func (o *Orchestrator) FleetSummaries() []bus.FleetStatusPayload {
	out := make([]bus.FleetStatusPayload, 0, len(o.cfg.Fleets))
	for _, f := range o.cfg.Fleets {
		out = append(out, o.fleetStatus(f.ID))
	}
	return out
}

// AcknowledgeAlert closes an open alert on behalf of an operator and
// tells the vehicle its alert was seen.
func (o *Orchestrator) AcknowledgeAlert(ctx context.Context, alertID, by, actionTaken string) error {
	rec, ok := o.alertProc.Find(alertID)
	if !ok {
		return alerts.ErrUnknownAlert
	}
	if err := o.alertProc.Acknowledge(alertID, by, actionTaken); err != nil {
		return err
	}

	v, ok := o.roster.Vehicle(rec.Alert.VehicleID)
	if !ok {
		return nil
	}
	msg, err := bus.NewMessage(bus.TypeAlertAcknowledge, bus.DestinationOrchestrator, v.VehicleID,
		bus.PriorityNormal, bus.AlertAcknowledgmentPayload{
			AlertID:        alertID,
			AcknowledgedBy: by,
			ActionTaken:    actionTaken,
		})
	if err != nil {
		return err
	}
	channel := bus.ChannelName(v.FleetID, bus.ComponentCommands, v.VehicleID)
	if err := o.bus.Publish(ctx, channel, msg); err != nil {
		return fmt.Errorf("publish acknowledgment for %s: %w", alertID, err)
	}
	return nil
}

// fleetStatus assembles the dashboard payload for one fleet: roster
// totals plus the alert and emergency context the registry does not
// track.
func (o *Orchestrator) fleetStatus(fleetID string) bus.FleetStatusPayload {
	sum := o.roster.Summary(fleetID)

	// Availability mirrors the dispatch gate: idle and no open
	// critical alert.
	for _, v := range o.roster.Available(fleetID) {
		if o.alertProc.HasOpenCritical(v.VehicleID) {
			continue
		}
		sum.AvailableVehicles++
	}

	counts := make(map[string]int)
	for _, rec := range o.alertProc.Open() {
		v, ok := o.roster.Vehicle(rec.Alert.VehicleID)
		if !ok || v.FleetID != fleetID {
			continue
		}
		counts[string(rec.Alert.Severity)]++
	}
	sum.ActiveAlerts = counts
	sum.ActiveEmergencies = o.emergencies.openCount()
	return sum
}
