package orchestrator

import (
	"context"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/dispatch"
	"aegis-sim/internal/emergency"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// route hands one inbound envelope to its handler. Malformed payloads
// are logged and dropped; one vehicle's bad message never stalls the
// stream.
func (o *Orchestrator) route(ctx context.Context, in bus.Inbound) {
	switch in.Message.MessageType {
	case bus.TypeTelemetryUpdate:
		o.handleTelemetry(ctx, in)
	case bus.TypeHeartbeat:
		o.handleHeartbeat(ctx, in)
	case bus.TypeAlertGenerated:
		o.handleAlert(ctx, in)
	case bus.TypeStatusChange:
		o.handleStatus(ctx, in)
	case bus.TypeLocalDecision:
		o.handleDecision(ctx, in)
	case bus.TypeEmergencyNew:
		o.handleEmergency(ctx, in)
	}
}

func (o *Orchestrator) handleTelemetry(ctx context.Context, in bus.Inbound) {
	log := logging.FromContext(ctx)
	var snap telemetry.Snapshot
	if err := in.Message.Decode(&snap); err != nil {
		log.Warn("dropping malformed telemetry", "channel", in.Channel, "error", err)
		return
	}

	res := o.roster.Ingest(snap)
	switch {
	case res.Registered:
		log.Info("vehicle registered", "vehicle_id", snap.VehicleID, "fleet_id", snap.FleetID)
	case res.Recovered:
		log.Info("vehicle back online", "vehicle_id", snap.VehicleID)
	}
	if res.Gap > 0 {
		log.Warn("telemetry sequence gap", "vehicle_id", snap.VehicleID, "missed", res.Gap)
	}
	if res.Duplicate {
		return
	}

	if snap.Status == telemetry.StatusOnScene {
		o.vehicleArrived(ctx, snap.VehicleID)
	}
	if o.opts.Cache != nil {
		if err := o.opts.Cache.UpdateVehicle(ctx, snap); err != nil {
			log.Warn("state cache update failed", "vehicle_id", snap.VehicleID, "error", err)
		}
	}
}

func (o *Orchestrator) handleHeartbeat(ctx context.Context, in bus.Inbound) {
	log := logging.FromContext(ctx)
	var hb bus.HeartbeatPayload
	if err := in.Message.Decode(&hb); err != nil {
		log.Warn("dropping malformed heartbeat", "channel", in.Channel, "error", err)
		return
	}
	if o.roster.Heartbeat(hb) {
		log.Info("vehicle back online", "vehicle_id", hb.VehicleID)
	}
}

func (o *Orchestrator) handleAlert(ctx context.Context, in bus.Inbound) {
	log := logging.FromContext(ctx)
	var al rules.Alert
	if err := in.Message.Decode(&al); err != nil {
		log.Warn("dropping malformed alert", "channel", in.Channel, "error", err)
		return
	}

	onMission := false
	if v, ok := o.roster.Vehicle(al.VehicleID); ok {
		onMission = v.EmergencyID != ""
	}
	out := o.alertProc.Process(al, onMission)

	switch {
	case out.Resolved:
		log.Info("alert episode cleared", "vehicle_id", al.VehicleID, "component", al.Component)
	case out.Escalated:
		log.Warn("alert escalated",
			"vehicle_id", al.VehicleID,
			"component", al.Component,
			"severity", al.Severity,
			"priority", out.Priority)
	case out.Opened && al.Severity == rules.SeverityCritical:
		log.Warn("critical alert opened",
			"vehicle_id", al.VehicleID,
			"component", al.Component,
			"priority", out.Priority,
			"recommended_action", al.RecommendedAction)
	}
}

func (o *Orchestrator) handleStatus(ctx context.Context, in bus.Inbound) {
	log := logging.FromContext(ctx)
	var p bus.StatusChangePayload
	if err := in.Message.Decode(&p); err != nil {
		log.Warn("dropping malformed status change", "channel", in.Channel, "error", err)
		return
	}

	if corr := in.Message.CorrelationID; corr != "" {
		if res, ok := o.commander.Resolve(corr, p.Rejected, p.Reason); ok && res.Command == bus.CommandDispatch {
			switch res.Outcome {
			case dispatch.OutcomeRejected:
				o.dispatchFailed(ctx, res)
			case dispatch.OutcomeAcknowledged:
				o.confirmDispatch(res.VehicleID)
			}
		}
	}

	o.roster.ApplyStatusChange(p)
	if p.Rejected {
		return
	}
	switch p.NewStatus {
	case telemetry.StatusOnScene:
		o.vehicleArrived(ctx, p.VehicleID)
	case telemetry.StatusIdle, telemetry.StatusReturning,
		telemetry.StatusMaintenance, telemetry.StatusOutOfService:
		o.vehicleUntasked(ctx, p.VehicleID)
	}
}

func (o *Orchestrator) handleDecision(ctx context.Context, in bus.Inbound) {
	log := logging.FromContext(ctx)
	var d bus.LocalDecisionPayload
	if err := in.Message.Decode(&d); err != nil {
		log.Warn("dropping malformed decision", "channel", in.Channel, "error", err)
		return
	}

	if d.RequiresOrchestratorOverride {
		log.Warn("autonomous decision awaiting override",
			"vehicle_id", d.VehicleID,
			"decision", d.DecisionType,
			"reason", d.Reason,
			"action", d.ActionTaken)
		return
	}
	log.Info("autonomous decision",
		"vehicle_id", d.VehicleID,
		"decision", d.DecisionType,
		"action", d.ActionTaken)
}

func (o *Orchestrator) handleEmergency(ctx context.Context, in bus.Inbound) {
	log := logging.FromContext(ctx)
	var p bus.EmergencyPayload
	if err := in.Message.Decode(&p); err != nil {
		log.Warn("dropping malformed emergency", "channel", in.Channel, "error", err)
		return
	}

	required := make(emergency.UnitsRequired, len(p.UnitsRequired))
	for t, c := range p.UnitsRequired {
		required[telemetry.VehicleType(t)] = c
	}
	if len(required) == 0 {
		required = emergency.DefaultUnits(emergency.IncidentType(p.Type))
	}
	em := &emergency.Emergency{
		ID:            p.EmergencyID,
		Type:          emergency.IncidentType(p.Type),
		Status:        emergency.StatusPending,
		Severity:      emergency.Severity(p.SeverityLevel),
		Location:      p.Location,
		ReportedBy:    in.Message.Source,
		UnitsRequired: required,
		CreatedAt:     p.ReportedAt,
	}
	if !o.emergencies.register(em) {
		return
	}
	log.Info("emergency received",
		"emergency_id", em.ID,
		"type", em.Type,
		"severity", int(em.Severity),
		"units_required", required.Total())

	o.dispatchEmergency(ctx, em.ID)
}
