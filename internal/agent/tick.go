package agent

import (
	"context"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/telemetry"
)

// statusEvent is a status transition (or command rejection) queued for
// publishing once the tick's state changes are complete.
type statusEvent struct {
	payload       bus.StatusChangePayload
	correlationID string
}

// Run drives the agent until ctx is cancelled. It subscribes to the
// vehicle's command channel when the bus supports subscriptions, then
// ticks at the configured interval.
func (a *Agent) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting vehicle agent",
		"vehicle", a.vehicle.Identity.VehicleID,
		"fleet", a.vehicle.Identity.FleetID,
		"tick_interval", a.cfg.TickInterval)

	a.mu.Lock()
	a.started = a.now()
	a.mu.Unlock()

	if sub, ok := a.pub.(bus.Subscriber); ok {
		if err := a.listen(ctx, sub); err != nil {
			log.Error("command subscription failed, running open-loop",
				"vehicle", a.vehicle.Identity.VehicleID, "error", err)
		}
	}

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.tick(ctx)
		case <-ctx.Done():
			log.Info("stopping vehicle agent",
				"vehicle", a.vehicle.Identity.VehicleID,
				"published", a.published.Load(),
				"dropped", a.publishDropped.Load())
			return
		}
	}
}

// listen wires the command channel and the dispatch-resolved broadcast
// into the agent's pending queue.
func (a *Agent) listen(ctx context.Context, sub bus.Subscriber) error {
	id := a.vehicle.Identity
	ch, err := sub.Subscribe(ctx,
		bus.ChannelName(id.FleetID, bus.ComponentCommands, id.VehicleID),
		bus.DispatchResolvedPattern)
	if err != nil {
		return err
	}

	go func() {
		log := logging.FromContext(ctx)
		for in := range ch {
			switch in.Message.MessageType {
			case bus.TypeCommand:
				if in.Message.Expired(a.now()) {
					log.Warn("dropping expired command",
						"vehicle", id.VehicleID, "message_id", in.Message.MessageID)
					continue
				}
				var cmd bus.CommandPayload
				if err := in.Message.Decode(&cmd); err != nil {
					log.Warn("dropping malformed command",
						"vehicle", id.VehicleID, "error", err)
					continue
				}
				corr := in.Message.CorrelationID
				if corr == "" {
					corr = in.Message.MessageID
				}
				a.EnqueueCommand(corr, cmd)
			case bus.TypeEmergencyResolved:
				var p bus.EmergencyPayload
				if err := in.Message.Decode(&p); err != nil {
					continue
				}
				a.emergencyResolved(p.EmergencyID)
			}
		}
	}()
	return nil
}

// tick runs one cycle of the twin pipeline. Order matters: commands
// apply first, then physics, then failure overlays, then rules, then
// local safety decisions. Nothing publishes until the vehicle's state
// for this tick is final.
func (a *Agent) tick(ctx context.Context) {
	a.mu.Lock()
	a.ticks++

	events := a.applyPendingLocked()
	events = append(events, a.progressMissionLocked()...)

	reading := a.injector.Apply(a.gen.Next(a.vehicle, a.cfg.TickInterval))

	alerts, assess := a.engine.Evaluate(reading)
	a.lastAssessment = assess

	decisions, decisionEvents := a.decideLocked(&reading, alerts, assess)
	events = append(events, decisionEvents...)

	// Decisions and releases may have moved the vehicle's status after
	// the snapshot was taken; the published reading reflects the final
	// state of the tick.
	reading.Status = a.vehicle.Status
	reading.SirenActive = a.vehicle.Status == telemetry.StatusEnRoute || a.vehicle.Status == telemetry.StatusOnScene
	reading.LightsActive = reading.SirenActive

	hb := a.heartbeatLocked(reading)
	a.mu.Unlock()

	a.publishTelemetry(ctx, reading)
	for _, ev := range events {
		a.publishStatusChange(ctx, ev)
	}
	for _, al := range alerts {
		a.publishAlert(ctx, al)
	}
	for _, d := range decisions {
		a.publishDecision(ctx, d)
	}
	if hb != nil {
		a.publishHeartbeat(ctx, *hb)
	}

	log := logging.FromContext(ctx)
	if a.cfg.TelemetryHistory != nil {
		if err := a.cfg.TelemetryHistory.Write(reading); err != nil {
			log.Error("telemetry history write failed",
				"vehicle", reading.VehicleID, "error", err)
		}
	}
	if a.cfg.AlertHistory != nil {
		for _, al := range alerts {
			if err := a.cfg.AlertHistory.WriteAlert(al); err != nil {
				log.Error("alert history write failed",
					"vehicle", al.VehicleID, "error", err)
			}
		}
	}
}

// progressMissionLocked handles movement milestones: releasing a
// resolved emergency, arriving on scene, and completing a return.
func (a *Agent) progressMissionLocked() []statusEvent {
	v := a.vehicle
	var events []statusEvent

	if a.released != "" {
		if v.EmergencyID == a.released {
			prev := v.Status
			v.Status = telemetry.StatusReturning
			v.EmergencyID = ""
			v.Destination = nil
			v.Heading = telemetry.BearingDegrees(v.Position, v.Home)
			events = append(events, statusEvent{payload: bus.StatusChangePayload{
				VehicleID:      v.Identity.VehicleID,
				PreviousStatus: prev,
				NewStatus:      v.Status,
				Reason:         "emergency resolved, returning to station",
			}})
		}
		a.released = ""
	}

	switch v.Status {
	case telemetry.StatusEnRoute:
		if v.Destination == nil {
			break
		}
		if telemetry.DistanceKM(v.Position, *v.Destination) < arrivalRadiusKM {
			v.Status = telemetry.StatusOnScene
			events = append(events, statusEvent{payload: bus.StatusChangePayload{
				VehicleID:      v.Identity.VehicleID,
				PreviousStatus: telemetry.StatusEnRoute,
				NewStatus:      telemetry.StatusOnScene,
				Reason:         "arrived on scene",
			}})
			break
		}
		v.Heading = telemetry.BearingDegrees(v.Position, *v.Destination)
	case telemetry.StatusReturning:
		if telemetry.DistanceKM(v.Position, v.Home) < arrivalRadiusKM {
			next := telemetry.StatusIdle
			reason := "returned to station"
			if v.SpeedCapKMH > 0 || v.RPMCap > 0 {
				// Limp caps mean the vehicle came home damaged.
				next = telemetry.StatusMaintenance
				reason = "returned to station under limp caps, entering maintenance"
			}
			v.Status = next
			events = append(events, statusEvent{payload: bus.StatusChangePayload{
				VehicleID:      v.Identity.VehicleID,
				PreviousStatus: telemetry.StatusReturning,
				NewStatus:      next,
				Reason:         reason,
			}})
			break
		}
		v.Heading = telemetry.BearingDegrees(v.Position, v.Home)
	}
	return events
}

// heartbeatLocked emits a heartbeat payload every HeartbeatEvery ticks.
func (a *Agent) heartbeatLocked(reading telemetry.Snapshot) *bus.HeartbeatPayload {
	if a.cfg.HeartbeatEvery <= 0 || a.ticks%uint64(a.cfg.HeartbeatEvery) != 0 {
		return nil
	}
	return &bus.HeartbeatPayload{
		VehicleID:             a.vehicle.Identity.VehicleID,
		UptimeSeconds:         int64(a.now().Sub(a.started).Seconds()),
		LastTelemetrySequence: reading.SequenceNumber,
		AgentVersion:          Version,
		SystemHealth: bus.SystemHealth{
			BrokerConnected: a.brokerUp.Load(),
		},
	}
}
