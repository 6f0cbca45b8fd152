package agent

import (
	"context"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// publishAttempts bounds how often a message is retried before it is
// dropped. Ticks never wait on a dead broker.
const publishAttempts = 3

func (a *Agent) publish(ctx context.Context, channel string, msg bus.Message) {
	var err error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if err = a.pub.Publish(ctx, channel, msg); err == nil {
			a.published.Add(1)
			a.brokerUp.Store(true)
			return
		}
	}
	a.publishDropped.Add(1)
	a.brokerUp.Store(false)
	logging.FromContext(ctx).Warn("dropping message after failed publishes",
		"channel", channel,
		"message_type", string(msg.MessageType),
		"attempts", publishAttempts,
		"error", err)
}

func (a *Agent) channel(c bus.Component) string {
	id := a.vehicle.Identity
	return bus.ChannelName(id.FleetID, c, id.VehicleID)
}

func (a *Agent) publishTelemetry(ctx context.Context, snap telemetry.Snapshot) {
	msg, err := bus.NewMessage(bus.TypeTelemetryUpdate, snap.VehicleID,
		bus.DestinationOrchestrator, bus.PriorityNormal, snap)
	if err != nil {
		logging.FromContext(ctx).Error("encoding telemetry failed",
			"vehicle", snap.VehicleID, "error", err)
		return
	}
	a.publish(ctx, a.channel(bus.ComponentTelemetry), msg)
}

func (a *Agent) publishStatusChange(ctx context.Context, ev statusEvent) {
	msg, err := bus.NewMessage(bus.TypeStatusChange, ev.payload.VehicleID,
		bus.DestinationOrchestrator, bus.PriorityHigh, ev.payload)
	if err != nil {
		logging.FromContext(ctx).Error("encoding status change failed",
			"vehicle", ev.payload.VehicleID, "error", err)
		return
	}
	msg.CorrelationID = ev.correlationID
	a.publish(ctx, a.channel(bus.ComponentStatus), msg)
}

func (a *Agent) publishAlert(ctx context.Context, al rules.Alert) {
	prio := bus.PriorityHigh
	switch al.Severity {
	case rules.SeverityCritical:
		prio = bus.PriorityCritical
	case rules.SeverityInfo:
		prio = bus.PriorityNormal
	}
	msg, err := bus.NewMessage(bus.TypeAlertGenerated, al.VehicleID,
		bus.DestinationOrchestrator, prio, al)
	if err != nil {
		logging.FromContext(ctx).Error("encoding alert failed",
			"vehicle", al.VehicleID, "error", err)
		return
	}
	a.publish(ctx, a.channel(bus.ComponentAlerts), msg)
}

func (a *Agent) publishDecision(ctx context.Context, d bus.LocalDecisionPayload) {
	msg, err := bus.NewMessage(bus.TypeLocalDecision, d.VehicleID,
		bus.DestinationOrchestrator, bus.PriorityCritical, d)
	if err != nil {
		logging.FromContext(ctx).Error("encoding decision failed",
			"vehicle", d.VehicleID, "error", err)
		return
	}
	a.publish(ctx, a.channel(bus.ComponentDecisions), msg)
}

func (a *Agent) publishHeartbeat(ctx context.Context, hb bus.HeartbeatPayload) {
	msg, err := bus.NewMessage(bus.TypeHeartbeat, hb.VehicleID,
		bus.DestinationOrchestrator, bus.PriorityLow, hb)
	if err != nil {
		logging.FromContext(ctx).Error("encoding heartbeat failed",
			"vehicle", hb.VehicleID, "error", err)
		return
	}
	a.publish(ctx, a.channel(bus.ComponentHeartbeat), msg)
}
