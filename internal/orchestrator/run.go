package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/logging"
)

// commandSweepInterval paces the command timeout and emergency
// lifecycle sweeps.
const commandSweepInterval = time.Second

// Run starts one consume loop per subscription plus the sweep loop and
// blocks until the context is canceled and every inbound stream has
// drained. New commands stop at cancellation; acknowledgments already
// in flight still resolve during the drain.
func (o *Orchestrator) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting orchestrator",
		"fleets", len(o.cfg.Fleets),
		"liveness_timeout", time.Duration(o.cfg.Intervals.LivenessTimeoutSeconds)*time.Second,
		"command_timeout", time.Duration(o.cfg.Intervals.CommandTimeoutSeconds)*time.Second,
	)

	subscriptions := []string{
		bus.Pattern(bus.ComponentTelemetry),
		bus.Pattern(bus.ComponentHeartbeat),
		bus.Pattern(bus.ComponentAlerts),
		bus.Pattern(bus.ComponentStatus),
		bus.Pattern(bus.ComponentDecisions),
		bus.EmergencyChannel,
	}

	var wg sync.WaitGroup
	for _, pattern := range subscriptions {
		ch, err := o.bus.Subscribe(ctx, pattern)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", pattern, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range ch {
				o.route(ctx, in)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.sweepLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		o.commander.Close()
	}()

	wg.Wait()
	if n := o.commander.PendingCount(); n > 0 {
		log.Warn("stopping with commands unacknowledged", "pending", n)
	}
	log.Info("orchestrator stopped")
	return nil
}

// sweepLoop drives the periodic work: liveness marking, command
// timeouts, emergency auto-resolution and re-dispatch, and the fleet
// status broadcast.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	log := logging.FromContext(ctx)

	liveness := time.Duration(o.cfg.Intervals.LivenessTimeoutSeconds) * time.Second / 3
	if liveness < time.Second {
		liveness = time.Second
	}
	livenessTicker := time.NewTicker(liveness)
	defer livenessTicker.Stop()

	sweepTicker := time.NewTicker(commandSweepInterval)
	defer sweepTicker.Stop()

	statusTicker := time.NewTicker(time.Duration(o.cfg.Intervals.FleetStatusSeconds) * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-livenessTicker.C:
			for _, id := range o.roster.SweepLiveness() {
				log.Warn("vehicle offline", "vehicle_id", id)
			}
		case <-sweepTicker.C:
			for _, res := range o.commander.SweepTimeouts() {
				log.Warn("command timed out",
					"vehicle_id", res.VehicleID,
					"command", res.Command,
					"correlation_id", res.CorrelationID)
				if res.Command == bus.CommandDispatch {
					o.dispatchFailed(ctx, res)
				}
			}
			o.sweepEmergencies(ctx)
		case <-statusTicker.C:
			o.publishFleetStatus(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// publishFleetStatus broadcasts one summary per configured fleet on
// its dashboard channel.
func (o *Orchestrator) publishFleetStatus(ctx context.Context) {
	log := logging.FromContext(ctx)
	for _, f := range o.cfg.Fleets {
		sum := o.fleetStatus(f.ID)
		msg, err := bus.NewMessage(bus.TypeFleetStatus, bus.DestinationOrchestrator, "",
			bus.PriorityLow, sum)
		if err != nil {
			log.Error("fleet status encode failed", "fleet_id", f.ID, "error", err)
			continue
		}
		channel := bus.ChannelName(f.ID, bus.ComponentDashboard, "fleet")
		if err := o.bus.Publish(ctx, channel, msg); err != nil {
			log.Warn("fleet status publish failed", "fleet_id", f.ID, "error", err)
		}
	}
}
