package sim

import (
	"context"
	"sync"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/emergency"
	"aegis-sim/internal/failure"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/scenario"
	"aegis-sim/internal/telemetry"
)

// Run starts every agent and drives the world loop until ctx is
// cancelled: random and scripted emergencies, scenario phase
// transitions, chaos mode, and per-tick state rows. It blocks until
// all agents have stopped.
func (h *Harness) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	tick := time.Duration(h.cfg.Intervals.TickSeconds) * time.Second

	script := ""
	if h.opts.Script != nil {
		script = h.opts.Script.Name
	}
	log.Info("starting harness",
		"fleets", len(h.fleets),
		"vehicles", len(h.all),
		"tick_interval", tick,
		"scenario", script,
		"chaos", h.Chaos(),
	)

	if err := h.listenResolved(ctx); err != nil {
		log.Warn("resolution feed unavailable", "error", err)
	}

	var wg sync.WaitGroup
	for _, a := range h.all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Run(ctx)
		}()
	}

	if h.opts.Script != nil && len(h.opts.Script.Phases) > 0 {
		h.mu.Lock()
		raised := h.enterPhaseLocked(ctx, h.opts.Script.Phases[0].Name)
		h.mu.Unlock()
		h.publishEmergencies(ctx, raised)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.step(ctx, tick)
		case <-ctx.Done():
			wg.Wait()
			log.Info("harness stopped")
			return
		}
	}
}

// step advances the world by one tick. Bus and sink writes happen
// after the lock is released.
func (h *Harness) step(ctx context.Context, dt time.Duration) {
	log := logging.FromContext(ctx)

	h.mu.Lock()
	raised := h.emergencies.Step(dt)
	for _, em := range raised {
		h.open[em.ID] = em
	}
	raised = append(raised, h.advanceScriptLocked(ctx)...)
	h.stepChaosLocked(ctx)
	rows := h.stateRowsLocked()
	h.mu.Unlock()

	h.publishEmergencies(ctx, raised)
	if h.opts.StateHistory != nil {
		for _, row := range rows {
			if err := h.opts.StateHistory.WriteState(row); err != nil {
				log.Error("state history write failed", "fleet_id", row.FleetID, "error", err)
			}
		}
	}
}

// listenResolved subscribes to dispatch resolutions so scripted
// triggers and the open-incident count track the orchestrator's
// decisions.
func (h *Harness) listenResolved(ctx context.Context) error {
	ch, err := h.bus.Subscribe(ctx, bus.DispatchResolvedPattern)
	if err != nil {
		return err
	}
	go func() {
		for in := range ch {
			if in.Message.MessageType != bus.TypeEmergencyResolved {
				continue
			}
			var p bus.EmergencyPayload
			if err := in.Message.Decode(&p); err != nil {
				continue
			}
			h.markResolved(p.EmergencyID)
		}
	}()
	return nil
}

func (h *Harness) markResolved(emergencyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.open[emergencyID]; !ok {
		return
	}
	delete(h.open, emergencyID)
	h.phaseResolved++
}

// advanceScriptLocked checks the current phase's triggers and moves to
// the next phase when one fires. Returns any emergencies the new phase
// raises.
func (h *Harness) advanceScriptLocked(ctx context.Context) []*emergency.Emergency {
	s := h.opts.Script
	if s == nil || h.phase == "" {
		return nil
	}
	elapsed := int(h.now().Sub(h.phaseStart).Seconds())
	next, ok := s.NextPhase(h.phase, scenario.Event{Type: scenario.EventTimeElapsed, Value: elapsed})
	if !ok {
		next, ok = s.NextPhase(h.phase, scenario.Event{Type: scenario.EventEmergenciesResolved, Value: h.phaseResolved})
	}
	if !ok {
		return nil
	}
	return h.enterPhaseLocked(ctx, next)
}

// enterPhaseLocked activates a phase: failure injections fire against
// every matching vehicle and scripted emergencies are raised. The
// per-phase trigger counters reset.
func (h *Harness) enterPhaseLocked(ctx context.Context, name string) []*emergency.Emergency {
	log := logging.FromContext(ctx)
	p, ok := h.opts.Script.Phase(name)
	if !ok {
		return nil
	}
	h.phase = name
	h.phaseStart = h.now()
	h.phaseResolved = 0
	log.Info("scenario phase", "scenario", h.opts.Script.Name, "phase", name, "description", p.Description)

	for _, inj := range p.Injections {
		for _, a := range h.all {
			if !inj.Matches(a.VehicleID()) {
				continue
			}
			if a.InjectFailure(failure.Scenario(inj.Scenario)) {
				log.Info("scripted failure activated", "vehicle_id", a.VehicleID(), "scenario", inj.Scenario)
			}
		}
	}

	var raised []*emergency.Emergency
	for _, spec := range p.Emergencies {
		count := spec.Count
		if count <= 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			em := h.emergencies.Raise(emergency.IncidentType(spec.Type), emergency.Severity(spec.SeverityLevel))
			h.open[em.ID] = em
			raised = append(raised, em)
		}
	}
	return raised
}

// stepChaosLocked rolls the chaos dice: maybe one random failure,
// maybe one full repair.
func (h *Harness) stepChaosLocked(ctx context.Context) {
	if !h.chaos {
		return
	}
	log := logging.FromContext(ctx)
	if h.rng.Float64() < chaosFailureChance {
		a := h.all[h.rng.Intn(len(h.all))]
		s := chaosScenarios[h.rng.Intn(len(chaosScenarios))]
		if a.InjectFailure(s) {
			log.Info("chaos failure activated", "vehicle_id", a.VehicleID(), "scenario", s)
		}
	}
	if h.rng.Float64() < chaosRepairChance {
		a := h.all[h.rng.Intn(len(h.all))]
		for _, ac := range a.ActiveFailures() {
			a.ClearFailure(ac.Scenario)
		}
	}
}

func (h *Harness) stateRowsLocked() []telemetry.SimulationStateRow {
	if h.opts.StateHistory == nil {
		return nil
	}
	now := h.now().UTC()
	rows := make([]telemetry.SimulationStateRow, 0, len(h.fleets))
	for _, f := range h.fleets {
		var published, dropped int64
		failures := 0
		for _, a := range f.Agents {
			published += a.Published()
			dropped += a.Dropped()
			failures += len(a.ActiveFailures())
		}
		rows = append(rows, telemetry.SimulationStateRow{
			FleetID:           f.ID,
			ActiveVehicles:    len(f.Agents),
			ActiveFailures:    failures,
			ActiveEmergencies: len(h.open),
			MessagesPublished: int(published - h.lastPublished[f.ID]),
			PublishFailures:   int(dropped - h.lastDropped[f.ID]),
			ChaosMode:         h.chaos,
			Timestamp:         now,
		})
		h.lastPublished[f.ID] = published
		h.lastDropped[f.ID] = dropped
	}
	return rows
}

// publishEmergencies broadcasts newly raised incidents. Severe and
// catastrophic ones go out at critical priority.
func (h *Harness) publishEmergencies(ctx context.Context, raised []*emergency.Emergency) {
	log := logging.FromContext(ctx)
	for _, em := range raised {
		prio := bus.PriorityHigh
		if em.Severity >= emergency.SeveritySevere {
			prio = bus.PriorityCritical
		}
		msg, err := bus.NewMessage(bus.TypeEmergencyNew, "simulation", bus.DestinationOrchestrator, prio, emergency.Payload(em))
		if err != nil {
			log.Error("emergency encode failed", "emergency_id", em.ID, "error", err)
			continue
		}
		if err := h.bus.Publish(ctx, bus.EmergencyChannel, msg); err != nil {
			log.Warn("emergency publish failed", "emergency_id", em.ID, "error", err)
			continue
		}
		log.Info("emergency raised",
			"emergency_id", em.ID,
			"type", em.Type,
			"severity", int(em.Severity),
			"description", em.Description,
		)
	}
}
