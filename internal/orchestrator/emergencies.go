package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/dispatch"
	"aegis-sim/internal/emergency"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/telemetry"
)

// emergencyBook is the registry of incidents the orchestrator is
// working. Safe for concurrent use.
type emergencyBook struct {
	mu      sync.Mutex
	active  map[string]*emergency.Emergency
	onScene map[string]time.Time
}

func newEmergencyBook() *emergencyBook {
	return &emergencyBook{
		active:  make(map[string]*emergency.Emergency),
		onScene: make(map[string]time.Time),
	}
}

// register adds a new incident; duplicate announcements are dropped.
func (b *emergencyBook) register(em *emergency.Emergency) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.active[em.ID]; ok {
		return false
	}
	b.active[em.ID] = em
	return true
}

func (b *emergencyBook) markDispatched(id string, units []string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	em, ok := b.active[id]
	if !ok {
		return
	}
	em.Status = emergency.StatusDispatched
	em.AssignedUnits = units
	em.DispatchedAt = at
}

// markOnScene records first arrival; later arrivals for the same
// incident keep the original time.
func (b *emergencyBook) markOnScene(id string, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	em, ok := b.active[id]
	if !ok {
		return false
	}
	em.Status = emergency.StatusInProgress
	if _, seen := b.onScene[id]; seen {
		return false
	}
	b.onScene[id] = at
	return true
}

// removeUnit detaches one vehicle from an incident after its dispatch
// command was rejected or timed out. An incident that loses its last
// unit goes back to pending so the sweep re-covers it.
func (b *emergencyBook) removeUnit(id, vehicleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	em, ok := b.active[id]
	if !ok {
		return
	}
	kept := em.AssignedUnits[:0]
	for _, u := range em.AssignedUnits {
		if u != vehicleID {
			kept = append(kept, u)
		}
	}
	em.AssignedUnits = kept
	if len(kept) == 0 && em.Status == emergency.StatusDispatched {
		em.Status = emergency.StatusPending
	}
}

// close resolves an incident and removes it from the book.
func (b *emergencyBook) close(id string, at time.Time) (emergency.Emergency, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	em, ok := b.active[id]
	if !ok {
		return emergency.Emergency{}, false
	}
	em.Status = emergency.StatusResolved
	em.ResolvedAt = at
	delete(b.active, id)
	delete(b.onScene, id)
	return *em, true
}

func (b *emergencyBook) list() []emergency.Emergency {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]emergency.Emergency, 0, len(b.active))
	for _, em := range b.active {
		out = append(out, *em)
	}
	return out
}

func (b *emergencyBook) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// pendingIDs lists incidents nothing has been assigned to yet.
func (b *emergencyBook) pendingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for id, em := range b.active {
		if em.Status == emergency.StatusPending {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// dueForResolve lists in-progress incidents whose crews have been on
// scene at least the given duration.
func (b *emergencyBook) dueForResolve(now time.Time, after time.Duration) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for id, em := range b.active {
		if em.Status != emergency.StatusInProgress {
			continue
		}
		if at, ok := b.onScene[id]; ok && now.Sub(at) >= after {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// assignmentOf finds the incident a vehicle is assigned to.
func (b *emergencyBook) assignmentOf(vehicleID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, em := range b.active {
		for _, u := range em.AssignedUnits {
			if u == vehicleID {
				return id, true
			}
		}
	}
	return "", false
}

// location returns the scene position of an active incident.
func (b *emergencyBook) location(id string) (telemetry.Position, emergency.UnitsRequired, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	em, ok := b.active[id]
	if !ok {
		return telemetry.Position{}, nil, false
	}
	return em.Location, em.UnitsRequired, true
}

// dispatchEmergency selects units for an incident and sends each one a
// dispatch command. Incidents no unit can serve right now stay pending
// and re-enter selection on the next sweep.
func (o *Orchestrator) dispatchEmergency(ctx context.Context, emergencyID string) {
	log := logging.FromContext(ctx)

	scene, required, ok := o.emergencies.location(emergencyID)
	if !ok {
		return
	}
	d := o.engine.SelectUnits(emergencyID, scene, required)
	for t, missing := range d.Shortfall {
		log.Warn("dispatch shortfall",
			"emergency_id", emergencyID, "vehicle_type", t, "missing", missing)
	}
	if len(d.Units) == 0 {
		log.Warn("no units available, emergency queued", "emergency_id", emergencyID)
		return
	}

	var assigned []string
	for _, unit := range d.Units {
		if err := o.sendDispatchCommand(ctx, emergencyID, scene, unit); err != nil {
			log.Error("dispatch command failed",
				"emergency_id", emergencyID, "vehicle_id", unit.VehicleID, "error", err)
			o.roster.ClearAssignment(unit.VehicleID)
			continue
		}
		assigned = append(assigned, unit.VehicleID)
	}
	if len(assigned) == 0 {
		return
	}
	sort.Strings(assigned)
	o.emergencies.markDispatched(emergencyID, assigned, o.now().UTC())

	log.Info("units dispatched",
		"emergency_id", emergencyID, "units", assigned, "shortfall", len(d.Shortfall))

	if msg, err := bus.NewMessage(bus.TypeDispatchAssigned, bus.DestinationOrchestrator, "",
		bus.PriorityHigh, d); err == nil {
		if err := o.bus.Publish(ctx, bus.DispatchAssignedChannel(emergencyID), msg); err != nil {
			log.Warn("assignment broadcast failed", "emergency_id", emergencyID, "error", err)
		}
	}
	o.writeDispatchRows(ctx, telemetry.DispatchEventAssignment, emergencyID, assigned)
}

func (o *Orchestrator) sendDispatchCommand(ctx context.Context, emergencyID string, scene telemetry.Position, unit dispatch.Assignment) error {
	v, ok := o.roster.Vehicle(unit.VehicleID)
	if !ok {
		return fmt.Errorf("vehicle %s missing from roster", unit.VehicleID)
	}
	cmd := bus.CommandPayload{
		CommandType: bus.CommandDispatch,
		Parameters: map[string]any{
			"destination": map[string]any{
				"latitude":  scene.Lat,
				"longitude": scene.Lon,
			},
			"emergency_id": emergencyID,
		},
		Reason:                 fmt.Sprintf("respond to emergency %s", emergencyID),
		IssuedBy:               bus.DestinationOrchestrator,
		RequiresAcknowledgment: true,
	}
	_, err := o.commander.Send(ctx, v.FleetID, v.VehicleID, cmd)
	return err
}

// vehicleArrived moves an incident to in-progress when any of its
// assigned vehicles reports on scene.
func (o *Orchestrator) vehicleArrived(ctx context.Context, vehicleID string) {
	v, ok := o.roster.Vehicle(vehicleID)
	if !ok || v.EmergencyID == "" {
		return
	}
	if o.emergencies.markOnScene(v.EmergencyID, o.now()) {
		logging.FromContext(ctx).Info("first unit on scene",
			"emergency_id", v.EmergencyID, "vehicle_id", vehicleID)
	}
}

// confirmDispatch re-marks the roster assignment once the vehicle
// acknowledges. This heals the window where a stale idle snapshot,
// generated before the command landed, cleared the optimistic mark.
func (o *Orchestrator) confirmDispatch(vehicleID string) {
	if emergencyID, ok := o.emergencies.assignmentOf(vehicleID); ok {
		o.roster.MarkDispatched(vehicleID, emergencyID)
	}
}

// vehicleUntasked clears a vehicle's assignment when it reports a
// status that cannot be working an emergency, covering autonomous
// returns and operator pulls.
func (o *Orchestrator) vehicleUntasked(ctx context.Context, vehicleID string) {
	v, ok := o.roster.Vehicle(vehicleID)
	if !ok || v.EmergencyID == "" {
		return
	}
	o.roster.ClearAssignment(vehicleID)
	o.emergencies.removeUnit(v.EmergencyID, vehicleID)
	logging.FromContext(ctx).Info("unit left emergency",
		"emergency_id", v.EmergencyID, "vehicle_id", vehicleID)
}

// dispatchFailed undoes the optimistic assignment after a rejected or
// timed-out dispatch command. The pending sweep will try to re-cover
// the incident.
func (o *Orchestrator) dispatchFailed(ctx context.Context, res dispatch.Result) {
	v, ok := o.roster.Vehicle(res.VehicleID)
	if !ok || v.EmergencyID == "" {
		return
	}
	o.roster.ClearAssignment(res.VehicleID)
	o.emergencies.removeUnit(v.EmergencyID, res.VehicleID)
	logging.FromContext(ctx).Warn("dispatch not taken",
		"emergency_id", v.EmergencyID,
		"vehicle_id", res.VehicleID,
		"outcome", res.Outcome,
		"reason", res.Reason)
}

// resolveEmergency closes an incident: broadcast the resolution so
// agents release themselves, clear roster assignments, and send each
// released vehicle a standby command.
func (o *Orchestrator) resolveEmergency(ctx context.Context, emergencyID, reason string) {
	log := logging.FromContext(ctx)

	em, ok := o.emergencies.close(emergencyID, o.now().UTC())
	if !ok {
		return
	}

	if msg, err := bus.NewMessage(bus.TypeEmergencyResolved, bus.DestinationOrchestrator, "",
		bus.PriorityHigh, emergency.Payload(&em)); err == nil {
		if err := o.bus.Publish(ctx, bus.DispatchResolvedChannel(emergencyID), msg); err != nil {
			log.Warn("resolution broadcast failed", "emergency_id", emergencyID, "error", err)
		}
	}

	released := o.engine.Release(emergencyID)
	for _, vehicleID := range released {
		v, ok := o.roster.Vehicle(vehicleID)
		if !ok {
			continue
		}
		cmd := bus.CommandPayload{
			CommandType: bus.CommandStandby,
			Reason:      fmt.Sprintf("emergency %s resolved", emergencyID),
			IssuedBy:    bus.DestinationOrchestrator,
		}
		if _, err := o.commander.Send(ctx, v.FleetID, vehicleID, cmd); err != nil {
			log.Warn("standby command failed", "vehicle_id", vehicleID, "error", err)
		}
	}
	if len(released) > 0 {
		o.writeDispatchRows(ctx, telemetry.DispatchEventRelease, emergencyID, released)
	}

	log.Info("emergency resolved",
		"emergency_id", emergencyID,
		"type", em.Type,
		"reason", reason,
		"released", released)
}

// sweepEmergencies auto-resolves incidents whose crews have worked the
// scene long enough and retries selection for queued ones.
func (o *Orchestrator) sweepEmergencies(ctx context.Context) {
	onScene := time.Duration(o.cfg.Emergencies.MeanOnSceneMinutes * float64(time.Minute))
	for _, id := range o.emergencies.dueForResolve(o.now(), onScene) {
		o.resolveEmergency(ctx, id, "on-scene work complete")
	}
	for _, id := range o.emergencies.pendingIDs() {
		o.dispatchEmergency(ctx, id)
	}
}

// writeDispatchRows records one dispatch event per involved fleet.
func (o *Orchestrator) writeDispatchRows(ctx context.Context, eventType, emergencyID string, vehicleIDs []string) {
	if o.opts.DispatchHistory == nil {
		return
	}
	log := logging.FromContext(ctx)

	byFleet := make(map[string][]string)
	for _, id := range vehicleIDs {
		if v, ok := o.roster.Vehicle(id); ok {
			byFleet[v.FleetID] = append(byFleet[v.FleetID], id)
		}
	}
	now := o.now().UTC()
	for fleetID, ids := range byFleet {
		row := telemetry.DispatchEventRow{
			FleetID:     fleetID,
			EventType:   eventType,
			EmergencyID: emergencyID,
			VehicleIDs:  ids,
			Timestamp:   now,
		}
		if err := o.opts.DispatchHistory.WriteDispatchEvent(row); err != nil {
			log.Error("dispatch history write failed", "fleet_id", fleetID, "error", err)
		}
	}
}
