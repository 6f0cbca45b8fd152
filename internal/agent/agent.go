// Package agent runs one vehicle's digital twin. Each agent owns a
// tick loop that advances the vehicle's physical state, overlays
// active failure scenarios, evaluates health rules locally, takes
// autonomous safety decisions, and publishes the results to the fleet
// bus. Agents keep operating when the broker is unreachable; publishes
// retry a bounded number of times and are then dropped and counted.
package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/failure"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/sink"
	"aegis-sim/internal/telemetry"
)

// Version is reported in heartbeats so the orchestrator can spot
// mixed-version fleets during rollouts.
const Version = "1.0.0"

// arrivalRadiusKM is how close a vehicle must be to its destination or
// home station to count as arrived.
const arrivalRadiusKM = 0.2

const (
	limpSpeedCapKMH = 40.0
	limpRPMCap      = 1500.0
)

// Config carries the per-agent knobs the fleet harness sets up.
type Config struct {
	TickInterval   time.Duration
	HeartbeatEvery int // heartbeat once per this many ticks; 0 disables

	// Optional local history sinks, written after publishing.
	TelemetryHistory sink.TelemetryWriter
	AlertHistory     sink.AlertWriter
}

// Agent is one vehicle's twin process. All vehicle state is guarded by
// mu; publishing happens outside the lock so a slow broker never
// stalls the tick pipeline.
type Agent struct {
	mu       sync.Mutex
	vehicle  *telemetry.Vehicle
	gen      *telemetry.Generator
	injector *failure.Injector
	engine   *rules.Engine

	pub bus.Publisher
	cfg Config

	pending  []pendingCommand
	released string // emergency id resolved by dispatch, applied next tick

	lastAssessment rules.Assessment

	started time.Time
	ticks   uint64

	published      atomic.Int64
	publishDropped atomic.Int64
	brokerUp       atomic.Bool

	now func() time.Time
}

type pendingCommand struct {
	correlationID string
	cmd           bus.CommandPayload
}

// New builds an agent around an already-initialized vehicle. The
// generator is per-agent so fleets can seed vehicles independently.
func New(v *telemetry.Vehicle, gen *telemetry.Generator, pub bus.Publisher, cfg Config) *Agent {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	a := &Agent{
		vehicle:  v,
		gen:      gen,
		injector: failure.NewInjector(),
		engine:   rules.NewEngine(),
		pub:      pub,
		cfg:      cfg,
		lastAssessment: rules.Assessment{
			SafeToOperate:      true,
			CanCompleteMission: true,
		},
		now: time.Now,
	}
	a.brokerUp.Store(true)
	return a
}

// VehicleID returns the identity the agent simulates.
func (a *Agent) VehicleID() string {
	return a.vehicle.Identity.VehicleID
}

// FleetID returns the fleet the vehicle belongs to.
func (a *Agent) FleetID() string {
	return a.vehicle.Identity.FleetID
}

// Status returns the vehicle's current operational status.
func (a *Agent) Status() telemetry.OperationalStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vehicle.Status
}

// Assessment returns the most recent local health assessment.
func (a *Agent) Assessment() rules.Assessment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAssessment
}

// Published reports how many messages reached the broker.
func (a *Agent) Published() int64 {
	return a.published.Load()
}

// Dropped reports how many messages were abandoned after retries.
func (a *Agent) Dropped() int64 {
	return a.publishDropped.Load()
}

// InjectFailure activates a failure scenario on this vehicle. It
// reports whether the scenario was newly activated.
func (a *Agent) InjectFailure(s failure.Scenario) bool {
	return a.injector.Activate(s)
}

// ClearFailure deactivates a failure scenario.
func (a *Agent) ClearFailure(s failure.Scenario) bool {
	return a.injector.Deactivate(s)
}

// ActiveFailures returns the scenarios currently rewriting telemetry.
func (a *Agent) ActiveFailures() []failure.ActiveScenario {
	return a.injector.Active()
}

// EnqueueCommand stages a command for the next tick boundary. Commands
// never apply mid-tick; conflicting commands staged for the same tick
// are resolved by precedence and the losers rejected.
func (a *Agent) EnqueueCommand(correlationID string, cmd bus.CommandPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, pendingCommand{correlationID: correlationID, cmd: cmd})
}

// emergencyResolved records that the vehicle's assigned emergency was
// closed out by dispatch. The release takes effect at the next tick.
func (a *Agent) emergencyResolved(emergencyID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if emergencyID == "" || a.vehicle.EmergencyID != emergencyID {
		return
	}
	a.released = emergencyID
}
