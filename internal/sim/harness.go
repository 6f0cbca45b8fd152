// Package sim runs the vehicle side of the simulation: it builds one
// agent per configured vehicle, drives the emergency generator and any
// scripted scenario, and reports per-tick harness state to the history
// sinks. Coordination lives on the other side of the broker; the
// harness never touches the fleet registry directly.
package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"aegis-sim/internal/agent"
	"aegis-sim/internal/bus"
	"aegis-sim/internal/config"
	"aegis-sim/internal/emergency"
	"aegis-sim/internal/failure"
	"aegis-sim/internal/scenario"
	"aegis-sim/internal/sink"
	"aegis-sim/internal/telemetry"
)

// chaosFailureChance is the per-tick probability chaos mode activates
// a random failure on a random vehicle.
const chaosFailureChance = 0.05

// chaosRepairChance is the per-tick probability chaos mode clears all
// failures on a random vehicle.
const chaosRepairChance = 0.02

// chaosScenarios are the failure kinds chaos mode draws from; the
// equipment-specific ones stay scripted.
var chaosScenarios = []failure.Scenario{
	failure.EngineOverheat,
	failure.OilPressureDrop,
	failure.CoolantLeak,
	failure.AlternatorFailure,
	failure.BatteryDegradation,
	failure.BrakeFluidLeak,
	failure.TirePressureLow,
	failure.FuelLeak,
	failure.TransmissionOverheat,
}

// Options carries the harness wiring the CLI sets up.
type Options struct {
	Script  *scenario.Scenario
	Chaos   bool
	Verbose bool

	TelemetryHistory sink.TelemetryWriter
	AlertHistory     sink.AlertWriter
	StateHistory     sink.StateWriter
}

// FleetAgents holds the running agents of one configured fleet.
type FleetAgents struct {
	ID     string
	Agents []*agent.Agent
}

// Harness owns every vehicle agent plus the world around them.
type Harness struct {
	cfg  *config.Config
	bus  bus.Bus
	opts Options

	fleets []FleetAgents
	byID   map[string]*agent.Agent
	all    []*agent.Agent

	emergencies *emergency.Engine
	open        map[string]*emergency.Emergency

	phase         string
	phaseStart    time.Time
	phaseResolved int

	chaos bool
	rng   *rand.Rand
	now   func() time.Time

	// per-fleet publish counters as of the last state row, for
	// per-tick deltas
	lastPublished map[string]int64
	lastDropped   map[string]int64

	mu sync.Mutex
}

// New builds agents for every vehicle the config declares and wires
// the emergency generator over the configured area.
func New(cfg *config.Config, b bus.Bus, opts Options) (*Harness, error) {
	h := &Harness{
		cfg:  cfg,
		bus:  b,
		opts: opts,
		byID: make(map[string]*agent.Agent),
		open: make(map[string]*emergency.Emergency),

		lastPublished: make(map[string]int64),
		lastDropped:   make(map[string]int64),

		chaos: opts.Chaos || cfg.Chaos,
		rng:   rand.New(rand.NewSource(deriveSeed(cfg.Seed, 1))),
		now:   time.Now,
	}

	tick := time.Duration(cfg.Intervals.TickSeconds) * time.Second
	counters := map[telemetry.VehicleType]int{}

	for i, f := range cfg.Fleets {
		st, ok := cfg.StationByID(f.Station)
		if !ok {
			return nil, fmt.Errorf("fleet %s: unknown station %s", f.ID, f.Station)
		}
		gen := telemetry.NewGenerator(f.ID, cfg.AmbientTempCelsius, deriveSeed(cfg.Seed, int64(i)+2))
		fa := FleetAgents{ID: f.ID}
		for _, u := range f.Units {
			vt := telemetry.VehicleType(u.Type)
			for n := 0; n < u.Count; n++ {
				counters[vt]++
				v := telemetry.NewVehicle(
					vehicleIdentity(vt, counters[vt], f.ID, f.Station),
					telemetry.Position{Lat: st.Lat, Lon: st.Lon},
				)
				a := agent.New(v, gen, b, agent.Config{
					TickInterval:     tick,
					HeartbeatEvery:   cfg.Intervals.HeartbeatEvery,
					TelemetryHistory: opts.TelemetryHistory,
					AlertHistory:     opts.AlertHistory,
				})
				fa.Agents = append(fa.Agents, a)
				h.byID[a.VehicleID()] = a
				h.all = append(h.all, a)
			}
		}
		h.fleets = append(h.fleets, fa)
	}
	if len(h.byID) == 0 {
		return nil, fmt.Errorf("configuration declares no vehicles")
	}

	h.emergencies = emergency.NewEngine(
		emergency.Area{
			CenterLat: cfg.Area.CenterLat,
			CenterLon: cfg.Area.CenterLon,
			RadiusKM:  cfg.Area.RadiusKM,
		},
		cfg.Emergencies.RatePerHour,
		deriveSeed(cfg.Seed, 99),
	)
	return h, nil
}

// deriveSeed spreads one configured seed into distinct per-component
// seeds; zero stays zero so unseeded runs keep wall-clock randomness.
func deriveSeed(seed, offset int64) int64 {
	if seed == 0 {
		return 0
	}
	return seed + offset*1000003
}

func vehicleIdentity(t telemetry.VehicleType, n int, fleetID, stationID string) telemetry.VehicleIdentity {
	var prefix, unit, mk, model string
	var year int
	switch t {
	case telemetry.TypeFireTruck:
		prefix, unit = "eng", "E"
		mk, model, year = "Pierce", "Enforcer", 2019
	case telemetry.TypePolice:
		prefix, unit = "pol", "P"
		mk, model, year = "Ford", "Police Interceptor", 2022
	default:
		prefix, unit = "amb", "A"
		mk, model, year = "Ford", "F-450 Type I", 2021
	}
	return telemetry.VehicleIdentity{
		VehicleID:  fmt.Sprintf("%s-%03d", prefix, n),
		Type:       t,
		UnitNumber: fmt.Sprintf("%s-%d", unit, n),
		FleetID:    fleetID,
		StationID:  stationID,
		Make:       mk,
		Model:      model,
		Year:       year,
	}
}

// Agent returns the running agent for a vehicle id.
func (h *Harness) Agent(vehicleID string) (*agent.Agent, bool) {
	a, ok := h.byID[vehicleID]
	return a, ok
}

// Fleets lists the running fleets.
func (h *Harness) Fleets() []FleetAgents { return h.fleets }

// VehicleCount reports how many agents the harness runs.
func (h *Harness) VehicleCount() int { return len(h.byID) }

// ToggleChaos flips chaos mode and returns the new state.
func (h *Harness) ToggleChaos() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chaos = !h.chaos
	return h.chaos
}

// Chaos reports whether chaos mode is active.
func (h *Harness) Chaos() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chaos
}

// Phase returns the current scenario phase, empty when no script runs.
func (h *Harness) Phase() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// OpenEmergencies counts incidents raised but not yet resolved.
func (h *Harness) OpenEmergencies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}
