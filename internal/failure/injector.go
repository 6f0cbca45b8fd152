package failure

import (
	"sort"
	"sync"
	"time"

	"aegis-sim/internal/telemetry"
)

// ActiveScenario reports one currently active scenario and when it
// began.
type ActiveScenario struct {
	Scenario    Scenario  `json:"scenario"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Injector holds the set of active failure scenarios for one vehicle
// and rewrites telemetry snapshots according to their elapsed-time
// progressions. Apply never mutates its input.
type Injector struct {
	mu     sync.Mutex
	active map[Scenario]time.Time
	now    func() time.Time
}

// NewInjector creates an injector with no active scenarios.
func NewInjector() *Injector {
	return &Injector{
		active: make(map[Scenario]time.Time),
		now:    time.Now,
	}
}

// Activate marks a scenario active from now. Re-activating an already
// active scenario keeps its original start time; the return value
// reports whether this call started it.
func (i *Injector) Activate(s Scenario) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.active[s]; ok {
		return false
	}
	i.active[s] = i.now()
	return true
}

// Deactivate removes a scenario. Subsequent snapshots return to
// unmodified values; there is no residual damage model.
func (i *Injector) Deactivate(s Scenario) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.active[s]; !ok {
		return false
	}
	delete(i.active, s)
	return true
}

// Active returns the active scenarios ordered by name.
func (i *Injector) Active() []ActiveScenario {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]ActiveScenario, 0, len(i.active))
	for s, t0 := range i.active {
		out = append(out, ActiveScenario{Scenario: s, ActivatedAt: t0})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Scenario < out[b].Scenario })
	return out
}

// ActiveCount returns how many scenarios are currently active.
func (i *Injector) ActiveCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.active)
}

type accumulated struct {
	amount float64
	floor  float64
	ceil   float64
}

// Apply returns a copy of snap with every active scenario's
// progression applied. Deltas for the same field sum before clamping,
// so composition is order independent.
func (i *Injector) Apply(snap telemetry.Snapshot) telemetry.Snapshot {
	i.mu.Lock()
	now := i.now()
	elapsed := make(map[Scenario]float64, len(i.active))
	for s, t0 := range i.active {
		elapsed[s] = now.Sub(t0).Minutes()
	}
	i.mu.Unlock()

	if len(elapsed) == 0 {
		return snap
	}

	acc := make(map[field]accumulated)
	for s, m := range elapsed {
		for _, d := range progression(s, m) {
			a, ok := acc[d.field]
			if !ok {
				a = accumulated{floor: d.floor, ceil: d.ceil}
			} else {
				if d.floor > a.floor {
					a.floor = d.floor
				}
				if d.ceil < a.ceil {
					a.ceil = d.ceil
				}
			}
			a.amount += d.amount
			acc[d.field] = a
		}
	}

	out := snap
	socBefore := out.StateOfChargePercent
	fuelBefore := out.FuelLevelPercent
	for f, a := range acc {
		applyField(&out, f, a.amount, a.floor, a.ceil)
	}
	// Dependent values follow their source field.
	if out.StateOfChargePercent != socBefore {
		out.BatteryVoltage = telemetry.RestVoltage(out.StateOfChargePercent)
	}
	if out.FuelLevelPercent != fuelBefore {
		out.FuelLevelLiters = out.FuelLevelPercent / 100 * telemetry.FuelTankLiters
	}
	return out
}
