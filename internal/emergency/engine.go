package emergency

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/telemetry"
)

// Area is the circular service area incidents are scattered over.
type Area struct {
	CenterLat float64
	CenterLon float64
	RadiusKM  float64
}

// Engine fabricates incidents at a configurable hourly rate. Types and
// severities are weighted toward the common case: medical calls and
// traffic accidents dominate, disasters are rare.
type Engine struct {
	area Area
	rate float64 // expected incidents per hour
	rng  *rand.Rand
	now  func() time.Time
}

// NewEngine builds a generator. rate is expected incidents per hour
// across the whole area.
func NewEngine(area Area, rate float64, seed int64) *Engine {
	return &Engine{
		area: area,
		rate: rate,
		rng:  rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
}

// Step rolls the incident dice for one tick of length dt and returns
// whatever broke out.
func (e *Engine) Step(dt time.Duration) []*Emergency {
	expected := e.rate * dt.Hours()
	n := int(expected)
	if e.rng.Float64() < expected-float64(n) {
		n++
	}
	var out []*Emergency
	for i := 0; i < n; i++ {
		out = append(out, e.Generate())
	}
	return out
}

// Generate fabricates one pending incident inside the service area.
func (e *Engine) Generate() *Emergency {
	return e.Raise(e.randomType(), e.randomSeverity())
}

// Raise fabricates a pending incident of a specific type and severity,
// for scripted scenario phases.
func (e *Engine) Raise(t IncidentType, sev Severity) *Emergency {
	return &Emergency{
		ID:            uuid.NewString(),
		Type:          t,
		Status:        StatusPending,
		Severity:      sev,
		Location:      e.randomPosition(),
		Description:   e.describe(t),
		ReportedBy:    "simulation",
		UnitsRequired: DefaultUnits(t),
		CreatedAt:     e.now().UTC(),
	}
}

func (e *Engine) randomType() IncidentType {
	r := e.rng.Float64()
	switch {
	case r < 0.30:
		return IncidentMedical
	case r < 0.55:
		return IncidentAccident
	case r < 0.70:
		return IncidentFire
	case r < 0.85:
		return IncidentCrime
	case r < 0.93:
		return IncidentRescue
	case r < 0.97:
		return IncidentHazmat
	default:
		return IncidentNaturalDisaster
	}
}

func (e *Engine) randomSeverity() Severity {
	r := e.rng.Float64()
	switch {
	case r < 0.10:
		return SeverityLow
	case r < 0.35:
		return SeverityModerate
	case r < 0.70:
		return SeverityHigh
	case r < 0.90:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

func (e *Engine) randomPosition() telemetry.Position {
	angle := e.rng.Float64() * 2 * math.Pi
	r := e.rng.Float64() * e.area.RadiusKM * 1000
	dLat := (r * math.Cos(angle)) / 111000
	dLon := (r * math.Sin(angle)) / (111000 * math.Cos(e.area.CenterLat*math.Pi/180))
	return telemetry.Position{Lat: e.area.CenterLat + dLat, Lon: e.area.CenterLon + dLon}
}

var descriptions = map[IncidentType][]string{
	IncidentMedical:         {"cardiac arrest reported", "fall with injuries", "difficulty breathing"},
	IncidentAccident:        {"two-vehicle collision", "vehicle into pole", "multi-car pileup"},
	IncidentFire:            {"structure fire reported", "vehicle fire", "smoke in building"},
	IncidentCrime:           {"robbery in progress", "assault reported", "disturbance with weapon"},
	IncidentRescue:          {"person trapped in vehicle", "water rescue needed"},
	IncidentHazmat:          {"chemical spill on roadway", "gas leak reported"},
	IncidentNaturalDisaster: {"flooding in district", "storm damage with injuries"},
}

func (e *Engine) describe(t IncidentType) string {
	opts := descriptions[t]
	if len(opts) == 0 {
		return string(t)
	}
	return opts[e.rng.Intn(len(opts))]
}

// Payload converts an emergency to its broadcast form.
func Payload(em *Emergency) bus.EmergencyPayload {
	units := make(map[string]int, len(em.UnitsRequired))
	for t, c := range em.UnitsRequired {
		units[string(t)] = c
	}
	return bus.EmergencyPayload{
		EmergencyID:   em.ID,
		Type:          string(em.Type),
		SeverityLevel: int(em.Severity),
		Location:      em.Location,
		UnitsRequired: units,
		ReportedAt:    em.CreatedAt,
	}
}
