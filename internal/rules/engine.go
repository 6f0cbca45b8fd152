package rules

import (
	"time"

	"github.com/google/uuid"

	"aegis-sim/internal/telemetry"
)

type episodeState int

const (
	stateClear episodeState = iota
	stateWarningOpen
	stateCriticalOpen
)

// episode is the open-alert state for one component. Severity never
// drops within an episode: a critical episode stays critical until the
// reading returns to the normal band, even if it dips back into the
// warning band in between.
type episode struct {
	state       episodeState
	openAlertID string
	openedAt    time.Time
}

// Engine evaluates snapshots for a single vehicle and emits alerts on
// episode transitions only. A sustained fault yields one warning, at
// most one escalation, and one recovery signal.
type Engine struct {
	episodes map[string]*episode

	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{
		episodes: make(map[string]*episode),
		now:      time.Now,
	}
}

// Evaluate runs every rule against the snapshot. The returned alerts
// are the transitions that occurred this tick; the assessment is
// recomputed from the raw readings regardless of episode state.
func (e *Engine) Evaluate(snap telemetry.Snapshot) ([]Alert, Assessment) {
	var out []Alert
	assess := Assessment{SafeToOperate: true, CanCompleteMission: true}

	for i := range monitored {
		r := &monitored[i]
		value := r.metric(&snap)

		sev := SeverityInfo
		switch {
		case r.crossed(r.critical, value):
			sev = SeverityCritical
		case r.crossed(r.warning, value):
			sev = SeverityWarning
		}

		if sev == SeverityCritical {
			if !r.critical.safe {
				assess.SafeToOperate = false
			}
			if !r.critical.canComplete {
				assess.CanCompleteMission = false
			}
			assess.CriticalComponents = append(assess.CriticalComponents, r.component)
		}

		ep := e.episodes[r.component]
		if ep == nil {
			ep = &episode{}
			e.episodes[r.component] = ep
		}

		switch {
		case sev == SeverityCritical && ep.state != stateCriticalOpen:
			a := e.newAlert(r, r.critical, SeverityCritical, &snap)
			a.SupersedesAlertID = ep.openAlertID
			if ep.state == stateClear {
				ep.openedAt = a.Timestamp
			}
			ep.state = stateCriticalOpen
			ep.openAlertID = a.AlertID
			out = append(out, a)

		case sev == SeverityWarning && ep.state == stateClear:
			a := e.newAlert(r, r.warning, SeverityWarning, &snap)
			ep.state = stateWarningOpen
			ep.openAlertID = a.AlertID
			ep.openedAt = a.Timestamp
			out = append(out, a)

		case sev == SeverityInfo && ep.state != stateClear:
			a := e.recoveryAlert(r, ep.openAlertID, &snap)
			ep.state = stateClear
			ep.openAlertID = ""
			ep.openedAt = time.Time{}
			out = append(out, a)
		}
	}

	return out, assess
}

// OpenEpisodes reports the components with an open warning or critical
// episode, for status surfaces.
func (e *Engine) OpenEpisodes() []string {
	var open []string
	for i := range monitored {
		c := monitored[i].component
		if ep, ok := e.episodes[c]; ok && ep.state != stateClear {
			open = append(open, c)
		}
	}
	return open
}

func (e *Engine) newAlert(r *rule, g grade, sev Severity, snap *telemetry.Snapshot) Alert {
	return Alert{
		AlertID:   uuid.NewString(),
		VehicleID: snap.VehicleID,
		Timestamp: e.now().UTC(),
		Severity:  sev,
		Category:  r.category,
		Component: r.component,

		FailureProbability: g.probability,
		Confidence:         g.confidence,

		PredictedFailureMinHours:    g.minHours,
		PredictedFailureMaxHours:    g.maxHours,
		PredictedFailureLikelyHours: g.likelyHours,

		CanCompleteMission: g.canComplete,
		SafeToOperate:      g.safe,
		RecommendedAction:  g.action,

		ContributingFactors: r.factors,
		RelatedTelemetry:    r.related(snap),
	}
}

func (e *Engine) recoveryAlert(r *rule, supersedes string, snap *telemetry.Snapshot) Alert {
	return Alert{
		AlertID:   uuid.NewString(),
		VehicleID: snap.VehicleID,
		Timestamp: e.now().UTC(),
		Severity:  SeverityInfo,
		Category:  CategoryRecovery,
		Component: r.component,

		CanCompleteMission: true,
		SafeToOperate:      true,
		RecommendedAction:  "Condition resolved, resume normal operation",

		RelatedTelemetry:  r.related(snap),
		SupersedesAlertID: supersedes,
	}
}
