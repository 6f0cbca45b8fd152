// Package alerts is the coordination side's alert ledger. It
// deduplicates what vehicles report, scores response priority, tracks
// acknowledgments, and closes episodes when components recover.
package alerts

import (
	"errors"
	"sort"
	"sync"
	"time"

	"aegis-sim/internal/rules"
)

// ErrUnknownAlert is returned when an acknowledgment names an alert id
// the processor has never seen.
var ErrUnknownAlert = errors.New("unknown alert id")

// maxHistory bounds how many closed records are kept for review.
const maxHistory = 256

// Priority scoring. Severity sets the base; the predicted failure
// window adds urgency; vehicles on an active emergency add more. The
// score is capped at 100.
const (
	baseCritical = 70
	baseWarning  = 40
	baseInfo     = 10

	missionBonus = 20
	maxPriority  = 100
)

// Record is the ledger entry for one alert episode at one severity.
type Record struct {
	Alert    rules.Alert `json:"alert"`
	Priority int         `json:"priority"`

	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Occurrences int       `json:"occurrences"`

	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
	ActionTaken    string    `json:"action_taken,omitempty"`

	Resolved   bool      `json:"resolved"`
	Superseded bool      `json:"superseded"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
}

// Outcome reports how the processor classified an incoming alert.
type Outcome struct {
	Opened    bool
	Duplicate bool
	Escalated bool
	Resolved  bool
	Priority  int
}

// Processor tracks open episodes keyed by vehicle and component. Safe
// for concurrent use.
type Processor struct {
	mu      sync.Mutex
	open    map[string]*Record
	history []Record
	now     func() time.Time
}

// NewProcessor returns an empty ledger.
func NewProcessor() *Processor {
	return &Processor{
		open: make(map[string]*Record),
		now:  time.Now,
	}
}

func episodeKey(vehicleID, component string) string {
	return vehicleID + "|" + component
}

// Process files one incoming alert. Repeats of the open severity only
// bump occurrence counts; a higher severity supersedes the open record;
// a recovery closes the episode. missionAssigned marks vehicles on an
// active emergency and raises the score.
func (p *Processor) Process(al rules.Alert, missionAssigned bool) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	key := episodeKey(al.VehicleID, al.Component)
	open, exists := p.open[key]

	if al.Category == rules.CategoryRecovery {
		if !exists {
			return Outcome{Resolved: true}
		}
		open.Resolved = true
		open.ClosedAt = now
		p.close(key, open)
		return Outcome{Resolved: true}
	}

	prio := p.score(al, missionAssigned)

	if !exists {
		rec := &Record{
			Alert:       al,
			Priority:    prio,
			FirstSeen:   now,
			LastSeen:    now,
			Occurrences: 1,
		}
		p.open[key] = rec
		return Outcome{Opened: true, Priority: prio}
	}

	switch {
	case al.Severity.Rank() > open.Alert.Severity.Rank():
		// Escalation: the old record closes as superseded, the new one
		// keeps the episode's original start time.
		open.Superseded = true
		open.ClosedAt = now
		p.close(key, open)
		rec := &Record{
			Alert:       al,
			Priority:    prio,
			FirstSeen:   open.FirstSeen,
			LastSeen:    now,
			Occurrences: 1,
		}
		p.open[key] = rec
		return Outcome{Opened: true, Escalated: true, Priority: prio}

	default:
		// Same or lower severity inside an open episode is redelivery
		// noise; count it, keep the higher open severity.
		open.Occurrences++
		open.LastSeen = now
		if prio > open.Priority {
			open.Priority = prio
		}
		return Outcome{Duplicate: true, Priority: open.Priority}
	}
}

// Acknowledge marks an alert as seen by an operator. Both open and
// recently closed records can be acknowledged.
func (p *Processor) Acknowledge(alertID, by, actionTaken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, rec := range p.open {
		if rec.Alert.AlertID == alertID {
			rec.Acknowledged = true
			rec.AcknowledgedBy = by
			rec.AcknowledgedAt = now
			rec.ActionTaken = actionTaken
			return nil
		}
	}
	for i := range p.history {
		if p.history[i].Alert.AlertID == alertID {
			p.history[i].Acknowledged = true
			p.history[i].AcknowledgedBy = by
			p.history[i].AcknowledgedAt = now
			p.history[i].ActionTaken = actionTaken
			return nil
		}
	}
	return ErrUnknownAlert
}

// Open returns the open records ordered by priority, highest first;
// ties break on recency.
func (p *Processor) Open() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, 0, len(p.open))
	for _, rec := range p.open {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// UnacknowledgedCritical returns open critical records nobody has
// acknowledged, ordered by priority.
func (p *Processor) UnacknowledgedCritical() []Record {
	var out []Record
	for _, rec := range p.Open() {
		if rec.Alert.Severity == rules.SeverityCritical && !rec.Acknowledged {
			out = append(out, rec)
		}
	}
	return out
}

// HasOpenCritical reports whether any unresolved critical alert is
// held against the vehicle. Dispatch uses this to keep degraded
// vehicles off new assignments.
func (p *Processor) HasOpenCritical(vehicleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range p.open {
		if rec.Alert.VehicleID == vehicleID && rec.Alert.Severity == rules.SeverityCritical {
			return true
		}
	}
	return false
}

// Find returns the record holding the given alert id, open records
// first, then history.
func (p *Processor) Find(alertID string) (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range p.open {
		if rec.Alert.AlertID == alertID {
			return *rec, true
		}
	}
	for i := len(p.history) - 1; i >= 0; i-- {
		if p.history[i].Alert.AlertID == alertID {
			return p.history[i], true
		}
	}
	return Record{}, false
}

// History returns closed records, most recently closed first.
func (p *Processor) History() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.history))
	copy(out, p.history)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Counts aggregates open records by severity for fleet summaries.
func (p *Processor) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	for _, rec := range p.open {
		counts[string(rec.Alert.Severity)]++
	}
	return counts
}

func (p *Processor) close(key string, rec *Record) {
	delete(p.open, key)
	p.history = append(p.history, *rec)
	if len(p.history) > maxHistory {
		p.history = p.history[len(p.history)-maxHistory:]
	}
}

func (p *Processor) score(al rules.Alert, missionAssigned bool) int {
	var prio int
	switch al.Severity {
	case rules.SeverityCritical:
		prio = baseCritical
	case rules.SeverityWarning:
		prio = baseWarning
	default:
		prio = baseInfo
	}

	if h := al.PredictedFailureLikelyHours; h > 0 {
		switch {
		case h <= 0.5:
			prio += 25
		case h <= 1:
			prio += 20
		case h <= 2:
			prio += 15
		case h <= 8:
			prio += 5
		}
	}

	if missionAssigned {
		prio += missionBonus
	}
	if prio > maxPriority {
		prio = maxPriority
	}
	return prio
}
