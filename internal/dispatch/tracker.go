package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"aegis-sim/internal/bus"
)

// DefaultAckTimeout bounds how long a command waits for its
// acknowledgment before the sweep writes it off.
const DefaultAckTimeout = 30 * time.Second

const maxResults = 256

// ErrCommanderClosed is returned by Send after Close; in-flight
// acknowledgments still resolve.
var ErrCommanderClosed = errors.New("commander closed")

// Outcome is the terminal state of an issued command.
type Outcome string

const (
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeRejected     Outcome = "rejected"
	OutcomeTimedOut     Outcome = "timed_out"
)

// Result records how one tracked command ended.
type Result struct {
	CorrelationID string          `json:"correlation_id"`
	VehicleID     string          `json:"vehicle_id"`
	Command       bus.CommandType `json:"command"`
	Outcome       Outcome         `json:"outcome"`
	Reason        string          `json:"reason"`
	Issued        time.Time       `json:"issued"`
	Resolved      time.Time       `json:"resolved"`
}

type pendingCommand struct {
	vehicleID string
	command   bus.CommandType
	issued    time.Time
}

// Commander publishes commands on each vehicle's command channel and
// tracks the ones that demand acknowledgment until an ack, a
// rejection, or the timeout sweep closes them. No tracked command
// disappears without a Result.
type Commander struct {
	pub     bus.Publisher
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]pendingCommand
	results []Result
	closed  bool

	now func() time.Time
}

// NewCommander wires a commander to the broker. A non-positive timeout
// falls back to DefaultAckTimeout.
func NewCommander(pub bus.Publisher, timeout time.Duration) *Commander {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &Commander{
		pub:     pub,
		timeout: timeout,
		pending: make(map[string]pendingCommand),
		now:     time.Now,
	}
}

// Send publishes one command to a vehicle and returns the correlation
// id stamped on the envelope. Commands that require acknowledgment are
// tracked until resolved or swept.
func (c *Commander) Send(ctx context.Context, fleetID, vehicleID string, cmd bus.CommandPayload) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrCommanderClosed
	}
	c.mu.Unlock()

	prio := bus.PriorityHigh
	if cmd.CommandType == bus.CommandEmergencyStop {
		prio = bus.PriorityCritical
	}
	msg, err := bus.NewMessage(bus.TypeCommand, bus.DestinationOrchestrator, vehicleID, prio, cmd)
	if err != nil {
		return "", err
	}
	msg.CorrelationID = uuid.NewString()

	channel := bus.ChannelName(fleetID, bus.ComponentCommands, vehicleID)
	if err := c.pub.Publish(ctx, channel, msg); err != nil {
		return "", fmt.Errorf("publish %s to %s: %w", cmd.CommandType, vehicleID, err)
	}

	if cmd.RequiresAcknowledgment {
		c.mu.Lock()
		c.pending[msg.CorrelationID] = pendingCommand{
			vehicleID: vehicleID,
			command:   cmd.CommandType,
			issued:    c.now(),
		}
		c.mu.Unlock()
	}
	return msg.CorrelationID, nil
}

// Resolve closes a tracked command with the acknowledgment a vehicle
// published and returns the written result. ok is false for
// correlation ids the commander is not tracking, which covers acks
// arriving after the sweep already timed the command out.
func (c *Commander) Resolve(correlationID string, rejected bool, reason string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[correlationID]
	if !ok {
		return Result{}, false
	}
	delete(c.pending, correlationID)

	outcome := OutcomeAcknowledged
	if rejected {
		outcome = OutcomeRejected
	}
	res := Result{
		CorrelationID: correlationID,
		VehicleID:     p.vehicleID,
		Command:       p.command,
		Outcome:       outcome,
		Reason:        reason,
		Issued:        p.issued,
		Resolved:      c.now(),
	}
	c.record(res)
	return res, true
}

// SweepTimeouts closes every pending command older than the ack
// timeout and returns the results it wrote.
func (c *Commander) SweepTimeouts() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var swept []Result
	for id, p := range c.pending {
		if now.Sub(p.issued) < c.timeout {
			continue
		}
		delete(c.pending, id)
		res := Result{
			CorrelationID: id,
			VehicleID:     p.vehicleID,
			Command:       p.command,
			Outcome:       OutcomeTimedOut,
			Reason:        fmt.Sprintf("no acknowledgment within %s", c.timeout),
			Issued:        p.issued,
			Resolved:      now,
		}
		c.record(res)
		swept = append(swept, res)
	}
	return swept
}

// PendingCount reports commands still waiting on acknowledgment.
func (c *Commander) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Results returns resolved commands, oldest first.
func (c *Commander) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

// Close stops the commander from issuing new commands. Commands
// already in flight keep resolving through Resolve and SweepTimeouts.
func (c *Commander) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Commander) record(res Result) {
	c.results = append(c.results, res)
	if len(c.results) > maxResults {
		c.results = c.results[len(c.results)-maxResults:]
	}
}
