package agent

import (
	"fmt"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/telemetry"
)

// applyPendingLocked drains the staged commands. When several commands
// arrived since the last tick, the one with the highest precedence
// wins (first received breaks ties) and every loser is rejected with
// an acknowledgment naming the winner.
func (a *Agent) applyPendingLocked() []statusEvent {
	if len(a.pending) == 0 {
		return nil
	}
	staged := a.pending
	a.pending = nil

	winner := 0
	for i := 1; i < len(staged); i++ {
		if staged[i].cmd.CommandType.Precedence() > staged[winner].cmd.CommandType.Precedence() {
			winner = i
		}
	}

	var events []statusEvent
	for i, pc := range staged {
		if i == winner {
			continue
		}
		events = append(events, a.rejectLocked(pc,
			fmt.Sprintf("superseded by %s command", staged[winner].cmd.CommandType)))
	}
	return append(events, a.applyCommandLocked(staged[winner]))
}

// applyCommandLocked validates and applies one command, returning the
// acknowledgment to publish. Rejected commands leave the vehicle
// unchanged.
func (a *Agent) applyCommandLocked(pc pendingCommand) statusEvent {
	v := a.vehicle
	prev := v.Status

	switch pc.cmd.CommandType {
	case bus.CommandEmergencyStop:
		// Always honored, whatever state the vehicle is in.
		v.Status = telemetry.StatusOutOfService
		v.EmergencyID = ""
		v.Destination = nil
		v.TargetSpeedKMH = 0

	case bus.CommandMaintenanceMode:
		if prev == telemetry.StatusOutOfService {
			return a.rejectLocked(pc, "vehicle is out of service")
		}
		v.Status = telemetry.StatusMaintenance
		v.EmergencyID = ""
		v.Destination = nil
		v.SpeedCapKMH = 0
		v.RPMCap = 0

	case bus.CommandReturnToBase:
		if prev == telemetry.StatusOutOfService {
			return a.rejectLocked(pc, "vehicle is out of service")
		}
		v.Status = telemetry.StatusReturning
		v.EmergencyID = ""
		v.Destination = nil
		v.Heading = telemetry.BearingDegrees(v.Position, v.Home)

	case bus.CommandDispatch:
		if prev == telemetry.StatusMaintenance || prev == telemetry.StatusOutOfService {
			return a.rejectLocked(pc, fmt.Sprintf("vehicle unavailable in status %s", prev))
		}
		if !a.lastAssessment.SafeToOperate {
			return a.rejectLocked(pc, "vehicle is not safe to operate")
		}
		dest, ok := destinationParam(pc.cmd.Parameters)
		if !ok {
			return a.rejectLocked(pc, "dispatch command missing destination")
		}
		v.Status = telemetry.StatusEnRoute
		v.EmergencyID = stringParam(pc.cmd.Parameters, "emergency_id")
		v.Destination = &dest
		v.Heading = telemetry.BearingDegrees(v.Position, dest)

	case bus.CommandStandby:
		if prev == telemetry.StatusOutOfService {
			return a.rejectLocked(pc, "vehicle is out of service")
		}
		v.Status = telemetry.StatusIdle
		v.EmergencyID = ""
		v.Destination = nil

	case bus.CommandUpdateConfig:
		if t, ok := floatParam(pc.cmd.Parameters, "ambient_temp_celsius"); ok {
			a.gen.AmbientTemp = t
		}
		// Status is untouched; the ack still closes the loop.

	default:
		return a.rejectLocked(pc, fmt.Sprintf("unknown command type %q", pc.cmd.CommandType))
	}

	reason := pc.cmd.Reason
	if reason == "" {
		reason = fmt.Sprintf("command %s applied", pc.cmd.CommandType)
	}
	return statusEvent{
		correlationID: pc.correlationID,
		payload: bus.StatusChangePayload{
			VehicleID:      v.Identity.VehicleID,
			PreviousStatus: prev,
			NewStatus:      v.Status,
			Reason:         reason,
		},
	}
}

func (a *Agent) rejectLocked(pc pendingCommand, reason string) statusEvent {
	return statusEvent{
		correlationID: pc.correlationID,
		payload: bus.StatusChangePayload{
			VehicleID:      a.vehicle.Identity.VehicleID,
			PreviousStatus: a.vehicle.Status,
			NewStatus:      a.vehicle.Status,
			Reason:         reason,
			Rejected:       true,
		},
	}
}

// stringParam pulls a string out of a decoded JSON parameter map.
func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// floatParam pulls a number out of a decoded JSON parameter map.
func floatParam(params map[string]any, key string) (float64, bool) {
	f, ok := params[key].(float64)
	return f, ok
}

// destinationParam decodes the nested destination object carried by
// dispatch commands.
func destinationParam(params map[string]any) (telemetry.Position, bool) {
	raw, ok := params["destination"].(map[string]any)
	if !ok {
		return telemetry.Position{}, false
	}
	lat, latOK := raw["latitude"].(float64)
	lon, lonOK := raw["longitude"].(float64)
	if !latOK || !lonOK {
		return telemetry.Position{}, false
	}
	return telemetry.Position{Lat: lat, Lon: lon}, true
}
