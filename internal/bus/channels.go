package bus

import (
	"fmt"
	"strings"
)

// Component names one logical stream within a fleet.
type Component string

const (
	ComponentTelemetry Component = "telemetry"
	ComponentHeartbeat Component = "heartbeat"
	ComponentAlerts    Component = "alerts"
	ComponentStatus    Component = "status"
	ComponentDecisions Component = "decisions"
	ComponentCommands  Component = "commands"
	ComponentDashboard Component = "dashboard"
	ComponentBroadcast Component = "broadcast"
)

const channelPrefix = "aegis"

// ChannelName builds the per-vehicle channel for one component, e.g.
// aegis:metro-ems:telemetry:amb-001.
func ChannelName(fleetID string, c Component, vehicleID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", channelPrefix, fleetID, c, vehicleID)
}

// Pattern matches one component's channels across all fleets and
// vehicles.
func Pattern(c Component) string {
	return fmt.Sprintf("%s:*:%s:*", channelPrefix, c)
}

// FleetPattern matches one component across a single fleet.
func FleetPattern(fleetID string, c Component) string {
	return fmt.Sprintf("%s:%s:%s:*", channelPrefix, fleetID, c)
}

// EmergencyChannel carries emergency.new announcements fleet-wide.
const EmergencyChannel = "aegis:emergencies:new"

// DispatchAssignedChannel carries the assignment for one emergency.
func DispatchAssignedChannel(emergencyID string) string {
	return fmt.Sprintf("%s:dispatch:%s:assigned", channelPrefix, emergencyID)
}

// DispatchAssignedPattern matches assignment broadcasts for all
// emergencies.
const DispatchAssignedPattern = "aegis:dispatch:*:assigned"

// DispatchResolvedChannel broadcasts the resolution of one emergency.
func DispatchResolvedChannel(emergencyID string) string {
	return fmt.Sprintf("%s:dispatch:%s:resolved", channelPrefix, emergencyID)
}

// DispatchResolvedPattern matches resolution broadcasts for all
// emergencies.
const DispatchResolvedPattern = "aegis:dispatch:*:resolved"

// VehicleFromChannel extracts the vehicle id from a per-vehicle
// channel name. ok is false when the name has a different shape.
func VehicleFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != channelPrefix {
		return "", false
	}
	return parts[3], true
}

// MatchPattern implements the glob subset channel patterns use: '*'
// matches any run of characters, everything else is literal.
func MatchPattern(pattern, channel string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == channel
	}
	if !strings.HasPrefix(channel, parts[0]) {
		return false
	}
	rest := channel[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return strings.HasSuffix(rest, parts[len(parts)-1])
}
