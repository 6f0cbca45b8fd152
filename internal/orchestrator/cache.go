package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aegis-sim/internal/telemetry"
)

// DefaultCacheTTL bounds how long a vehicle's cached state outlives
// its last telemetry.
const DefaultCacheTTL = 5 * time.Minute

// StateCache mirrors each vehicle's latest telemetry into Redis so
// external consumers can read fleet state without speaking the bus
// protocol: one hash per vehicle plus a geo set per fleet for radius
// queries.
type StateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateCache wraps an existing Redis client, typically the broker
// connection. A non-positive ttl falls back to DefaultCacheTTL.
func NewStateCache(client *redis.Client, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &StateCache{client: client, ttl: ttl}
}

// vehicleKey is the hash holding one vehicle's latest state.
func vehicleKey(vehicleID string) string {
	return fmt.Sprintf("aegis:vehicle:%s", vehicleID)
}

// fleetGeoKey is the geo set of vehicle positions for one fleet.
func fleetGeoKey(fleetID string) string {
	return fmt.Sprintf("aegis:geo:%s", fleetID)
}

// vehicleFields flattens a snapshot into the hash fields external
// consumers read.
func vehicleFields(snap telemetry.Snapshot) map[string]any {
	return map[string]any{
		"vehicle_id":          snap.VehicleID,
		"fleet_id":            snap.FleetID,
		"status":              string(snap.Status),
		"lat":                 snap.Location.Lat,
		"lon":                 snap.Location.Lon,
		"speed_kmh":           snap.SpeedKMH,
		"heading_degrees":     snap.Heading,
		"fuel_level_percent":  snap.FuelLevelPercent,
		"battery_voltage":     snap.BatteryVoltage,
		"engine_temp_celsius": snap.EngineTempCelsius,
		"sequence_number":     snap.SequenceNumber,
		"ts":                  snap.Timestamp.UTC().Format(time.RFC3339),
	}
}

// UpdateVehicle writes the snapshot's hash, refreshes its TTL, and
// updates the fleet geo set in one pipeline round trip.
func (c *StateCache) UpdateVehicle(ctx context.Context, snap telemetry.Snapshot) error {
	key := vehicleKey(snap.VehicleID)
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, vehicleFields(snap))
		p.Expire(ctx, key, c.ttl)
		p.GeoAdd(ctx, fleetGeoKey(snap.FleetID), &redis.GeoLocation{
			Name:      snap.VehicleID,
			Longitude: snap.Location.Lon,
			Latitude:  snap.Location.Lat,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache %s: %w", snap.VehicleID, err)
	}
	return nil
}
