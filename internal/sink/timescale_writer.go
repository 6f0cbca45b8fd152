package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// TimescaleWriter persists fleet history into TimescaleDB hypertables.
// Telemetry goes in via COPY; alerts and events are plain inserts.
type TimescaleWriter struct {
	pool *pgxpool.Pool
}

// NewTimescaleWriter connects, verifies, and creates the schema.
func NewTimescaleWriter(ctx context.Context, connStr string) (*TimescaleWriter, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	w := &TimescaleWriter{pool: pool}
	if err := w.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func (w *TimescaleWriter) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vehicle_telemetry (
			ts                  TIMESTAMPTZ      NOT NULL,
			vehicle_id          TEXT             NOT NULL,
			fleet_id            TEXT             NOT NULL,
			sequence_number     BIGINT           NOT NULL,
			status              TEXT             NOT NULL,
			lat                 DOUBLE PRECISION NOT NULL,
			lon                 DOUBLE PRECISION NOT NULL,
			speed_kmh           DOUBLE PRECISION NOT NULL,
			engine_temp_celsius DOUBLE PRECISION NOT NULL,
			engine_rpm          DOUBLE PRECISION NOT NULL,
			oil_pressure_psi    DOUBLE PRECISION NOT NULL,
			battery_voltage     DOUBLE PRECISION NOT NULL,
			battery_soc_percent DOUBLE PRECISION NOT NULL,
			fuel_level_percent  DOUBLE PRECISION NOT NULL,
			brake_pad_min_mm    DOUBLE PRECISION NOT NULL,
			tire_pressure_min   DOUBLE PRECISION NOT NULL,
			odometer_km         DOUBLE PRECISION NOT NULL,
			siren_active        BOOLEAN          NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vehicle_alerts (
			ts                  TIMESTAMPTZ      NOT NULL,
			alert_id            TEXT             NOT NULL,
			vehicle_id          TEXT             NOT NULL,
			severity            TEXT             NOT NULL,
			category            TEXT             NOT NULL,
			component           TEXT             NOT NULL,
			failure_probability DOUBLE PRECISION NOT NULL,
			confidence          DOUBLE PRECISION NOT NULL,
			likely_hours        DOUBLE PRECISION NOT NULL,
			safe_to_operate     BOOLEAN          NOT NULL,
			can_complete        BOOLEAN          NOT NULL,
			recommended_action  TEXT             NOT NULL,
			supersedes_alert_id TEXT             NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_events (
			ts           TIMESTAMPTZ NOT NULL,
			fleet_id     TEXT        NOT NULL,
			event_type   TEXT        NOT NULL,
			emergency_id TEXT        NOT NULL,
			vehicle_ids  TEXT        NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS simulation_state (
			ts                 TIMESTAMPTZ NOT NULL,
			fleet_id           TEXT        NOT NULL,
			active_vehicles    INT         NOT NULL,
			active_failures    INT         NOT NULL,
			active_emergencies INT         NOT NULL,
			messages_published INT         NOT NULL,
			publish_failures   INT         NOT NULL,
			chaos_mode         BOOLEAN     NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Hypertables are optional: plain Postgres works, TimescaleDB
	// partitions. Ignore errors from missing extension.
	for _, tbl := range []string{"vehicle_telemetry", "vehicle_alerts", "dispatch_events", "simulation_state"} {
		_, err := w.pool.Exec(ctx,
			fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", tbl))
		if err != nil {
			break
		}
	}
	return nil
}

var telemetryColumns = []string{
	"ts",
	"vehicle_id",
	"fleet_id",
	"sequence_number",
	"status",
	"lat",
	"lon",
	"speed_kmh",
	"engine_temp_celsius",
	"engine_rpm",
	"oil_pressure_psi",
	"battery_voltage",
	"battery_soc_percent",
	"fuel_level_percent",
	"brake_pad_min_mm",
	"tire_pressure_min",
	"odometer_km",
	"siren_active",
}

// Write inserts a single telemetry snapshot.
func (w *TimescaleWriter) Write(row telemetry.Snapshot) error {
	return w.WriteBatch([]telemetry.Snapshot{row})
}

// WriteBatch inserts telemetry snapshots via COPY.
func (w *TimescaleWriter) WriteBatch(rows []telemetry.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = []interface{}{
			r.Timestamp,
			r.VehicleID,
			r.FleetID,
			int64(r.SequenceNumber),
			string(r.Status),
			r.Location.Lat,
			r.Location.Lon,
			r.SpeedKMH,
			r.EngineTempCelsius,
			r.EngineRPM,
			r.OilPressurePSI,
			r.BatteryVoltage,
			r.StateOfChargePercent,
			r.FuelLevelPercent,
			r.BrakePadMM.Min(),
			r.TirePressurePSI.Min(),
			r.OdometerKM,
			r.SirenActive,
		}
	}

	_, err := w.pool.CopyFrom(
		context.Background(),
		pgx.Identifier{"vehicle_telemetry"},
		telemetryColumns,
		pgx.CopyFromRows(values),
	)
	if err != nil {
		return fmt.Errorf("copy %d telemetry rows: %w", len(rows), err)
	}
	return nil
}

// WriteAlert inserts a single alert.
func (w *TimescaleWriter) WriteAlert(a rules.Alert) error {
	query := `
		INSERT INTO vehicle_alerts
			(ts, alert_id, vehicle_id, severity, category, component,
			 failure_probability, confidence, likely_hours,
			 safe_to_operate, can_complete, recommended_action, supersedes_alert_id)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := w.pool.Exec(
		context.Background(),
		query,
		a.Timestamp,
		a.AlertID,
		a.VehicleID,
		string(a.Severity),
		a.Category,
		a.Component,
		a.FailureProbability,
		a.Confidence,
		a.PredictedFailureLikelyHours,
		a.SafeToOperate,
		a.CanCompleteMission,
		a.RecommendedAction,
		a.SupersedesAlertID,
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.AlertID, err)
	}
	return nil
}

// WriteDispatchEvent inserts a single dispatch event.
func (w *TimescaleWriter) WriteDispatchEvent(e telemetry.DispatchEventRow) error {
	query := `
		INSERT INTO dispatch_events
			(ts, fleet_id, event_type, emergency_id, vehicle_ids)
		VALUES
			($1, $2, $3, $4, $5)
	`
	_, err := w.pool.Exec(
		context.Background(),
		query,
		e.Timestamp,
		e.FleetID,
		e.EventType,
		e.EmergencyID,
		strings.Join(e.VehicleIDs, ","),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch event: %w", err)
	}
	return nil
}

// WriteState inserts a single state row.
func (w *TimescaleWriter) WriteState(row telemetry.SimulationStateRow) error {
	query := `
		INSERT INTO simulation_state
			(ts, fleet_id, active_vehicles, active_failures, active_emergencies,
			 messages_published, publish_failures, chaos_mode)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := w.pool.Exec(
		context.Background(),
		query,
		row.Timestamp,
		row.FleetID,
		row.ActiveVehicles,
		row.ActiveFailures,
		row.ActiveEmergencies,
		row.MessagesPublished,
		row.PublishFailures,
		row.ChaosMode,
	)
	if err != nil {
		return fmt.Errorf("insert state row: %w", err)
	}
	return nil
}

// Ping checks database health.
func (w *TimescaleWriter) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Close releases the connection pool.
func (w *TimescaleWriter) Close() {
	w.pool.Close()
}
