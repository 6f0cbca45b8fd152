package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

// greptimeClient is the slice of the ingester client the write paths
// need. Tests substitute it.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes fleet history to GreptimeDB via the ingester
// client. Telemetry keeps a curated operational column set; the full
// snapshot fidelity lives in the JSONL log.
type GreptimeDBWriter struct {
	client        greptimeClient
	teleTable     string
	alertTable    string
	dispatchTable string
	stateTable    string
}

// NewGreptimeDBWriter creates the writer and auto-creates tables.
// alertTable, dispatchTable, or stateTable may be empty to skip those
// streams.
func NewGreptimeDBWriter(endpoint, database, teleTable, alertTable, dispatchTable, stateTable string) (*GreptimeDBWriter, error) {
	ctx := ingesterContext.NewContext(context.Background())
	client, err := greptime.NewClient(ctx, &greptime.Config{
		Endpoint: endpoint,
		Database: database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to greptimedb at %s: %w", endpoint, err)
	}

	w := &GreptimeDBWriter{
		client:        client,
		teleTable:     teleTable,
		alertTable:    alertTable,
		dispatchTable: dispatchTable,
		stateTable:    stateTable,
	}
	if err := w.createTables(ctx, client); err != nil {
		return nil, err
	}
	return w, nil
}

// createTables issues the DDL up front so the table TTLs are set; the
// ingest path would otherwise auto-create them without one.
func (w *GreptimeDBWriter) createTables(ctx context.Context, client greptime.Client) error {
	ddls := map[string]string{
		w.teleTable: `
CREATE TABLE IF NOT EXISTS %s (
  vehicle_id STRING TAG,
  fleet_id STRING TAG,
  sequence_number DOUBLE,
  status STRING,
  lat DOUBLE,
  lon DOUBLE,
  speed_kmh DOUBLE,
  heading_degrees DOUBLE,
  engine_temp_celsius DOUBLE,
  engine_rpm DOUBLE,
  coolant_temp_celsius DOUBLE,
  oil_pressure_psi DOUBLE,
  transmission_temp_celsius DOUBLE,
  battery_voltage DOUBLE,
  battery_state_of_charge_percent DOUBLE,
  alternator_voltage DOUBLE,
  fuel_level_percent DOUBLE,
  fuel_consumption_lph DOUBLE,
  brake_pad_min_mm DOUBLE,
  brake_fluid_level_percent DOUBLE,
  tire_pressure_min_psi DOUBLE,
  vibration_z DOUBLE,
  odometer_km DOUBLE,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='30d')
`,
		w.alertTable: `
CREATE TABLE IF NOT EXISTS %s (
  vehicle_id STRING TAG,
  alert_id STRING,
  severity STRING,
  category STRING,
  component STRING,
  failure_probability DOUBLE,
  confidence DOUBLE,
  predicted_failure_likely_hours DOUBLE,
  safe_to_operate STRING,
  recommended_action STRING,
  supersedes_alert_id STRING,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='90d')
`,
		w.dispatchTable: `
CREATE TABLE IF NOT EXISTS %s (
  fleet_id STRING TAG,
  event_type STRING,
  emergency_id STRING,
  vehicle_ids STRING,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='90d')
`,
		w.stateTable: `
CREATE TABLE IF NOT EXISTS %s (
  fleet_id STRING TAG,
  active_vehicles DOUBLE,
  active_failures DOUBLE,
  active_emergencies DOUBLE,
  messages_published DOUBLE,
  publish_failures DOUBLE,
  chaos_mode STRING,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='30d')
`,
	}
	for name, ddl := range ddls {
		if name == "" {
			continue
		}
		if _, err := client.SQL(ctx, fmt.Sprintf(ddl, name)); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}

// Write inserts a single telemetry snapshot.
func (w *GreptimeDBWriter) Write(row telemetry.Snapshot) error {
	return w.WriteBatch([]telemetry.Snapshot{row})
}

// WriteBatch inserts multiple telemetry snapshots.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	ctx := ingesterContext.NewContext(context.Background())

	tbl := table.New(w.teleTable)
	tbl.AddTagColumn("vehicle_id", types.StringType, 0)
	tbl.AddTagColumn("fleet_id", types.StringType, 0)
	tbl.AddFieldColumn("sequence_number", types.Float64Type)
	tbl.AddFieldColumn("status", types.StringType)
	tbl.AddFieldColumn("lat", types.Float64Type)
	tbl.AddFieldColumn("lon", types.Float64Type)
	tbl.AddFieldColumn("speed_kmh", types.Float64Type)
	tbl.AddFieldColumn("heading_degrees", types.Float64Type)
	tbl.AddFieldColumn("engine_temp_celsius", types.Float64Type)
	tbl.AddFieldColumn("engine_rpm", types.Float64Type)
	tbl.AddFieldColumn("coolant_temp_celsius", types.Float64Type)
	tbl.AddFieldColumn("oil_pressure_psi", types.Float64Type)
	tbl.AddFieldColumn("transmission_temp_celsius", types.Float64Type)
	tbl.AddFieldColumn("battery_voltage", types.Float64Type)
	tbl.AddFieldColumn("battery_state_of_charge_percent", types.Float64Type)
	tbl.AddFieldColumn("alternator_voltage", types.Float64Type)
	tbl.AddFieldColumn("fuel_level_percent", types.Float64Type)
	tbl.AddFieldColumn("fuel_consumption_lph", types.Float64Type)
	tbl.AddFieldColumn("brake_pad_min_mm", types.Float64Type)
	tbl.AddFieldColumn("brake_fluid_level_percent", types.Float64Type)
	tbl.AddFieldColumn("tire_pressure_min_psi", types.Float64Type)
	tbl.AddFieldColumn("vibration_z", types.Float64Type)
	tbl.AddFieldColumn("odometer_km", types.Float64Type)
	tbl.SetTimeIndex("ts", types.TimestampType)

	for _, r := range rows {
		tbl.AppendTagValue("vehicle_id", r.VehicleID)
		tbl.AppendTagValue("fleet_id", r.FleetID)
		tbl.AppendFieldValue("sequence_number", float64(r.SequenceNumber))
		tbl.AppendFieldValue("status", string(r.Status))
		tbl.AppendFieldValue("lat", r.Location.Lat)
		tbl.AppendFieldValue("lon", r.Location.Lon)
		tbl.AppendFieldValue("speed_kmh", r.SpeedKMH)
		tbl.AppendFieldValue("heading_degrees", r.Heading)
		tbl.AppendFieldValue("engine_temp_celsius", r.EngineTempCelsius)
		tbl.AppendFieldValue("engine_rpm", r.EngineRPM)
		tbl.AppendFieldValue("coolant_temp_celsius", r.CoolantTempCelsius)
		tbl.AppendFieldValue("oil_pressure_psi", r.OilPressurePSI)
		tbl.AppendFieldValue("transmission_temp_celsius", r.TransmissionTempCelsius)
		tbl.AppendFieldValue("battery_voltage", r.BatteryVoltage)
		tbl.AppendFieldValue("battery_state_of_charge_percent", r.StateOfChargePercent)
		tbl.AppendFieldValue("alternator_voltage", r.AlternatorVoltage)
		tbl.AppendFieldValue("fuel_level_percent", r.FuelLevelPercent)
		tbl.AppendFieldValue("fuel_consumption_lph", r.FuelConsumptionLPH)
		tbl.AppendFieldValue("brake_pad_min_mm", r.BrakePadMM.Min())
		tbl.AppendFieldValue("brake_fluid_level_percent", r.BrakeFluidPercent)
		tbl.AppendFieldValue("tire_pressure_min_psi", r.TirePressurePSI.Min())
		tbl.AppendFieldValue("vibration_z", r.VibrationG.Z)
		tbl.AppendFieldValue("odometer_km", r.OdometerKM)
		tbl.AppendTimeIndex(r.Timestamp)
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("write %d telemetry rows: %w", len(rows), err)
	}
	return nil
}

// WriteAlert inserts a single alert, if enabled.
func (w *GreptimeDBWriter) WriteAlert(a rules.Alert) error {
	return w.WriteAlerts([]rules.Alert{a})
}

// WriteAlerts inserts multiple alerts.
func (w *GreptimeDBWriter) WriteAlerts(rows []rules.Alert) error {
	if w.alertTable == "" || len(rows) == 0 {
		return nil
	}

	ctx := ingesterContext.NewContext(context.Background())

	tbl := table.New(w.alertTable)
	tbl.AddTagColumn("vehicle_id", types.StringType, 0)
	tbl.AddFieldColumn("alert_id", types.StringType)
	tbl.AddFieldColumn("severity", types.StringType)
	tbl.AddFieldColumn("category", types.StringType)
	tbl.AddFieldColumn("component", types.StringType)
	tbl.AddFieldColumn("failure_probability", types.Float64Type)
	tbl.AddFieldColumn("confidence", types.Float64Type)
	tbl.AddFieldColumn("predicted_failure_likely_hours", types.Float64Type)
	tbl.AddFieldColumn("safe_to_operate", types.StringType)
	tbl.AddFieldColumn("recommended_action", types.StringType)
	tbl.AddFieldColumn("supersedes_alert_id", types.StringType)
	tbl.SetTimeIndex("ts", types.TimestampType)

	for _, a := range rows {
		tbl.AppendTagValue("vehicle_id", a.VehicleID)
		tbl.AppendFieldValue("alert_id", a.AlertID)
		tbl.AppendFieldValue("severity", string(a.Severity))
		tbl.AppendFieldValue("category", a.Category)
		tbl.AppendFieldValue("component", a.Component)
		tbl.AppendFieldValue("failure_probability", a.FailureProbability)
		tbl.AppendFieldValue("confidence", a.Confidence)
		tbl.AppendFieldValue("predicted_failure_likely_hours", a.PredictedFailureLikelyHours)
		tbl.AppendFieldValue("safe_to_operate", strconv.FormatBool(a.SafeToOperate))
		tbl.AppendFieldValue("recommended_action", a.RecommendedAction)
		tbl.AppendFieldValue("supersedes_alert_id", a.SupersedesAlertID)
		tbl.AppendTimeIndex(a.Timestamp)
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("write %d alert rows: %w", len(rows), err)
	}
	return nil
}

// WriteDispatchEvent inserts a single dispatch event, if enabled.
func (w *GreptimeDBWriter) WriteDispatchEvent(e telemetry.DispatchEventRow) error {
	return w.WriteDispatchEvents([]telemetry.DispatchEventRow{e})
}

// WriteDispatchEvents inserts multiple dispatch events.
func (w *GreptimeDBWriter) WriteDispatchEvents(rows []telemetry.DispatchEventRow) error {
	if w.dispatchTable == "" || len(rows) == 0 {
		return nil
	}

	ctx := ingesterContext.NewContext(context.Background())

	tbl := table.New(w.dispatchTable)
	tbl.AddTagColumn("fleet_id", types.StringType, 0)
	tbl.AddFieldColumn("event_type", types.StringType)
	tbl.AddFieldColumn("emergency_id", types.StringType)
	tbl.AddFieldColumn("vehicle_ids", types.StringType)
	tbl.SetTimeIndex("ts", types.TimestampType)

	for _, e := range rows {
		tbl.AppendTagValue("fleet_id", e.FleetID)
		tbl.AppendFieldValue("event_type", e.EventType)
		tbl.AppendFieldValue("emergency_id", e.EmergencyID)
		tbl.AppendFieldValue("vehicle_ids", strings.Join(e.VehicleIDs, ","))
		tbl.AppendTimeIndex(e.Timestamp)
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("write %d dispatch rows: %w", len(rows), err)
	}
	return nil
}

// WriteState inserts a single state row, if enabled.
func (w *GreptimeDBWriter) WriteState(row telemetry.SimulationStateRow) error {
	return w.WriteStates([]telemetry.SimulationStateRow{row})
}

// WriteStates inserts multiple state rows.
func (w *GreptimeDBWriter) WriteStates(rows []telemetry.SimulationStateRow) error {
	if w.stateTable == "" || len(rows) == 0 {
		return nil
	}

	ctx := ingesterContext.NewContext(context.Background())

	tbl := table.New(w.stateTable)
	tbl.AddTagColumn("fleet_id", types.StringType, 0)
	tbl.AddFieldColumn("active_vehicles", types.Float64Type)
	tbl.AddFieldColumn("active_failures", types.Float64Type)
	tbl.AddFieldColumn("active_emergencies", types.Float64Type)
	tbl.AddFieldColumn("messages_published", types.Float64Type)
	tbl.AddFieldColumn("publish_failures", types.Float64Type)
	tbl.AddFieldColumn("chaos_mode", types.StringType)
	tbl.SetTimeIndex("ts", types.TimestampType)

	for _, r := range rows {
		tbl.AppendTagValue("fleet_id", r.FleetID)
		tbl.AppendFieldValue("active_vehicles", float64(r.ActiveVehicles))
		tbl.AppendFieldValue("active_failures", float64(r.ActiveFailures))
		tbl.AppendFieldValue("active_emergencies", float64(r.ActiveEmergencies))
		tbl.AppendFieldValue("messages_published", float64(r.MessagesPublished))
		tbl.AppendFieldValue("publish_failures", float64(r.PublishFailures))
		tbl.AppendFieldValue("chaos_mode", strconv.FormatBool(r.ChaosMode))
		tbl.AppendTimeIndex(r.Timestamp)
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("write %d state rows: %w", len(rows), err)
	}
	return nil
}
