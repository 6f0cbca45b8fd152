// Telemetry types shared by the vehicle agents and the orchestrator.
package telemetry

import (
	"os"
	"time"
)

// VehicleType identifies the kind of emergency vehicle.
type VehicleType string

const (
	TypeAmbulance VehicleType = "ambulance"
	TypeFireTruck VehicleType = "fire_truck"
	TypePolice    VehicleType = "police"
)

// OperationalStatus is the vehicle's high-level operating state.
// StatusOffline is inferred by the orchestrator only; agents never
// report it about themselves.
type OperationalStatus string

const (
	StatusIdle         OperationalStatus = "idle"
	StatusEnRoute      OperationalStatus = "en_route"
	StatusOnScene      OperationalStatus = "on_scene"
	StatusReturning    OperationalStatus = "returning"
	StatusMaintenance  OperationalStatus = "maintenance"
	StatusOutOfService OperationalStatus = "out_of_service"
	StatusOffline      OperationalStatus = "offline"
)

// VehicleIdentity is fixed at agent construction and never mutated.
type VehicleIdentity struct {
	VehicleID  string      `json:"vehicle_id"`
	Type       VehicleType `json:"type"`
	UnitNumber string      `json:"unit_number"`
	FleetID    string      `json:"fleet_id"`
	StationID  string      `json:"station_id"`
	Make       string      `json:"make,omitempty"`
	Model      string      `json:"model,omitempty"`
	Year       int         `json:"year,omitempty"`
}

// Position holds latitude, longitude, and altitude.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Wheels holds one value per wheel position.
type Wheels struct {
	FrontLeft  float64 `json:"front_left"`
	FrontRight float64 `json:"front_right"`
	RearLeft   float64 `json:"rear_left"`
	RearRight  float64 `json:"rear_right"`
}

// Min returns the smallest of the four wheel values.
func (w Wheels) Min() float64 {
	min := w.FrontLeft
	for _, v := range []float64{w.FrontRight, w.RearLeft, w.RearRight} {
		if v < min {
			min = v
		}
	}
	return min
}

// Vibration holds accelerometer readings in g per axis.
type Vibration struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Snapshot is one complete sensor reading set for a vehicle at one tick.
// Snapshots are immutable once published; anything that needs to change
// one builds a copy.
type Snapshot struct {
	VehicleID      string            `json:"vehicle_id"`      // TAG
	FleetID        string            `json:"fleet_id"`        // TAG
	SequenceNumber uint64            `json:"sequence_number"` // FIELD
	Status         OperationalStatus `json:"status"`          // FIELD
	Timestamp      time.Time         `json:"ts"`              // TIME INDEX

	// Location and motion
	Location Position `json:"location"`
	Heading  float64  `json:"heading_degrees"`
	SpeedKMH float64  `json:"speed_kmh"`

	// Engine
	EngineTempCelsius       float64 `json:"engine_temp_celsius"`
	EngineRPM               float64 `json:"engine_rpm"`
	CoolantTempCelsius      float64 `json:"coolant_temp_celsius"`
	OilPressurePSI          float64 `json:"oil_pressure_psi"`
	OilTempCelsius          float64 `json:"oil_temp_celsius"`
	TransmissionTempCelsius float64 `json:"transmission_temp_celsius"`
	ThrottlePercent         float64 `json:"throttle_position_percent"`

	// Electrical
	BatteryVoltage       float64 `json:"battery_voltage"`
	BatteryCurrentAmps   float64 `json:"battery_current_amps"`
	AlternatorVoltage    float64 `json:"alternator_voltage"`
	StateOfChargePercent float64 `json:"battery_state_of_charge_percent"`
	BatteryHealthPercent float64 `json:"battery_health_percent"`

	// Fuel
	FuelLevelPercent   float64 `json:"fuel_level_percent"`
	FuelLevelLiters    float64 `json:"fuel_level_liters"`
	FuelConsumptionLPH float64 `json:"fuel_consumption_lph"`

	// Brakes
	BrakePadMM        Wheels  `json:"brake_pad_thickness_mm"`
	BrakeTempCelsius  Wheels  `json:"brake_temp_celsius"`
	BrakeFluidPercent float64 `json:"brake_fluid_level_percent"`
	ABSActive         bool    `json:"abs_active"`

	// Tires
	TirePressurePSI Wheels `json:"tire_pressure_psi"`
	TireTempCelsius Wheels `json:"tire_temp_celsius"`

	// Chassis
	VibrationG Vibration `json:"vibration_g_force"`
	OdometerKM float64   `json:"odometer_km"`

	// Environment
	CabinTempCelsius    float64 `json:"cabin_temp_celsius"`
	ExteriorTempCelsius float64 `json:"exterior_temp_celsius"`
	HumidityPercent     float64 `json:"humidity_percent"`

	// Emergency equipment
	SirenActive  bool `json:"siren_active"`
	LightsActive bool `json:"lights_active"`
}

// TelemetryTableName holds the table name used when writing telemetry
// history. It defaults to "vehicle_telemetry" but can be overridden via
// the GREPTIMEDB_TABLE environment variable.
var TelemetryTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "vehicle_telemetry"
}()

func (Snapshot) TableName() string {
	return TelemetryTableName
}

// Vehicle holds runtime state for one simulated vehicle. The sensor
// block is the integrated "true" state; published snapshots add noise
// on top of it and never feed back in.
type Vehicle struct {
	Identity VehicleIdentity

	Position       Position
	Heading        float64
	SpeedKMH       float64
	TargetSpeedKMH float64

	// Home is the station the vehicle returns to; Destination is the
	// active dispatch target, nil when none.
	Home        Position
	Destination *Position

	Status      OperationalStatus
	EmergencyID string

	// Caps imposed by local safety decisions; zero means uncapped.
	SpeedCapKMH float64
	RPMCap      float64

	Seq     uint64
	Sensors SensorState
}

// SensorState is the integrated physical state a vehicle carries
// between ticks.
type SensorState struct {
	EngineTemp       float64
	EngineRPM        float64
	CoolantTemp      float64
	OilPressure      float64
	OilTemp          float64
	TransmissionTemp float64
	Throttle         float64

	BatteryVoltage float64
	BatteryCurrent float64
	Alternator     float64
	StateOfCharge  float64
	BatteryHealth  float64

	FuelPercent float64
	FuelLiters  float64
	FuelRate    float64

	BrakePads  Wheels
	BrakeTemps Wheels
	BrakeFluid float64

	TirePressure Wheels
	TireTemps    Wheels

	Vibration Vibration
	Odometer  float64

	CabinTemp    float64
	ExteriorTemp float64
	Humidity     float64
}

// FuelTankLiters is the assumed tank capacity used to convert between
// percent and liters.
const FuelTankLiters = 40.0
