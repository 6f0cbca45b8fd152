// Package failure injects time-based degradation scenarios into
// telemetry snapshots.
package failure

import "aegis-sim/internal/telemetry"

// Scenario identifies one predefined failure mode.
type Scenario string

const (
	// Engine
	EngineOverheat  Scenario = "engine_overheat"
	OilPressureDrop Scenario = "oil_pressure_drop"
	CoolantLeak     Scenario = "coolant_leak"

	// Electrical
	AlternatorFailure  Scenario = "alternator_failure"
	BatteryDegradation Scenario = "battery_degradation"
	VoltageSpike       Scenario = "voltage_spike"

	// Brakes
	BrakePadWearCritical Scenario = "brake_pad_wear_critical"
	BrakeFluidLeak       Scenario = "brake_fluid_leak"
	ABSMalfunction       Scenario = "abs_malfunction"

	// Tires
	TirePressureLow Scenario = "tire_pressure_low"
	TireBlowout     Scenario = "tire_blowout"
	UnevenTireWear  Scenario = "uneven_tire_wear"

	// Fuel system
	FuelPumpFailure Scenario = "fuel_pump_failure"
	FuelLeak        Scenario = "fuel_leak"
	InjectorClog    Scenario = "injector_clog"

	// Transmission
	TransmissionOverheat Scenario = "transmission_overheat"
	GearSlippage         Scenario = "gear_slippage"

	// Vehicle-type specific equipment
	WaterPumpFailure        Scenario = "water_pump_failure"
	LadderHydraulicLeak     Scenario = "ladder_hydraulic_leak"
	DefibrillatorBatteryLow Scenario = "defibrillator_battery_low"
	MedicalOxygenLow        Scenario = "medical_oxygen_low"
)

// Known reports whether s is a recognized scenario name.
func Known(s Scenario) bool {
	switch s {
	case EngineOverheat, OilPressureDrop, CoolantLeak,
		AlternatorFailure, BatteryDegradation, VoltageSpike,
		BrakePadWearCritical, BrakeFluidLeak, ABSMalfunction,
		TirePressureLow, TireBlowout, UnevenTireWear,
		FuelPumpFailure, FuelLeak, InjectorClog,
		TransmissionOverheat, GearSlippage,
		WaterPumpFailure, LadderHydraulicLeak,
		DefibrillatorBatteryLow, MedicalOxygenLow:
		return true
	}
	return false
}

// field selects one snapshot value a progression can shift.
type field int

const (
	fieldEngineTemp field = iota
	fieldCoolantTemp
	fieldOilPressure
	fieldOilTemp
	fieldAlternator
	fieldStateOfCharge
	fieldBatteryHealth
	fieldFuelPercent
	fieldFuelRate
	fieldPadsFront
	fieldPadsRear
	fieldBrakeTemps
	fieldTireFrontLeft
	fieldVibrationZ
	fieldTransmissionTemp
	fieldBrakeFluid
)

// delta is one additive shift with saturation bounds. Floor and Ceil
// are the scenario's physical limits for the affected field.
type delta struct {
	field  field
	amount float64
	floor  float64
	ceil   float64
}

// progression returns the deltas a scenario contributes after m
// elapsed minutes. Scenarios without an entry degrade nothing; they
// still count as active equipment faults.
func progression(s Scenario, m float64) []delta {
	switch s {
	case EngineOverheat:
		return []delta{
			{fieldEngineTemp, 2.0 * m, -40, 150},
			{fieldCoolantTemp, 2.5 * m, -40, 150},
		}
	case CoolantLeak:
		return []delta{
			{fieldCoolantTemp, 1.8 * m, -40, 150},
			{fieldEngineTemp, 1.2 * m, -40, 150},
		}
	case OilPressureDrop:
		return []delta{
			{fieldOilPressure, -1.5 * m, 5, 100},
			{fieldOilTemp, 1.0 * m, -40, 140},
		}
	case AlternatorFailure:
		return []delta{
			{fieldAlternator, -(m / 5.0) * 0.1, 11.5, 30},
			{fieldStateOfCharge, -3.0 * m, 0, 100},
		}
	case BatteryDegradation:
		return []delta{
			{fieldBatteryHealth, -0.2 * m, 40, 100},
			{fieldStateOfCharge, -0.5 * m, 0, 100},
		}
	case BrakePadWearCritical:
		return []delta{
			{fieldPadsFront, -0.05 * m * 1.3, 0, 15},
			{fieldPadsRear, -0.05 * m, 0, 15},
			{fieldBrakeTemps, 15 + 0.5*m, -40, 120},
		}
	case BrakeFluidLeak:
		return []delta{
			{fieldBrakeFluid, -1.2 * m, 0, 100},
		}
	case TirePressureLow:
		return []delta{
			{fieldTireFrontLeft, -2.0 * m, 0, 120},
			{fieldVibrationZ, minf(0.02*m, 0.5), 0, 5},
		}
	case FuelLeak:
		return []delta{
			{fieldFuelPercent, -0.8 * m, 0, 100},
			{fieldFuelRate, minf(0.5*m, 10), 0, 60},
		}
	case TransmissionOverheat:
		return []delta{
			{fieldTransmissionTemp, 1.6 * m, -40, 160},
		}
	}
	return nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// applyField shifts one snapshot field by the accumulated amount and
// clamps to the tightest bounds seen across contributing scenarios.
func applyField(snap *telemetry.Snapshot, f field, amount, floor, ceil float64) {
	cl := func(v float64) float64 {
		if v < floor {
			return floor
		}
		if v > ceil {
			return ceil
		}
		return v
	}
	switch f {
	case fieldEngineTemp:
		snap.EngineTempCelsius = cl(snap.EngineTempCelsius + amount)
	case fieldCoolantTemp:
		snap.CoolantTempCelsius = cl(snap.CoolantTempCelsius + amount)
	case fieldOilPressure:
		snap.OilPressurePSI = cl(snap.OilPressurePSI + amount)
	case fieldOilTemp:
		snap.OilTempCelsius = cl(snap.OilTempCelsius + amount)
	case fieldAlternator:
		snap.AlternatorVoltage = cl(snap.AlternatorVoltage + amount)
	case fieldStateOfCharge:
		snap.StateOfChargePercent = cl(snap.StateOfChargePercent + amount)
	case fieldBatteryHealth:
		snap.BatteryHealthPercent = cl(snap.BatteryHealthPercent + amount)
	case fieldFuelPercent:
		snap.FuelLevelPercent = cl(snap.FuelLevelPercent + amount)
	case fieldFuelRate:
		snap.FuelConsumptionLPH = cl(snap.FuelConsumptionLPH + amount)
	case fieldPadsFront:
		snap.BrakePadMM.FrontLeft = cl(snap.BrakePadMM.FrontLeft + amount)
		snap.BrakePadMM.FrontRight = cl(snap.BrakePadMM.FrontRight + amount)
	case fieldPadsRear:
		snap.BrakePadMM.RearLeft = cl(snap.BrakePadMM.RearLeft + amount)
		snap.BrakePadMM.RearRight = cl(snap.BrakePadMM.RearRight + amount)
	case fieldBrakeTemps:
		snap.BrakeTempCelsius.FrontLeft = cl(snap.BrakeTempCelsius.FrontLeft + amount)
		snap.BrakeTempCelsius.FrontRight = cl(snap.BrakeTempCelsius.FrontRight + amount)
		snap.BrakeTempCelsius.RearLeft = cl(snap.BrakeTempCelsius.RearLeft + amount)
		snap.BrakeTempCelsius.RearRight = cl(snap.BrakeTempCelsius.RearRight + amount)
	case fieldTireFrontLeft:
		snap.TirePressurePSI.FrontLeft = cl(snap.TirePressurePSI.FrontLeft + amount)
	case fieldVibrationZ:
		snap.VibrationG.Z = cl(snap.VibrationG.Z + amount)
	case fieldTransmissionTemp:
		snap.TransmissionTempCelsius = cl(snap.TransmissionTempCelsius + amount)
	case fieldBrakeFluid:
		snap.BrakeFluidPercent = cl(snap.BrakeFluidPercent + amount)
	}
}
