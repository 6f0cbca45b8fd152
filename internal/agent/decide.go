package agent

import (
	"fmt"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

const lowFuelReturnPercent = 5.0

// decideLocked runs the local safety rules that do not wait for the
// orchestrator. Decisions mutate the vehicle immediately and are
// published afterward; a dead broker must never delay pulling an
// overheating engine off the road.
func (a *Agent) decideLocked(reading *telemetry.Snapshot, alerts []rules.Alert, assess rules.Assessment) ([]bus.LocalDecisionPayload, []statusEvent) {
	v := a.vehicle
	var decisions []bus.LocalDecisionPayload
	var events []statusEvent

	// Engine past the hard limit: cap speed and RPM, head home. The
	// caps stay on until a maintenance_mode command clears them.
	if reading.EngineTempCelsius > rules.HardLimitEngineTemp &&
		v.SpeedCapKMH == 0 &&
		v.Status != telemetry.StatusOutOfService && v.Status != telemetry.StatusMaintenance {
		prev := v.Status
		v.SpeedCapKMH = limpSpeedCapKMH
		v.RPMCap = limpRPMCap
		v.Status = telemetry.StatusReturning
		v.EmergencyID = ""
		v.Destination = nil
		v.Heading = telemetry.BearingDegrees(v.Position, v.Home)

		decisions = append(decisions, bus.LocalDecisionPayload{
			VehicleID:    v.Identity.VehicleID,
			DecisionType: "limp_mode",
			Reason: fmt.Sprintf("engine temperature %.1fC exceeds hard limit %.0fC",
				reading.EngineTempCelsius, rules.HardLimitEngineTemp),
			TelemetrySnapshot: map[string]float64{
				"engine_temp_celsius":  reading.EngineTempCelsius,
				"coolant_temp_celsius": reading.CoolantTempCelsius,
				"oil_pressure_psi":     reading.OilPressurePSI,
			},
			AlertIDs:    alertIDsFor(alerts, "engine"),
			ActionTaken: fmt.Sprintf("capped speed at %.0f km/h and RPM at %.0f, returning to station", limpSpeedCapKMH, limpRPMCap),
		})
		events = append(events, statusEvent{payload: bus.StatusChangePayload{
			VehicleID:      v.Identity.VehicleID,
			PreviousStatus: prev,
			NewStatus:      v.Status,
			Reason:         "engine over hard limit, limping home",
		}})
	}

	// Unsafe while idle at the station: take the vehicle out of the
	// availability pool before dispatch can pick it.
	if !assess.SafeToOperate && v.Status == telemetry.StatusIdle {
		v.Status = telemetry.StatusOutOfService
		decisions = append(decisions, bus.LocalDecisionPayload{
			VehicleID:    v.Identity.VehicleID,
			DecisionType: "removed_from_service",
			Reason:       fmt.Sprintf("unsafe to operate: %v", assess.CriticalComponents),
			TelemetrySnapshot: map[string]float64{
				"engine_temp_celsius": reading.EngineTempCelsius,
				"battery_voltage":     reading.BatteryVoltage,
				"oil_pressure_psi":    reading.OilPressurePSI,
				"brake_pad_min_mm":    reading.BrakePadMM.Min(),
			},
			AlertIDs:                     criticalAlertIDs(alerts),
			ActionTaken:                  "vehicle held at station, unavailable for dispatch",
			RequiresOrchestratorOverride: true,
		})
		events = append(events, statusEvent{payload: bus.StatusChangePayload{
			VehicleID:      v.Identity.VehicleID,
			PreviousStatus: telemetry.StatusIdle,
			NewStatus:      telemetry.StatusOutOfService,
			Reason:         "unsafe to operate",
		}})
	}

	// Fuel critical with no emergency assigned: come home before the
	// tank runs dry. An active emergency overrides; dispatch decides.
	if reading.FuelLevelPercent < lowFuelReturnPercent &&
		v.EmergencyID == "" &&
		v.Status != telemetry.StatusReturning &&
		v.Status != telemetry.StatusOutOfService &&
		v.Status != telemetry.StatusMaintenance &&
		telemetry.DistanceKM(v.Position, v.Home) > arrivalRadiusKM {
		prev := v.Status
		v.Status = telemetry.StatusReturning
		v.Destination = nil
		v.Heading = telemetry.BearingDegrees(v.Position, v.Home)
		decisions = append(decisions, bus.LocalDecisionPayload{
			VehicleID:    v.Identity.VehicleID,
			DecisionType: "low_fuel_return",
			Reason:       fmt.Sprintf("fuel at %.1f%%, no emergency assigned", reading.FuelLevelPercent),
			TelemetrySnapshot: map[string]float64{
				"fuel_level_percent": reading.FuelLevelPercent,
				"fuel_level_liters":  reading.FuelLevelLiters,
			},
			AlertIDs:    alertIDsFor(alerts, "fuel"),
			ActionTaken: "returning to station to refuel",
		})
		events = append(events, statusEvent{payload: bus.StatusChangePayload{
			VehicleID:      v.Identity.VehicleID,
			PreviousStatus: prev,
			NewStatus:      telemetry.StatusReturning,
			Reason:         "fuel critical, returning to refuel",
		}})
	}

	return decisions, events
}

func alertIDsFor(alerts []rules.Alert, component string) []string {
	var ids []string
	for _, al := range alerts {
		if al.Component == component {
			ids = append(ids, al.AlertID)
		}
	}
	return ids
}

func criticalAlertIDs(alerts []rules.Alert) []string {
	var ids []string
	for _, al := range alerts {
		if al.Severity == rules.SeverityCritical {
			ids = append(ids, al.AlertID)
		}
	}
	return ids
}
