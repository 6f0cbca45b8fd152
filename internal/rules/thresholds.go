package rules

import "aegis-sim/internal/telemetry"

// HardLimitEngineTemp is the over-temperature bound past which the
// agent applies its forced limp action regardless of alert state.
const HardLimitEngineTemp = 130.0

// direction says which side of a threshold is unhealthy.
type direction int

const (
	above direction = iota
	below
)

// grade carries the alert template for one severity of one rule.
type grade struct {
	threshold   float64
	probability float64
	confidence  float64
	minHours    float64
	maxHours    float64
	likelyHours float64
	canComplete bool
	safe        bool
	action      string
}

// rule monitors one metric for one component.
type rule struct {
	component string
	category  string
	metric    func(*telemetry.Snapshot) float64
	dir       direction
	warning   grade
	critical  grade
	factors   []string
	related   func(*telemetry.Snapshot) map[string]float64
}

func (r *rule) crossed(g grade, value float64) bool {
	if r.dir == above {
		return value > g.threshold
	}
	return value < g.threshold
}

// monitored is the static rule table. Thresholds and templates follow
// the fleet maintenance envelope for emergency vehicles.
var monitored = []rule{
	{
		component: "engine",
		category:  "engine",
		metric:    func(s *telemetry.Snapshot) float64 { return s.EngineTempCelsius },
		dir:       above,
		warning: grade{
			threshold: 105, probability: 0.65, confidence: 0.85,
			minHours: 2, maxHours: 8, likelyHours: 4,
			canComplete: true, safe: true,
			action: "Reduce speed and monitor engine temperature; schedule cooling system service",
		},
		critical: grade{
			threshold: 120, probability: 0.95, confidence: 0.98,
			minHours: 0.5, maxHours: 2, likelyHours: 1,
			canComplete: false, safe: false,
			action: "STOP IMMEDIATELY - engine damage imminent; engage limp mode and return to station",
		},
		factors: []string{"engine_temp_celsius", "coolant_temp_celsius", "engine_rpm"},
		related: func(s *telemetry.Snapshot) map[string]float64 {
			return map[string]float64{
				"engine_temp_celsius":  s.EngineTempCelsius,
				"coolant_temp_celsius": s.CoolantTempCelsius,
				"engine_rpm":           s.EngineRPM,
			}
		},
	},
	{
		component: "battery",
		category:  "electrical",
		metric:    func(s *telemetry.Snapshot) float64 { return s.BatteryVoltage },
		dir:       below,
		warning: grade{
			threshold: 12.0, probability: 0.6, confidence: 0.8,
			minHours: 1, maxHours: 4, likelyHours: 2,
			canComplete: true, safe: true,
			action: "Reduce electrical load; inspect charging system at next stop",
		},
		critical: grade{
			threshold: 11.5, probability: 0.9, confidence: 0.95,
			minHours: 0.1, maxHours: 1, likelyHours: 0.5,
			canComplete: false, safe: false,
			action: "Battery failure imminent - return to station now",
		},
		factors: []string{"battery_voltage", "alternator_voltage", "battery_state_of_charge_percent"},
		related: func(s *telemetry.Snapshot) map[string]float64 {
			return map[string]float64{
				"battery_voltage":                 s.BatteryVoltage,
				"alternator_voltage":              s.AlternatorVoltage,
				"battery_state_of_charge_percent": s.StateOfChargePercent,
			}
		},
	},
	{
		component: "fuel",
		category:  "fuel",
		metric:    func(s *telemetry.Snapshot) float64 { return s.FuelLevelPercent },
		dir:       below,
		warning: grade{
			threshold: 15, probability: 0.8, confidence: 0.9,
			minHours: 1, maxHours: 3, likelyHours: 2,
			canComplete: true, safe: true,
			action: "Plan refueling after current assignment",
		},
		critical: grade{
			threshold: 5, probability: 0.99, confidence: 0.99,
			minHours: 0.1, maxHours: 0.5, likelyHours: 0.2,
			canComplete: false, safe: true,
			action: "REFUEL IMMEDIATELY - vehicle will be stranded",
		},
		factors: []string{"fuel_level_percent", "fuel_consumption_lph"},
		related: func(s *telemetry.Snapshot) map[string]float64 {
			return map[string]float64{
				"fuel_level_percent":   s.FuelLevelPercent,
				"fuel_consumption_lph": s.FuelConsumptionLPH,
			}
		},
	},
	{
		component: "brakes",
		category:  "brakes",
		metric:    func(s *telemetry.Snapshot) float64 { return s.BrakePadMM.Min() },
		dir:       below,
		warning: grade{
			threshold: 3.0, probability: 0.7, confidence: 0.85,
			minHours: 5, maxHours: 20, likelyHours: 10,
			canComplete: true, safe: true,
			action: "Schedule brake pad replacement",
		},
		critical: grade{
			threshold: 1.5, probability: 0.92, confidence: 0.95,
			minHours: 0.5, maxHours: 3, likelyHours: 1,
			canComplete: false, safe: false,
			action: "Brake failure risk - limit speed and return for service",
		},
		factors: []string{"brake_pad_thickness_mm", "brake_temp_celsius"},
		related: func(s *telemetry.Snapshot) map[string]float64 {
			return map[string]float64{
				"brake_pad_min_mm":     s.BrakePadMM.Min(),
				"brake_temp_front_max": maxf(s.BrakeTempCelsius.FrontLeft, s.BrakeTempCelsius.FrontRight),
			}
		},
	},
	{
		component: "tires",
		category:  "tires",
		metric:    func(s *telemetry.Snapshot) float64 { return s.TirePressurePSI.Min() },
		dir:       below,
		warning: grade{
			threshold: 60, probability: 0.6, confidence: 0.8,
			minHours: 2, maxHours: 10, likelyHours: 5,
			canComplete: true, safe: true,
			action: "Check tire pressure at next stop",
		},
		critical: grade{
			threshold: 50, probability: 0.9, confidence: 0.93,
			minHours: 0.2, maxHours: 2, likelyHours: 0.8,
			canComplete: false, safe: false,
			action: "Pull over - tire failure risk",
		},
		factors: []string{"tire_pressure_psi", "vibration_g_force"},
		related: func(s *telemetry.Snapshot) map[string]float64 {
			return map[string]float64{
				"tire_pressure_min_psi": s.TirePressurePSI.Min(),
				"vibration_z":           s.VibrationG.Z,
			}
		},
	},
	{
		component: "oil",
		category:  "engine",
		metric:    func(s *telemetry.Snapshot) float64 { return s.OilPressurePSI },
		dir:       below,
		warning: grade{
			threshold: 25, probability: 0.7, confidence: 0.85,
			minHours: 2, maxHours: 8, likelyHours: 4,
			canComplete: true, safe: true,
			action: "Check oil level and pressure sensor",
		},
		critical: grade{
			threshold: 15, probability: 0.95, confidence: 0.97,
			minHours: 0.2, maxHours: 1, likelyHours: 0.5,
			canComplete: false, safe: false,
			action: "STOP - oil starvation will destroy the engine",
		},
		factors: []string{"oil_pressure_psi", "oil_temp_celsius"},
		related: func(s *telemetry.Snapshot) map[string]float64 {
			return map[string]float64{
				"oil_pressure_psi": s.OilPressurePSI,
				"oil_temp_celsius": s.OilTempCelsius,
			}
		},
	},
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
