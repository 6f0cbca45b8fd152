package telemetry

import (
	"math"
	"math/rand"
	"time"
)

// Baseline sensor values for a healthy vehicle at idle.
const (
	BaselineEngineTemp   = 90.0
	BaselineEngineRPM    = 800.0
	BaselineCoolantTemp  = 85.0
	BaselineOilPressure  = 45.0
	BaselineOilTemp      = 90.0
	BaselineTransmission = 75.0
	BaselineBatteryVolt  = 13.8
	BaselineBatteryAmps  = -2.0
	BaselineAlternator   = 14.2
	BaselineSoC          = 95.0
	BaselineHealth       = 92.0
	BaselineFuelPercent  = 75.0
	BaselineFuelRate     = 1.5
	BaselineBrakeFluid   = 100.0
	BaselineCabinTemp    = 22.0
	BaselineExterior     = 20.0
	BaselineHumidity     = 50.0
	BaselineOdometer     = 45678.9
	BaselinePadFront     = 8.0
	BaselinePadRear      = 9.0
	BaselineTirePSI      = 80.0
	BaselineWheelTemp    = 25.0
)

// NewVehicle builds a vehicle with healthy baseline sensor state at the
// given position.
func NewVehicle(id VehicleIdentity, pos Position) *Vehicle {
	return &Vehicle{
		Identity: id,
		Position: pos,
		Home:     pos,
		Status:   StatusIdle,
		Sensors: SensorState{
			EngineTemp:       BaselineEngineTemp,
			EngineRPM:        BaselineEngineRPM,
			CoolantTemp:      BaselineCoolantTemp,
			OilPressure:      BaselineOilPressure,
			OilTemp:          BaselineOilTemp,
			TransmissionTemp: BaselineTransmission,
			BatteryVoltage:   BaselineBatteryVolt,
			BatteryCurrent:   BaselineBatteryAmps,
			Alternator:       BaselineAlternator,
			StateOfCharge:    BaselineSoC,
			BatteryHealth:    BaselineHealth,
			FuelPercent:      BaselineFuelPercent,
			FuelLiters:       BaselineFuelPercent / 100 * FuelTankLiters,
			FuelRate:         BaselineFuelRate,
			BrakePads:        Wheels{BaselinePadFront, BaselinePadFront, BaselinePadRear, BaselinePadRear},
			BrakeTemps:       Wheels{BaselineWheelTemp, BaselineWheelTemp, BaselineWheelTemp, BaselineWheelTemp},
			BrakeFluid:       BaselineBrakeFluid,
			TirePressure:     Wheels{BaselineTirePSI, BaselineTirePSI, BaselineTirePSI, BaselineTirePSI},
			TireTemps:        Wheels{BaselineWheelTemp, BaselineWheelTemp, BaselineWheelTemp, BaselineWheelTemp},
			Vibration:        Vibration{X: 0.01, Y: 0.01, Z: 1.0},
			Odometer:         BaselineOdometer,
			CabinTemp:        BaselineCabinTemp,
			ExteriorTemp:     BaselineExterior,
			Humidity:         BaselineHumidity,
		},
	}
}

// Generator produces per-tick sensor snapshots for vehicles. Published
// values carry gaussian noise; the vehicle's integrated state never
// does, so trajectories stay smooth and runs with the same seed are
// reproducible.
type Generator struct {
	FleetID     string
	AmbientTemp float64
	rng         *rand.Rand
}

// NewGenerator creates a generator for a fleet. A seed of zero derives
// one from the wall clock.
func NewGenerator(fleetID string, ambientTemp float64, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		FleetID:     fleetID,
		AmbientTemp: ambientTemp,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// behaviorTargets returns the speed/RPM/throttle setpoints for a status.
func behaviorTargets(status OperationalStatus) (speedKMH, rpm, throttle float64) {
	switch status {
	case StatusEnRoute:
		return 92, 2600, 65
	case StatusOnScene:
		return 0, 1200, 10
	case StatusReturning:
		return 60, 2000, 40
	case StatusOutOfService:
		return 0, 0, 0
	case StatusMaintenance:
		return 0, 0, 0
	default: // idle
		return 0, BaselineEngineRPM, 0
	}
}

// weightFactor scales acceleration by vehicle mass class.
func weightFactor(t VehicleType) float64 {
	switch t {
	case TypeFireTruck:
		return 0.55
	case TypeAmbulance:
		return 0.8
	default:
		return 1.0
	}
}

// Next advances the vehicle's integrated state by dt and returns the
// published snapshot for this tick.
func (g *Generator) Next(v *Vehicle, dt time.Duration) Snapshot {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		dtSec = 1
	}

	targetSpeed, targetRPM, targetThrottle := behaviorTargets(v.Status)
	if v.TargetSpeedKMH > 0 && targetSpeed > 0 {
		targetSpeed = v.TargetSpeedKMH
	}
	if v.SpeedCapKMH > 0 && targetSpeed > v.SpeedCapKMH {
		targetSpeed = v.SpeedCapKMH
	}
	if v.RPMCap > 0 && targetRPM > v.RPMCap {
		targetRPM = v.RPMCap
	}

	s := &v.Sensors
	engineOff := targetRPM == 0 && s.EngineRPM < 100

	// Kinematics. Available acceleration shrinks with current speed
	// (air resistance) and vehicle weight.
	maxAccel := 3.2 * (1 - v.SpeedKMH/180) * weightFactor(v.Identity.Type) // m/s^2
	if maxAccel < 0.3 {
		maxAccel = 0.3
	}
	maxDelta := maxAccel * dtSec * 3.6 // km/h per tick
	diff := targetSpeed - v.SpeedKMH
	if diff > maxDelta {
		diff = maxDelta
	} else if diff < -2*maxDelta { // braking outpaces accelerating
		diff = -2 * maxDelta
	}
	braking := diff < -0.5*maxDelta
	v.SpeedKMH = clamp(v.SpeedKMH+diff, 0, 200)
	if v.SpeedCapKMH > 0 && v.SpeedKMH > v.SpeedCapKMH {
		v.SpeedKMH = v.SpeedCapKMH
	}

	// Position integrates speed along the heading with mild GPS drift.
	if v.SpeedKMH > 0.5 {
		meters := v.SpeedKMH / 3.6 * dtSec
		v.Heading += (g.rng.Float64() - 0.5) * 4
		v.Heading = math.Mod(v.Heading+360, 360)
		rad := v.Heading * math.Pi / 180
		v.Position.Lat += (meters * math.Cos(rad)) / 111000
		v.Position.Lon += (meters * math.Sin(rad)) / (111000 * math.Cos(v.Position.Lat*math.Pi/180))
	}
	v.Position.Lat += g.rng.NormFloat64() * 2e-6
	v.Position.Lon += g.rng.NormFloat64() * 2e-6
	s.Odometer += v.SpeedKMH * dtSec / 3600

	// Engine and drivetrain follow first-order lags toward their
	// behavior targets.
	s.EngineRPM = approach(s.EngineRPM, targetRPM, dtSec/4)
	if v.RPMCap > 0 && s.EngineRPM > v.RPMCap {
		s.EngineRPM = v.RPMCap
	}
	s.Throttle = clamp(approach(s.Throttle, targetThrottle, dtSec/3), 0, 100)

	coolantDeficit := 0.0
	if s.CoolantTemp > 110 {
		coolantDeficit = (s.CoolantTemp - 110) * 0.2
	}
	engineTarget := 88 + s.EngineRPM/100*1.1 + (g.AmbientTemp-20)*0.3 + coolantDeficit
	if engineOff {
		engineTarget = g.AmbientTemp
	}
	s.EngineTemp = clamp(approach(s.EngineTemp, engineTarget, dtSec/120), -40, 150)
	s.CoolantTemp = clamp(approach(s.CoolantTemp, s.EngineTemp-5, dtSec/90), -40, 150)
	s.OilTemp = clamp(approach(s.OilTemp, s.EngineTemp+2, dtSec/150), -40, 200)
	oilTarget := 25 + s.EngineRPM/1000*9
	if engineOff {
		oilTarget = 0
	}
	s.OilPressure = clamp(approach(s.OilPressure, oilTarget, dtSec/20), 0, 100)
	s.TransmissionTemp = clamp(approach(s.TransmissionTemp, 70+v.SpeedKMH*0.25, dtSec/180), -40, 160)

	// Electrical. Battery rest voltage maps linearly from state of
	// charge; the alternator lifts it while the engine turns.
	if engineOff {
		s.Alternator = approach(s.Alternator, 0, dtSec/5)
	} else {
		s.Alternator = approach(s.Alternator, BaselineAlternator, dtSec/10)
	}
	load := 1.0
	if v.Status == StatusEnRoute || v.Status == StatusOnScene {
		load = 2.2 // siren, lights, onboard equipment
	}
	charging := s.Alternator > 13.0
	if charging {
		s.StateOfCharge = clamp(s.StateOfCharge+0.02*dtSec/60, 0, 100)
		s.BatteryCurrent = approach(s.BatteryCurrent, -2*load, dtSec/10)
	} else {
		s.StateOfCharge = clamp(s.StateOfCharge-0.15*load*dtSec/60, 0, 100)
		s.BatteryCurrent = approach(s.BatteryCurrent, -8*load, dtSec/10)
	}
	rest := RestVoltage(s.StateOfCharge)
	target := rest
	if charging {
		target = rest + 0.6
	}
	s.BatteryVoltage = clamp(approach(s.BatteryVoltage, target, dtSec/15), 0, 30)

	// Fuel burn grows with throttle and speed.
	if engineOff {
		s.FuelRate = approach(s.FuelRate, 0, dtSec/5)
	} else {
		s.FuelRate = approach(s.FuelRate, BaselineFuelRate+s.Throttle*0.22+v.SpeedKMH*0.09, dtSec/10)
	}
	s.FuelLiters = clamp(s.FuelLiters-s.FuelRate*dtSec/3600, 0, FuelTankLiters)
	s.FuelPercent = s.FuelLiters / FuelTankLiters * 100

	// Brakes heat under deceleration and cool toward ambient.
	brakeTarget := g.AmbientTemp + 5
	if braking {
		brakeTarget = g.AmbientTemp + 5 + v.SpeedKMH*0.9
	}
	s.BrakeTemps = approachWheels(s.BrakeTemps, brakeTarget, dtSec/30)
	wear := v.SpeedKMH * dtSec / 3600 * 0.0004 // mm per km-ish
	s.BrakePads = Wheels{
		FrontLeft:  math.Max(0, s.BrakePads.FrontLeft-wear*1.3),
		FrontRight: math.Max(0, s.BrakePads.FrontRight-wear*1.3),
		RearLeft:   math.Max(0, s.BrakePads.RearLeft-wear),
		RearRight:  math.Max(0, s.BrakePads.RearRight-wear),
	}

	// Tires warm with speed; pressure follows temperature slightly.
	tireTarget := g.AmbientTemp + 5 + v.SpeedKMH*0.3
	s.TireTemps = approachWheels(s.TireTemps, tireTarget, dtSec/60)
	s.TirePressure = Wheels{
		FrontLeft:  BaselineTirePSI + (s.TireTemps.FrontLeft-BaselineWheelTemp)*0.02,
		FrontRight: BaselineTirePSI + (s.TireTemps.FrontRight-BaselineWheelTemp)*0.02,
		RearLeft:   BaselineTirePSI + (s.TireTemps.RearLeft-BaselineWheelTemp)*0.02,
		RearRight:  BaselineTirePSI + (s.TireTemps.RearRight-BaselineWheelTemp)*0.02,
	}

	s.Vibration = Vibration{
		X: 0.01 + v.SpeedKMH/1000,
		Y: 0.01 + v.SpeedKMH/1000,
		Z: 1.0 + v.SpeedKMH/250,
	}

	s.CabinTemp = approach(s.CabinTemp, BaselineCabinTemp, dtSec/60)
	s.ExteriorTemp = approach(s.ExteriorTemp, g.AmbientTemp, dtSec/300)
	s.Humidity = clamp(s.Humidity+g.rng.NormFloat64()*0.05, 20, 95)

	v.Seq++
	return g.snapshot(v)
}

// snapshot renders the current integrated state as a published reading
// with per-metric gaussian noise applied on top.
func (g *Generator) snapshot(v *Vehicle) Snapshot {
	s := v.Sensors
	emergencyRun := v.Status == StatusEnRoute || v.Status == StatusOnScene
	return Snapshot{
		VehicleID:      v.Identity.VehicleID,
		FleetID:        v.Identity.FleetID,
		SequenceNumber: v.Seq,
		Status:         v.Status,
		Timestamp:      time.Now().UTC(),

		Location: v.Position,
		Heading:  v.Heading,
		SpeedKMH: g.noise(v.SpeedKMH, 0.02),

		EngineTempCelsius:       g.noiseClamped(s.EngineTemp, 0.02, -40, 150),
		EngineRPM:               math.Max(0, g.noise(s.EngineRPM, 0.06)),
		CoolantTempCelsius:      g.noiseClamped(s.CoolantTemp, 0.02, -40, 150),
		OilPressurePSI:          g.noiseClamped(s.OilPressure, 0.02, 0, 100),
		OilTempCelsius:          g.noiseClamped(s.OilTemp, 0.02, -40, 200),
		TransmissionTempCelsius: g.noiseClamped(s.TransmissionTemp, 0.02, -40, 160),
		ThrottlePercent:         g.noiseClamped(s.Throttle, 0.02, 0, 100),

		BatteryVoltage:       g.noiseClamped(s.BatteryVoltage, 0.02, 0, 30),
		BatteryCurrentAmps:   g.noise(s.BatteryCurrent, 0.15),
		AlternatorVoltage:    g.noiseClamped(s.Alternator, 0.02, 0, 30),
		StateOfChargePercent: g.noiseClamped(s.StateOfCharge, 0.02, 0, 100),
		BatteryHealthPercent: g.noiseClamped(s.BatteryHealth, 0.005, 0, 100),

		FuelLevelPercent:   g.noiseClamped(s.FuelPercent, 0.02, 0, 100),
		FuelLevelLiters:    math.Max(0, g.noise(s.FuelLiters, 0.02)),
		FuelConsumptionLPH: math.Max(0, g.noise(s.FuelRate, 0.10)),

		BrakePadMM:        g.noiseWheels(s.BrakePads, 0.02),
		BrakeTempCelsius:  g.noiseWheels(s.BrakeTemps, 0.02),
		BrakeFluidPercent: g.noiseClamped(s.BrakeFluid, 0.005, 0, 100),

		TirePressurePSI: g.noiseWheels(s.TirePressure, 0.02),
		TireTempCelsius: g.noiseWheels(s.TireTemps, 0.02),

		VibrationG: Vibration{
			X: g.noise(s.Vibration.X, 0.1),
			Y: g.noise(s.Vibration.Y, 0.1),
			Z: g.noise(s.Vibration.Z, 0.05),
		},
		OdometerKM: s.Odometer,

		CabinTempCelsius:    g.noise(s.CabinTemp, 0.02),
		ExteriorTempCelsius: g.noise(s.ExteriorTemp, 0.02),
		HumidityPercent:     g.noiseClamped(s.Humidity, 0.02, 0, 100),

		SirenActive:  emergencyRun,
		LightsActive: emergencyRun,
	}
}

// RestVoltage maps battery state of charge to open-circuit voltage.
func RestVoltage(soc float64) float64 {
	return 11.5 + soc/100*2.5
}

// noise returns value plus gaussian noise; level approximates two
// standard deviations as a fraction of the magnitude.
func (g *Generator) noise(value, level float64) float64 {
	if level == 0 {
		return value
	}
	std := math.Abs(value*level) / 2
	return value + g.rng.NormFloat64()*std
}

func (g *Generator) noiseClamped(value, level, lo, hi float64) float64 {
	return clamp(g.noise(value, level), lo, hi)
}

func (g *Generator) noiseWheels(w Wheels, level float64) Wheels {
	return Wheels{
		FrontLeft:  math.Max(0, g.noise(w.FrontLeft, level)),
		FrontRight: math.Max(0, g.noise(w.FrontRight, level)),
		RearLeft:   math.Max(0, g.noise(w.RearLeft, level)),
		RearRight:  math.Max(0, g.noise(w.RearRight, level)),
	}
}

func approach(cur, target, frac float64) float64 {
	if frac > 1 {
		frac = 1
	}
	return cur + (target-cur)*frac
}

func approachWheels(w Wheels, target, frac float64) Wheels {
	return Wheels{
		FrontLeft:  approach(w.FrontLeft, target, frac),
		FrontRight: approach(w.FrontRight, target, frac),
		RearLeft:   approach(w.RearLeft, target, frac),
		RearRight:  approach(w.RearRight, target, frac),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
