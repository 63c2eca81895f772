// Package actuator is the angle-seeking BLDC abstraction the motor
// controller drives: power state, target angle, voltage ceiling and shaft
// telemetry. Phase commutation is not modelled; a Stage receives the
// scalar quadrature voltage.
package actuator

import "time"

// Actuator is what the zone controller needs from the motor.
type Actuator interface {
	Enable()
	Disable()
	// SetTargetAngle takes radians.
	SetTargetAngle(rad float64)
	// SetVoltageLimit moves the torque limit and the regulator output clamp
	// together.
	SetVoltageLimit(volts float64)
	ShaftAngle() float64
	ShaftVelocity() float64
	OutputVoltage() float64
}

// Encoder reports the mechanical shaft angle in radians. Single-turn
// encoders may wrap at 2π; Motor unwraps.
type Encoder interface {
	Angle() (float64, error)
}

// Stage applies the regulator's output voltage for the next dt.
type Stage interface {
	Apply(uq float64, dt time.Duration) error
}

// EnableLine gates the driver's power stage.
type EnableLine interface {
	Set(on bool) error
	Close() error
}

// Tuning holds the cascade regulator gains and clamps.
type Tuning struct {
	VelocityP     float64 `json:"velocity_p" yaml:"velocity_p"`
	VelocityI     float64 `json:"velocity_i" yaml:"velocity_i"`
	VelocityD     float64 `json:"velocity_d" yaml:"velocity_d"`
	AngleP        float64 `json:"angle_p" yaml:"angle_p"`
	VelocityLimit float64 `json:"velocity_limit" yaml:"velocity_limit"`
	AngleLimit    float64 `json:"angle_limit" yaml:"angle_limit"`
}

func DefaultTuning() Tuning {
	return Tuning{
		VelocityP:     0.08,
		VelocityI:     0.08,
		VelocityD:     0,
		AngleP:        50,
		VelocityLimit: 1.0,
		AngleLimit:    50,
	}
}

type Limits struct {
	VoltageLimit       float64 `json:"voltage_limit" yaml:"voltage_limit"`
	SensorAlignVoltage float64 `json:"sensor_align_voltage" yaml:"sensor_align_voltage"`
	CurrentLimit       float64 `json:"current_limit" yaml:"current_limit"`
}

func DefaultLimits() Limits {
	return Limits{
		VoltageLimit:       0.5,
		SensorAlignVoltage: 5.0,
		CurrentLimit:       1.0,
	}
}
