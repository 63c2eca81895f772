package motorctl

import (
	"math"

	"rcgimbal/internal/actuator"
	"rcgimbal/internal/angle"
)

type Status struct {
	Enabled          bool    `json:"enabled"`
	AngleControlMode bool    `json:"angle_control_mode"`
	TargetAngleDeg   float64 `json:"target_angle_deg"`
	CurrentAngleDeg  float64 `json:"current_angle_deg"`
	TrackingErrorDeg float64 `json:"tracking_error_deg"`
	ShaftVelocity    float64 `json:"shaft_velocity_rad_s"`
	OutputVoltage    float64 `json:"output_voltage"`
	// VoltageLimit is the last ceiling written to the actuator; zero until
	// the first write.
	VoltageLimit         float64 `json:"voltage_limit"`
	SmoothedVoltageLimit float64 `json:"smoothed_voltage_limit"`
	VoltageWrites        uint64  `json:"voltage_writes"`

	Zone ZoneParams `json:"zone"`
}

// Controller tracks a target shaft angle and reshapes the actuator's
// voltage ceiling every tick while in angle-control mode. It is owned by a
// single goroutine.
type Controller struct {
	act    actuator.Actuator
	zone   ZoneParams
	shaper *Shaper

	enabled   bool
	angleMode bool
	targetRad float64

	writes uint64
}

func NewController(act actuator.Actuator, zone ZoneParams, shaping ShapingConfig) *Controller {
	zone.TransitionCurveRatio = ClampCurveRatio(zone.TransitionCurveRatio)
	return &Controller{
		act:    act,
		zone:   zone,
		shaper: NewShaper(shaping),
	}
}

// Enable powers the actuator without changing the mode.
func (c *Controller) Enable() {
	c.enabled = true
	c.act.Enable()
}

// Disable cuts actuator power without changing the mode.
func (c *Controller) Disable() {
	c.enabled = false
	c.act.Disable()
}

// EnterAngleControlMode also enables the actuator.
func (c *Controller) EnterAngleControlMode() {
	c.angleMode = true
	c.Enable()
}

// ExitAngleControlMode also disables the actuator.
func (c *Controller) ExitAngleControlMode() {
	c.angleMode = false
	c.Disable()
}

func (c *Controller) Enabled() bool { return c.enabled }

func (c *Controller) AngleControlMode() bool { return c.angleMode }

// SetTargetAngle accepts degrees in [0, 360]. Anything else leaves the
// previous target in place and returns false.
func (c *Controller) SetTargetAngle(deg float64) bool {
	if math.IsNaN(deg) || deg < 0 || deg > 360 {
		return false
	}
	c.targetRad = angle.DegToRad(deg)
	return true
}

func (c *Controller) TargetAngleDeg() float64 { return angle.RadToDeg(c.targetRad) }

func (c *Controller) Zone() ZoneParams { return c.zone }

func (c *Controller) SetCenterAngle(deg float64) bool {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return false
	}
	c.zone.CenterAngleDeg = deg
	return true
}

func (c *Controller) SetSpanZone(deg float64) bool {
	if !(deg > 0) || math.IsInf(deg, 0) {
		return false
	}
	c.zone.SpanZoneDeg = deg
	return true
}

func (c *Controller) SetTransitionZone(deg float64) bool {
	if !(deg > 0) || math.IsInf(deg, 0) {
		return false
	}
	c.zone.TransitionZoneDeg = deg
	return true
}

func (c *Controller) SetVoltageInZone(v float64) bool {
	if !(v >= 0) || math.IsInf(v, 0) {
		return false
	}
	c.zone.VoltageInZone = v
	return true
}

func (c *Controller) SetVoltageOutZone(v float64) bool {
	if !(v >= 0) || math.IsInf(v, 0) {
		return false
	}
	c.zone.VoltageOutZone = v
	return true
}

// SetTransitionCurveRatio clamps into [0.1, 0.9] rather than rejecting.
func (c *Controller) SetTransitionCurveRatio(r float64) bool {
	if math.IsNaN(r) {
		return false
	}
	c.zone.TransitionCurveRatio = ClampCurveRatio(r)
	return true
}

// Loop runs one control tick: push the target when active, then reshape
// the voltage ceiling.
func (c *Controller) Loop() {
	active := c.enabled && c.angleMode
	if active {
		c.act.SetTargetAngle(c.targetRad)
	}

	limit, apply := c.shaper.Tick(c.targetRad, c.act.ShaftAngle(), c.enabled, c.angleMode, c.zone)
	if apply {
		c.act.SetVoltageLimit(limit)
		c.writes++
	}
}

func (c *Controller) Status() Status {
	cur := c.act.ShaftAngle()
	applied, _ := c.shaper.Applied()
	smoothed, _ := c.shaper.Smoothed()
	return Status{
		Enabled:              c.enabled,
		AngleControlMode:     c.angleMode,
		TargetAngleDeg:       angle.RadToDeg(c.targetRad),
		CurrentAngleDeg:      angle.RadToDeg(cur),
		TrackingErrorDeg:     TrackingErrorDeg(c.targetRad, cur),
		ShaftVelocity:        c.act.ShaftVelocity(),
		OutputVoltage:        c.act.OutputVoltage(),
		VoltageLimit:         applied,
		SmoothedVoltageLimit: smoothed,
		VoltageWrites:        c.writes,
		Zone:                 c.zone,
	}
}
