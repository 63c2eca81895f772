// Package motorctl regulates the actuator's voltage ceiling from the
// angular tracking error: full authority far from the target, a low
// holding voltage near it, and a shaped transition band in between.
package motorctl

import (
	"math"

	"rcgimbal/internal/angle"
)

const (
	minCurveRatio = 0.1
	maxCurveRatio = 0.9

	// Share of the voltage range covered by the shallow segment of the
	// transition curve.
	shallowShare = 0.2
)

type ZoneParams struct {
	// CenterAngleDeg is stored and reported but does not enter the zone math.
	CenterAngleDeg       float64 `json:"center_angle_deg" yaml:"center_angle_deg"`
	SpanZoneDeg          float64 `json:"span_zone_deg" yaml:"span_zone_deg"`
	TransitionZoneDeg    float64 `json:"transition_zone_deg" yaml:"transition_zone_deg"`
	VoltageInZone        float64 `json:"voltage_in_zone" yaml:"voltage_in_zone"`
	VoltageOutZone       float64 `json:"voltage_out_zone" yaml:"voltage_out_zone"`
	TransitionCurveRatio float64 `json:"transition_curve_ratio" yaml:"transition_curve_ratio"`
}

func DefaultZoneParams() ZoneParams {
	return ZoneParams{
		CenterAngleDeg:       0,
		SpanZoneDeg:          150,
		TransitionZoneDeg:    10,
		VoltageInZone:        0.5,
		VoltageOutZone:       3.0,
		TransitionCurveRatio: 0.3,
	}
}

type ShapingConfig struct {
	// SmoothingAlpha weights the new target in the voltage low-pass.
	SmoothingAlpha float64 `json:"smoothing_alpha" yaml:"smoothing_alpha"`
	// HysteresisV is the change a smoothed value must exceed before it is
	// written to the actuator.
	HysteresisV float64 `json:"hysteresis_v" yaml:"hysteresis_v"`
}

func DefaultShapingConfig() ShapingConfig {
	return ShapingConfig{SmoothingAlpha: 0.05, HysteresisV: 0.005}
}

// ClampCurveRatio limits the transition curve ratio to [0.1, 0.9].
func ClampCurveRatio(r float64) float64 {
	return angle.Clamp(r, minCurveRatio, maxCurveRatio)
}

// TrackingErrorDeg is |target-current| after folding the difference into
// (-π, π], in degrees.
func TrackingErrorDeg(targetRad, currentRad float64) float64 {
	return angle.RadToDeg(math.Abs(angle.NormalizePi(targetRad - currentRad)))
}

// TargetVoltage maps an absolute tracking error in degrees to the raw
// voltage ceiling for the zone it falls in.
func TargetVoltage(errDeg float64, p ZoneParams) float64 {
	b1 := p.SpanZoneDeg / 2
	b2 := b1 + p.TransitionZoneDeg

	switch {
	case errDeg <= b1:
		return p.VoltageInZone
	case errDeg <= b2:
		progress := (errDeg - b1) / p.TransitionZoneDeg
		ratio := ClampCurveRatio(p.TransitionCurveRatio)
		var adjusted float64
		if progress <= ratio {
			adjusted = (progress / ratio) * shallowShare
		} else {
			adjusted = shallowShare + ((progress-ratio)/(1-ratio))*(1-shallowShare)
		}
		return p.VoltageInZone + (p.VoltageOutZone-p.VoltageInZone)*adjusted
	default:
		return p.VoltageOutZone
	}
}

// Shaper holds the smoothing and hysteresis state between control ticks.
// Neither value is reset once set.
type Shaper struct {
	cfg ShapingConfig

	smoothed     float64
	haveSmoothed bool
	applied      float64
	haveApplied  bool
}

func NewShaper(cfg ShapingConfig) *Shaper {
	return &Shaper{cfg: cfg}
}

// Tick computes the next voltage ceiling. apply reports whether it moved far
// enough from the last applied value to be written; when enabled or active
// is false nothing is computed and apply is false.
func (s *Shaper) Tick(targetRad, currentRad float64, enabled, active bool, p ZoneParams) (limit float64, apply bool) {
	if !enabled || !active {
		return s.applied, false
	}

	target := TargetVoltage(TrackingErrorDeg(targetRad, currentRad), p)

	if !s.haveSmoothed {
		s.smoothed = target
		s.haveSmoothed = true
	} else {
		a := s.cfg.SmoothingAlpha
		s.smoothed = a*target + (1-a)*s.smoothed
	}

	if s.haveApplied && math.Abs(s.smoothed-s.applied) <= s.cfg.HysteresisV {
		return s.applied, false
	}
	s.applied = s.smoothed
	s.haveApplied = true
	return s.applied, true
}

// Smoothed returns the filtered ceiling and whether it has been set.
func (s *Shaper) Smoothed() (float64, bool) { return s.smoothed, s.haveSmoothed }

// Applied returns the last ceiling written and whether one has been.
func (s *Shaper) Applied() (float64, bool) { return s.applied, s.haveApplied }
