// Package angle holds the small numeric helpers shared by the attitude
// estimator and the motor controller.
package angle

import "math"

const (
	degPerRad = 180.0 / math.Pi
	radPerDeg = math.Pi / 180.0
)

func RadToDeg(r float64) float64 { return r * degPerRad }

func DegToRad(d float64) float64 { return d * radPerDeg }

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WrapRoll applies a single ±360° correction. Callers integrate at most a
// fraction of a turn per step, so one correction is enough to land in
// [-180,180].
func WrapRoll(deg float64) float64 {
	if deg > 180 {
		deg -= 360
	}
	if deg < -180 {
		deg += 360
	}
	return deg
}

// Wrap360 maps deg into [0,360).
func Wrap360(deg float64) float64 {
	if deg >= 360 {
		return math.Mod(deg, 360)
	}
	if deg < 0 {
		w := math.Mod(deg, 360) + 360
		// -1e-15 rounds to 360 after the shift.
		if w >= 360 {
			w -= 360
		}
		return w
	}
	return deg
}

// Wrap180 maps deg into (-180,180].
func Wrap180(deg float64) float64 {
	w := Wrap360(deg + 180)
	if w == 0 {
		return 180
	}
	return w - 180
}

// NormalizePi brings a radian difference into (-π,π]. The loops only run a
// couple of times for inputs within a few turns of zero.
func NormalizePi(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return r
	}
	for r > math.Pi {
		r -= 2 * math.Pi
	}
	for r <= -math.Pi {
		r += 2 * math.Pi
	}
	return r
}
