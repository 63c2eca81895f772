package actuator

import "time"

// pidController is the small PID used for both stages of the position
// cascade. Output is clamped symmetrically to ±limit and, when ramp > 0,
// slew-limited to ramp units per second.
//
// Not safe for concurrent use.
type pidController struct {
	kp, ki, kd float64
	limit      float64
	ramp       float64

	integral  float64
	prevError float64
	prevOut   float64
	havePrev  bool
}

func newPID(kp, ki, kd, limit float64) *pidController {
	return &pidController{kp: kp, ki: ki, kd: kd, limit: limit}
}

func (p *pidController) SetGains(kp, ki, kd float64) {
	p.kp, p.ki, p.kd = kp, ki, kd
}

func (p *pidController) SetLimit(limit float64) {
	if limit < 0 {
		limit = 0
	}
	p.limit = limit
}

func (p *pidController) SetRamp(perSecond float64) {
	p.ramp = perSecond
}

func (p *pidController) Reset() {
	p.integral = 0
	p.prevError = 0
	p.prevOut = 0
	p.havePrev = false
}

// UpdateDuration advances the controller by dt with the given error.
func (p *pidController) UpdateDuration(err float64, dt time.Duration) float64 {
	if dt <= 0 {
		// No time => no update.
		return p.prevOut
	}
	sec := dt.Seconds()

	// Trapezoidal integral, clamped so it cannot wind past the output limit.
	p.integral += p.ki * sec * 0.5 * (err + p.prevError)
	p.integral = clampSym(p.integral, p.limit)

	derivative := 0.0
	if p.havePrev {
		derivative = (err - p.prevError) / sec
	}

	out := p.kp*err + p.integral + p.kd*derivative
	out = clampSym(out, p.limit)

	if p.ramp > 0 && p.havePrev {
		maxStep := p.ramp * sec
		if out > p.prevOut+maxStep {
			out = p.prevOut + maxStep
		} else if out < p.prevOut-maxStep {
			out = p.prevOut - maxStep
		}
	}

	p.prevError = err
	p.prevOut = out
	p.havePrev = true
	return out
}

func clampSym(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
