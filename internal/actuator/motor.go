package actuator

import (
	"fmt"
	"log"
	"math"
	"time"
)

const (
	velocityFilterTf = 10 * time.Millisecond
	angleFilterTf    = 5 * time.Millisecond
	outputRamp       = 1000 // V/s
)

// Motor runs the angle → velocity → voltage cascade on top of an encoder
// and an output stage. Loop must be called periodically from one
// goroutine; the setters are meant for the same goroutine.
type Motor struct {
	enc   Encoder
	stage Stage
	line  EnableLine

	tuning Tuning
	limits Limits

	anglePID *pidController
	velPID   *pidController
	angleLPF lowPass
	velLPF   lowPass

	enabled bool
	target  float64

	rawPrev   float64
	turns     int
	haveAngle bool
	prevShaft float64

	shaftAngle    float64
	shaftVelocity float64
	uq            float64

	lastErr error
}

func NewMotor(enc Encoder, stage Stage, line EnableLine, tuning Tuning, limits Limits) (*Motor, error) {
	if enc == nil {
		return nil, fmt.Errorf("actuator: encoder is nil")
	}
	if stage == nil {
		return nil, fmt.Errorf("actuator: stage is nil")
	}
	m := &Motor{
		enc:      enc,
		stage:    stage,
		line:     line,
		tuning:   tuning,
		limits:   limits,
		anglePID: newPID(tuning.AngleP, 0, 0, tuning.AngleLimit),
		velPID:   newPID(tuning.VelocityP, tuning.VelocityI, tuning.VelocityD, tuning.VelocityLimit),
		angleLPF: lowPass{tf: angleFilterTf},
		velLPF:   lowPass{tf: velocityFilterTf},
	}
	m.velPID.SetRamp(outputRamp)
	return m, nil
}

func (m *Motor) Enable() {
	m.enabled = true
	if m.line != nil {
		if err := m.line.Set(true); err != nil {
			m.lastErr = err
			log.Printf("actuator: enable line: %v", err)
		}
	}
}

func (m *Motor) Disable() {
	m.enabled = false
	m.uq = 0
	m.anglePID.Reset()
	m.velPID.Reset()
	if m.line != nil {
		if err := m.line.Set(false); err != nil {
			m.lastErr = err
			log.Printf("actuator: disable line: %v", err)
		}
	}
}

func (m *Motor) Enabled() bool { return m.enabled }

func (m *Motor) SetTargetAngle(rad float64) { m.target = rad }

func (m *Motor) TargetAngle() float64 { return m.target }

func (m *Motor) SetVoltageLimit(volts float64) {
	if volts < 0 {
		volts = 0
	}
	m.limits.VoltageLimit = volts
	m.tuning.VelocityLimit = volts
	m.velPID.SetLimit(volts)
}

func (m *Motor) VoltageLimit() float64 { return m.limits.VoltageLimit }

// RegulatorLimit is the velocity stage's output clamp.
func (m *Motor) RegulatorLimit() float64 { return m.velPID.limit }

func (m *Motor) ShaftAngle() float64 { return m.shaftAngle }

func (m *Motor) ShaftVelocity() float64 { return m.shaftVelocity }

func (m *Motor) OutputVoltage() float64 { return m.uq }

func (m *Motor) Tuning() Tuning { return m.tuning }

func (m *Motor) Limits() Limits { return m.limits }

func (m *Motor) LastError() error { return m.lastErr }

func (m *Motor) SetVelocityPID(p, i, d float64) {
	m.tuning.VelocityP, m.tuning.VelocityI, m.tuning.VelocityD = p, i, d
	m.velPID.SetGains(p, i, d)
}

func (m *Motor) SetAngleP(p float64) {
	m.tuning.AngleP = p
	m.anglePID.SetGains(p, 0, 0)
}

func (m *Motor) SetAngleLimit(limit float64) {
	m.tuning.AngleLimit = limit
	m.anglePID.SetLimit(limit)
}

func (m *Motor) SetVelocityLimit(limit float64) {
	m.tuning.VelocityLimit = limit
	m.velPID.SetLimit(limit)
}

func (m *Motor) SetVoltageAlign(volts float64) {
	m.limits.SensorAlignVoltage = volts
}

// Loop samples the encoder, runs the cascade when enabled and hands the
// resulting voltage to the stage.
func (m *Motor) Loop(dt time.Duration) error {
	if dt <= 0 {
		return nil
	}
	raw, err := m.enc.Angle()
	if err != nil {
		m.lastErr = err
		return fmt.Errorf("actuator: encoder: %w", err)
	}
	m.trackAngle(raw, dt)

	if m.enabled {
		velSet := m.anglePID.UpdateDuration(m.target-m.shaftAngle, dt)
		uq := m.velPID.UpdateDuration(velSet-m.shaftVelocity, dt)
		m.uq = clampSym(uq, m.limits.VoltageLimit)
	} else {
		m.uq = 0
	}

	if err := m.stage.Apply(m.uq, dt); err != nil {
		m.lastErr = err
		return fmt.Errorf("actuator: stage: %w", err)
	}
	m.lastErr = nil
	return nil
}

func (m *Motor) trackAngle(raw float64, dt time.Duration) {
	if !m.haveAngle {
		m.rawPrev = raw
		m.haveAngle = true
		m.shaftAngle = m.angleLPF.update(raw, dt)
		m.prevShaft = raw
		return
	}
	// A jump of more than 80% of a turn is the encoder wrapping.
	d := raw - m.rawPrev
	if math.Abs(d) > 0.8*2*math.Pi {
		if d > 0 {
			m.turns--
		} else {
			m.turns++
		}
	}
	m.rawPrev = raw
	full := float64(m.turns)*2*math.Pi + raw

	vel := (full - m.prevShaft) / dt.Seconds()
	m.prevShaft = full
	m.shaftVelocity = m.velLPF.update(vel, dt)
	m.shaftAngle = m.angleLPF.update(full, dt)
}

type lowPass struct {
	tf   time.Duration
	y    float64
	have bool
}

func (f *lowPass) update(x float64, dt time.Duration) float64 {
	if !f.have || dt > 300*time.Millisecond {
		f.y = x
		f.have = true
		return x
	}
	a := f.tf.Seconds() / (f.tf.Seconds() + dt.Seconds())
	f.y = a*f.y + (1-a)*x
	return f.y
}
