package motorctl

import "rcgimbal/internal/actuator"

type fakeActuator struct {
	enabled  bool
	enables  int
	disables int

	targets []float64
	limits  []float64

	angle    float64
	velocity float64
	voltage  float64
}

func (f *fakeActuator) Enable() { f.enabled = true; f.enables++ }
func (f *fakeActuator) Disable() { f.enabled = false; f.disables++ }
func (f *fakeActuator) SetTargetAngle(rad float64) { f.targets = append(f.targets, rad) }
func (f *fakeActuator) SetVoltageLimit(v float64) { f.limits = append(f.limits, v) }
func (f *fakeActuator) ShaftAngle() float64 { return f.angle }
func (f *fakeActuator) ShaftVelocity() float64 { return f.velocity }
func (f *fakeActuator) OutputVoltage() float64 { return f.voltage }

type tunableActuator struct {
	*fakeActuator
	tuning actuator.Tuning
	align  float64
}

func newTunable() *tunableActuator {
	return &tunableActuator{fakeActuator: &fakeActuator{}, tuning: actuator.DefaultTuning()}
}

func (t *tunableActuator) Tuning() actuator.Tuning { return t.tuning }

func (t *tunableActuator) SetVelocityPID(p, i, d float64) {
	t.tuning.VelocityP, t.tuning.VelocityI, t.tuning.VelocityD = p, i, d
}

func (t *tunableActuator) SetAngleP(p float64) { t.tuning.AngleP = p }
func (t *tunableActuator) SetAngleLimit(limit float64) { t.tuning.AngleLimit = limit }
func (t *tunableActuator) SetVelocityLimit(limit float64) { t.tuning.VelocityLimit = limit }
func (t *tunableActuator) SetVoltageAlign(volts float64) { t.align = volts }
