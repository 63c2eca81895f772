package motorctl

import (
	"math"
	"testing"
)

func TestController_StartsIdle(t *testing.T) {
	act := &fakeActuator{}
	c := NewController(act, DefaultZoneParams(), DefaultShapingConfig())
	c.Loop()
	if c.Enabled() || c.AngleControlMode() {
		t.Fatalf("expected idle controller")
	}
	if len(act.targets) != 0 || len(act.limits) != 0 {
		t.Fatalf("targets=%v limits=%v want none", act.targets, act.limits)
	}
}

func TestController_EnableInIdleDoesNotShape(t *testing.T) {
	act := &fakeActuator{}
	c := NewController(act, DefaultZoneParams(), DefaultShapingConfig())
	c.Enable()
	c.Loop()
	if !act.enabled {
		t.Fatalf("actuator should be powered")
	}
	if c.AngleControlMode() {
		t.Fatalf("enable must not change mode")
	}
	if len(act.targets) != 0 || len(act.limits) != 0 {
		t.Fatalf("targets=%v limits=%v want none", act.targets, act.limits)
	}
}

func TestController_ModeTransitions(t *testing.T) {
	act := &fakeActuator{}
	c := NewController(act, DefaultZoneParams(), DefaultShapingConfig())

	c.EnterAngleControlMode()
	if !c.Enabled() || !c.AngleControlMode() || !act.enabled {
		t.Fatalf("enter: enabled=%v mode=%v act=%v", c.Enabled(), c.AngleControlMode(), act.enabled)
	}
	c.Loop()
	if len(act.targets) != 1 || len(act.limits) != 1 {
		t.Fatalf("targets=%v limits=%v want one each", act.targets, act.limits)
	}

	// Power off while in angle mode: mode flag stays, shaping stops.
	c.Disable()
	if !c.AngleControlMode() || act.enabled {
		t.Fatalf("disable: mode=%v act=%v", c.AngleControlMode(), act.enabled)
	}
	act.angle = math.Pi
	c.Loop()
	if len(act.targets) != 1 || len(act.limits) != 1 {
		t.Fatalf("disabled loop wrote: targets=%v limits=%v", act.targets, act.limits)
	}

	c.Enable()
	c.ExitAngleControlMode()
	if c.Enabled() || c.AngleControlMode() || act.enabled {
		t.Fatalf("exit: enabled=%v mode=%v act=%v", c.Enabled(), c.AngleControlMode(), act.enabled)
	}
	if act.disables != 2 {
		t.Fatalf("disables=%d want 2", act.disables)
	}
}

func TestController_SetTargetAngleRange(t *testing.T) {
	c := NewController(&fakeActuator{}, DefaultZoneParams(), DefaultShapingConfig())
	if !c.SetTargetAngle(90) {
		t.Fatalf("90 should be accepted")
	}
	for _, bad := range []float64{-0.001, 360.001, 720, math.NaN(), math.Inf(1)} {
		if c.SetTargetAngle(bad) {
			t.Fatalf("%v should be rejected", bad)
		}
		if got := c.TargetAngleDeg(); math.Abs(got-90) > 1e-9 {
			t.Fatalf("target=%v want 90 kept after %v", got, bad)
		}
	}
	for _, ok := range []float64{0, 360} {
		if !c.SetTargetAngle(ok) {
			t.Fatalf("%v should be accepted", ok)
		}
	}
}

func TestController_PushesTargetInRadians(t *testing.T) {
	act := &fakeActuator{}
	c := NewController(act, DefaultZoneParams(), DefaultShapingConfig())
	c.EnterAngleControlMode()
	c.SetTargetAngle(180)
	c.Loop()
	if len(act.targets) != 1 || math.Abs(act.targets[0]-math.Pi) > 1e-12 {
		t.Fatalf("targets=%v want [π]", act.targets)
	}
}

func TestController_EightyDegreeErrorWritesShapedLimit(t *testing.T) {
	act := &fakeActuator{}
	c := NewController(act, DefaultZoneParams(), DefaultShapingConfig())
	c.EnterAngleControlMode()
	c.SetTargetAngle(80)
	c.Loop()
	if len(act.limits) != 1 || math.Abs(act.limits[0]-1.5714) > 0.001 {
		t.Fatalf("limits=%v want [~1.571]", act.limits)
	}
	st := c.Status()
	if math.Abs(st.TrackingErrorDeg-80) > 1e-9 || st.VoltageLimit != act.limits[0] || st.VoltageWrites != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func TestController_HysteresisLimitsWrites(t *testing.T) {
	act := &fakeActuator{}
	c := NewController(act, DefaultZoneParams(), DefaultShapingConfig())
	c.EnterAngleControlMode()
	for i := 0; i < 100; i++ {
		c.Loop()
	}
	if len(act.limits) != 1 {
		t.Fatalf("limits=%v want one write for a steady error", act.limits)
	}
}

func TestController_ParameterSetters(t *testing.T) {
	c := NewController(&fakeActuator{}, DefaultZoneParams(), DefaultShapingConfig())
	if c.SetSpanZone(0) || c.SetSpanZone(-10) || c.SetTransitionZone(0) {
		t.Fatalf("non-positive zones should be rejected")
	}
	if c.SetVoltageInZone(-0.1) || c.SetVoltageOutZone(math.NaN()) {
		t.Fatalf("invalid voltages should be rejected")
	}
	if !c.SetSpanZone(120) || !c.SetTransitionZone(20) || !c.SetVoltageInZone(0) || !c.SetVoltageOutZone(4) || !c.SetCenterAngle(-15) {
		t.Fatalf("valid values should be accepted")
	}
	c.SetTransitionCurveRatio(0.95)
	z := c.Zone()
	want := ZoneParams{CenterAngleDeg: -15, SpanZoneDeg: 120, TransitionZoneDeg: 20, VoltageInZone: 0, VoltageOutZone: 4, TransitionCurveRatio: 0.9}
	if z != want {
		t.Fatalf("zone=%+v want %+v", z, want)
	}
}

func TestNewController_ClampsRatio(t *testing.T) {
	p := DefaultZoneParams()
	p.TransitionCurveRatio = 0
	c := NewController(&fakeActuator{}, p, DefaultShapingConfig())
	if got := c.Zone().TransitionCurveRatio; got != 0.1 {
		t.Fatalf("ratio=%v want 0.1", got)
	}
}
