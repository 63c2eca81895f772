package motorctl

import (
	"fmt"
	"strconv"
	"strings"

	"rcgimbal/internal/actuator"
)

// Tuner is the part of the motor that regulator parameter commands reach.
// *actuator.Motor implements it.
type Tuner interface {
	Tuning() actuator.Tuning
	SetVelocityPID(p, i, d float64)
	SetAngleP(p float64)
	SetAngleLimit(limit float64)
	SetVelocityLimit(limit float64)
	SetVoltageAlign(volts float64)
}

// ApplyCommand handles one "set <name>=<value>" line. Names are matched
// case-insensitively; each has a long form and a short alias.
func (c *Controller) ApplyCommand(line string) error {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "set ")
	if !ok {
		return fmt.Errorf("motorctl: command must start with \"set \": %q", line)
	}
	name, raw, ok := strings.Cut(rest, "=")
	if !ok {
		return fmt.Errorf("motorctl: missing '=' in %q", line)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("motorctl: %s: invalid value %q", name, strings.TrimSpace(raw))
	}

	switch name {
	case "c", "center":
		return rejectIf(!c.SetCenterAngle(v), name, v)
	case "sz", "span_zone":
		return rejectIf(!c.SetSpanZone(v), name, v)
	case "tz", "transition_zone":
		return rejectIf(!c.SetTransitionZone(v), name, v)
	case "iv", "voltage_inzone":
		return rejectIf(!c.SetVoltageInZone(v), name, v)
	case "ov", "voltage_outzone":
		return rejectIf(!c.SetVoltageOutZone(v), name, v)
	case "tcr", "transition_curve_ratio":
		return rejectIf(!c.SetTransitionCurveRatio(v), name, v)
	case "voltage_limit", "vlim":
		if v < 0 {
			return rejectIf(true, name, v)
		}
		c.act.SetVoltageLimit(v)
		return nil
	}

	t, ok := c.act.(Tuner)
	if !ok {
		if isTunerParam(name) {
			return fmt.Errorf("motorctl: %s: actuator has no tunable regulator", name)
		}
		return fmt.Errorf("motorctl: unknown parameter %q", name)
	}
	cur := t.Tuning()
	switch name {
	case "p":
		t.SetVelocityPID(v, cur.VelocityI, cur.VelocityD)
	case "i":
		t.SetVelocityPID(cur.VelocityP, v, cur.VelocityD)
	case "d":
		t.SetVelocityPID(cur.VelocityP, cur.VelocityI, v)
	case "angle_p":
		t.SetAngleP(v)
	case "voltage_align", "valign":
		t.SetVoltageAlign(v)
	case "angle_limit", "alim":
		t.SetAngleLimit(v)
	case "velocity_limit", "vlim_pid":
		t.SetVelocityLimit(v)
	default:
		return fmt.Errorf("motorctl: unknown parameter %q", name)
	}
	return nil
}

func isTunerParam(name string) bool {
	switch name {
	case "p", "i", "d", "angle_p", "voltage_align", "valign", "angle_limit", "alim", "velocity_limit", "vlim_pid":
		return true
	}
	return false
}

func rejectIf(bad bool, name string, v float64) error {
	if bad {
		return fmt.Errorf("motorctl: %s: value %v out of range", name, v)
	}
	return nil
}
