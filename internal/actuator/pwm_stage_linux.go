//go:build linux

package actuator

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	pwmSysfsBase = "/sys/class/pwm"
	pwmWrite     = writeSysfs
)

// PWMStage drives a locked anti-phase bridge from one /sys/class/pwm
// channel: 50% duty is zero volts, 0% and 100% are full negative and
// positive supply.
type PWMStage struct {
	pwmPath  string
	supplyV  float64
	periodNS uint64
	duty     uint64
	enabled  bool
}

// OpenPWMStage exports channel on pwmchip<chip> (chip < 0 picks the first
// chip with channels) and parks it at zero output.
func OpenPWMStage(chip, channel, freqHz int, supplyV float64) (*PWMStage, error) {
	if freqHz <= 0 {
		return nil, fmt.Errorf("actuator: invalid pwm frequency %d", freqHz)
	}
	if supplyV <= 0 {
		return nil, fmt.Errorf("actuator: supply voltage must be > 0")
	}
	chipPath, err := findPWMChip(chip)
	if err != nil {
		return nil, err
	}
	pwmPath := filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel))
	if err := ensureExported(chipPath, pwmPath, channel); err != nil {
		return nil, err
	}

	s := &PWMStage{
		pwmPath:  pwmPath,
		supplyV:  supplyV,
		periodNS: uint64(1_000_000_000 / freqHz),
	}
	if s.periodNS == 0 {
		s.periodNS = 1
	}
	// Period can only change while disabled.
	_ = s.write("enable", 0)
	if err := s.write("period", s.periodNS); err != nil {
		return nil, err
	}
	if err := s.setDuty(s.periodNS / 2); err != nil {
		return nil, err
	}
	if err := s.write("enable", 1); err != nil {
		return nil, err
	}
	s.enabled = true
	return s, nil
}

// DutyFor maps a signed voltage onto the channel's period.
func (s *PWMStage) DutyFor(uq float64) uint64 {
	r := uq / s.supplyV
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return uint64(math.Round(float64(s.periodNS) * (0.5 + 0.5*r)))
}

func (s *PWMStage) Apply(uq float64, _ time.Duration) error {
	return s.setDuty(s.DutyFor(uq))
}

// Duty is the last duty cycle written, in nanoseconds.
func (s *PWMStage) Duty() uint64 { return s.duty }

func (s *PWMStage) Close() error {
	if s == nil || !s.enabled {
		return nil
	}
	_ = s.setDuty(s.periodNS / 2)
	err := s.write("enable", 0)
	s.enabled = false
	return err
}

func (s *PWMStage) setDuty(ns uint64) error {
	if ns == s.duty && s.enabled {
		return nil
	}
	if err := s.write("duty_cycle", ns); err != nil {
		return fmt.Errorf("actuator: pwm duty: %w", err)
	}
	s.duty = ns
	return nil
}

func (s *PWMStage) write(name string, v uint64) error {
	return pwmWrite(filepath.Join(s.pwmPath, name), strconv.FormatUint(v, 10))
}

func findPWMChip(chip int) (string, error) {
	if chip >= 0 {
		p := filepath.Join(pwmSysfsBase, fmt.Sprintf("pwmchip%d", chip))
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("actuator: %s: %w", p, err)
		}
		return p, nil
	}
	entries, err := os.ReadDir(pwmSysfsBase)
	if err != nil {
		return "", fmt.Errorf("actuator: read %s: %w", pwmSysfsBase, err)
	}
	// pwmchipN entries are usually symlinks, so filter by name only.
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "pwmchip") {
			continue
		}
		p := filepath.Join(pwmSysfsBase, e.Name())
		if n, err := readInt(filepath.Join(p, "npwm")); err == nil && n > 0 {
			return p, nil
		}
	}
	return "", fmt.Errorf("actuator: no sysfs pwmchip found (is the pwm overlay enabled?)")
}

func ensureExported(chipPath, pwmPath string, channel int) error {
	if _, err := os.Stat(pwmPath); err == nil {
		return nil
	}
	if err := pwmWrite(filepath.Join(chipPath, "export"), strconv.Itoa(channel)); err != nil {
		// Someone else may have exported it meanwhile.
		if _, statErr := os.Stat(pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("actuator: export pwm: %w", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("actuator: %s not created after export", pwmPath)
}

// writeSysfs opens without O_TRUNC; some attributes reject it. Freshly
// exported nodes can briefly fail with EACCES or ENOENT while udev fixes
// permissions, so those errors are retried for a short while.
func writeSysfs(path, value string) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func writeOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	return errors.Join(werr, f.Close())
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}
