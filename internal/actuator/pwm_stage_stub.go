//go:build !linux

package actuator

import (
	"fmt"
	"time"
)

type PWMStage struct{}

func OpenPWMStage(chip, channel, freqHz int, supplyV float64) (*PWMStage, error) {
	return nil, fmt.Errorf("actuator: pwm unsupported on this platform")
}

func (s *PWMStage) Apply(uq float64, _ time.Duration) error {
	return fmt.Errorf("actuator: pwm unsupported")
}

func (s *PWMStage) Close() error { return nil }
