package motorctl

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"rcgimbal/internal/actuator"
	"rcgimbal/internal/sensors/as5600"
)

var openPlantFn = openPlant

type Config struct {
	Enable bool

	// Backend is "sim" (default) or "as5600".
	Backend string
	// UpdateInterval is the control tick period.
	UpdateInterval time.Duration

	Zone    ZoneParams
	Shaping ShapingConfig
	Tuning  actuator.Tuning
	Limits  actuator.Limits

	// EncoderBus is a periph bus name, e.g. "1" or "/dev/i2c-1".
	EncoderBus  string
	EncoderAddr uint16
	// EnableGPIO is the BCM pin gating the driver; 0 means none.
	EnableGPIO int

	// PWM drives the as5600 backend's bridge; without it the voltage is
	// only recorded.
	PWM PWMConfig
}

type PWMConfig struct {
	Enable bool
	// Chip is the pwmchip index; negative picks the first available.
	Chip        int
	Channel     int
	FrequencyHz int
	SupplyV     float64
}

type Snapshot struct {
	Available bool   `json:"available"`
	Backend   string `json:"backend"`

	Status
	Tuning actuator.Tuning `json:"tuning"`
	Limits actuator.Limits `json:"limits"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// plant is what a backend hands the service.
type plant struct {
	enc     actuator.Encoder
	stage   actuator.Stage
	line    actuator.EnableLine
	closers []io.Closer
}

type request struct {
	fn   func(*Controller, *actuator.Motor) error
	done chan error
}

type Service struct {
	cfg Config

	mu   sync.RWMutex
	snap Snapshot

	reqCh chan request

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(cfg Config) *Service {
	if cfg.Backend == "" {
		cfg.Backend = "sim"
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 2 * time.Millisecond
	}
	if cfg.Zone == (ZoneParams{}) {
		cfg.Zone = DefaultZoneParams()
	}
	if cfg.Shaping == (ShapingConfig{}) {
		cfg.Shaping = DefaultShapingConfig()
	}
	if cfg.Tuning == (actuator.Tuning{}) {
		cfg.Tuning = actuator.DefaultTuning()
	}
	if cfg.Limits == (actuator.Limits{}) {
		cfg.Limits = actuator.DefaultLimits()
	}
	if cfg.EncoderBus == "" {
		cfg.EncoderBus = "1"
	}
	if cfg.EncoderAddr == 0 {
		cfg.EncoderAddr = as5600.DefaultAddress
	}
	if cfg.PWM.FrequencyHz <= 0 {
		cfg.PWM.FrequencyHz = 20000
	}
	if cfg.PWM.SupplyV <= 0 {
		cfg.PWM.SupplyV = 12
	}
	s := &Service{
		cfg:    cfg,
		reqCh:  make(chan request),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.snap.Backend = cfg.Backend
	s.snap.Zone = cfg.Zone
	s.snap.Tuning = cfg.Tuning
	s.snap.Limits = cfg.Limits
	return s
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Wait blocks until the control loop has exited and released the hardware.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	<-s.doneCh
}

// Start opens the backend, boots into angle-control mode with a zero
// target and runs the control loop until ctx is done or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("motorctl: service is nil")
	}
	if !s.cfg.Enable {
		close(s.doneCh)
		return nil
	}

	p, err := openPlantFn(s.cfg)
	if err != nil {
		s.setErr(err.Error())
		close(s.doneCh)
		return err
	}
	motor, err := actuator.NewMotor(p.enc, p.stage, p.line, s.cfg.Tuning, s.cfg.Limits)
	if err != nil {
		p.close()
		s.setErr(err.Error())
		close(s.doneCh)
		return err
	}
	ctrl := NewController(motor, s.cfg.Zone, s.cfg.Shaping)
	ctrl.EnterAngleControlMode()
	ctrl.SetTargetAngle(0)

	s.setState(func(sn *Snapshot) { sn.Available = true })
	log.Printf("motorctl: %s backend ready (interval=%s span=%.1f transition=%.1f)",
		s.cfg.Backend, s.cfg.UpdateInterval, s.cfg.Zone.SpanZoneDeg, s.cfg.Zone.TransitionZoneDeg)

	go s.run(ctx, ctrl, motor, p)
	return nil
}

func (s *Service) run(ctx context.Context, ctrl *Controller, motor *actuator.Motor, p plant) {
	defer close(s.doneCh)
	defer func() {
		ctrl.Disable()
		p.close()
	}()

	t := time.NewTicker(s.cfg.UpdateInterval)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case req := <-s.reqCh:
			err := req.fn(ctrl, motor)
			s.publish(ctrl, motor, nil)
			req.done <- err
		case now := <-t.C:
			dt := now.Sub(last)
			last = now
			err := motor.Loop(dt)
			ctrl.Loop()
			s.publish(ctrl, motor, err)
		}
	}
}

func (s *Service) publish(ctrl *Controller, motor *actuator.Motor, loopErr error) {
	st := ctrl.Status()
	s.setState(func(sn *Snapshot) {
		sn.Status = st
		sn.Tuning = motor.Tuning()
		sn.Limits = motor.Limits()
		if loopErr != nil {
			sn.LastError = loopErr.Error()
		} else {
			sn.LastError = ""
		}
	})
}

func (s *Service) do(ctx context.Context, fn func(*Controller, *actuator.Motor) error) error {
	if s == nil {
		return fmt.Errorf("motorctl: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("motorctl: ctx is nil")
	}
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return fmt.Errorf("motorctl: service not running")
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return fmt.Errorf("motorctl: service stopped")
	}
}

func (s *Service) Enable(ctx context.Context) error {
	return s.do(ctx, func(c *Controller, _ *actuator.Motor) error {
		c.Enable()
		return nil
	})
}

func (s *Service) Disable(ctx context.Context) error {
	return s.do(ctx, func(c *Controller, _ *actuator.Motor) error {
		c.Disable()
		return nil
	})
}

func (s *Service) EnterAngleControl(ctx context.Context) error {
	return s.do(ctx, func(c *Controller, _ *actuator.Motor) error {
		c.EnterAngleControlMode()
		return nil
	})
}

func (s *Service) ExitAngleControl(ctx context.Context) error {
	return s.do(ctx, func(c *Controller, _ *actuator.Motor) error {
		c.ExitAngleControlMode()
		return nil
	})
}

// SetTargetAngle reports an error for targets outside [0, 360]; the
// controller keeps its previous target.
func (s *Service) SetTargetAngle(ctx context.Context, deg float64) error {
	return s.do(ctx, func(c *Controller, _ *actuator.Motor) error {
		if !c.SetTargetAngle(deg) {
			return fmt.Errorf("motorctl: target angle %v outside [0, 360]", deg)
		}
		return nil
	})
}

// Command applies one "set name=value" line.
func (s *Service) Command(ctx context.Context, line string) error {
	return s.do(ctx, func(c *Controller, _ *actuator.Motor) error {
		if err := c.ApplyCommand(line); err != nil {
			return err
		}
		log.Printf("motorctl: applied %q", line)
		return nil
	})
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (p plant) close() {
	if p.line != nil {
		_ = p.line.Close()
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i].Close()
	}
}

func openPlant(cfg Config) (plant, error) {
	var p plant
	switch cfg.Backend {
	case "sim":
		sim := actuator.NewSimPlant()
		p.enc, p.stage = sim, sim
	case "as5600":
		dev, closer, err := as5600.Open(cfg.EncoderBus, cfg.EncoderAddr)
		if err != nil {
			return plant{}, fmt.Errorf("motorctl: encoder: %w", err)
		}
		p.enc, p.stage = dev, &actuator.HoldStage{}
		p.closers = append(p.closers, closer)
		if cfg.PWM.Enable {
			pwm, err := actuator.OpenPWMStage(cfg.PWM.Chip, cfg.PWM.Channel, cfg.PWM.FrequencyHz, cfg.PWM.SupplyV)
			if err != nil {
				p.close()
				return plant{}, fmt.Errorf("motorctl: output stage: %w", err)
			}
			p.stage = pwm
			p.closers = append(p.closers, pwm)
		}
	default:
		return plant{}, fmt.Errorf("motorctl: unknown backend %q", cfg.Backend)
	}

	if cfg.EnableGPIO > 0 {
		line, err := actuator.OpenEnableLine(cfg.EnableGPIO)
		if err != nil {
			// The driver may be hard-wired on; keep going without the line.
			log.Printf("motorctl: enable gpio %d unavailable: %v", cfg.EnableGPIO, err)
		} else {
			p.line = line
		}
	}
	return p, nil
}
