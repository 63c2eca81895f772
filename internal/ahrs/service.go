package ahrs

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"rcgimbal/internal/i2c"
	"rcgimbal/internal/sensors/mpu6050"
)

var openSourceFn = openSource

var zeroDriftWindow = 2 * time.Second

type Config struct {
	Enable bool
	// Source is "mpu6050" (default) or "sim".
	Source  string
	I2CBus  int
	IMUAddr uint16
	// SampleInterval is the read+fuse period.
	SampleInterval time.Duration
	// SimYawRateDegPerSec drives the "sim" source.
	SimYawRateDegPerSec float64

	Estimator EstimatorConfig
}

type Snapshot struct {
	Valid       bool `json:"valid"`
	IMUDetected bool `json:"imu_detected"`

	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`

	AlignmentDeg int    `json:"alignment_deg"`
	YawWrap      string `json:"yaw_wrap"`
	YawOffsetLSB int32  `json:"yaw_offset_lsb"`

	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_utc,omitempty"`
}

// Service runs the estimator on its own goroutine and publishes a copy of
// the angles after every fuse step, so readers never see a half-updated
// roll/pitch/yaw triple.
type Service struct {
	cfg Config

	mu   sync.RWMutex
	snap Snapshot

	src    SampleSource
	closer io.Closer

	zeroDriftCh chan chan error
	resetYawCh  chan chan error

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(cfg Config) *Service {
	if cfg.Source == "" {
		cfg.Source = "mpu6050"
	}
	if cfg.I2CBus == 0 {
		cfg.I2CBus = 1
	}
	if cfg.IMUAddr == 0 {
		cfg.IMUAddr = mpu6050.DefaultAddress()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Millisecond
	}
	if cfg.Estimator.GyroSensitivity == 0 && cfg.Estimator.ComplementaryAlpha == 0 {
		def := DefaultEstimatorConfig()
		def.Alignment = cfg.Estimator.Alignment
		def.YawWrap = cfg.Estimator.YawWrap
		def.YawOffsetLSB = cfg.Estimator.YawOffsetLSB
		cfg.Estimator = def
	}
	s := &Service{
		cfg:         cfg,
		zeroDriftCh: make(chan chan error, 1),
		resetYawCh:  make(chan chan error, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	s.snap.AlignmentDeg = int(cfg.Estimator.Alignment)
	s.snap.YawWrap = cfg.Estimator.YawWrap.String()
	s.snap.YawOffsetLSB = cfg.Estimator.YawOffsetLSB
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

// Start opens the sample source and launches the fuse loop. A failed
// sensor handshake is returned to the caller as a boot-time diagnostic;
// the estimator itself never retries.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	if !s.cfg.Enable {
		close(s.doneCh)
		return nil
	}

	src, closer, err := openSourceFn(s.cfg)
	if err != nil {
		s.setErr(err.Error())
		close(s.doneCh)
		return err
	}
	s.src = src
	s.closer = closer

	s.mu.Lock()
	s.snap.IMUDetected = true
	s.mu.Unlock()
	log.Printf("ahrs: %s source ready (align=%d yaw=%s interval=%s)",
		s.cfg.Source, s.cfg.Estimator.Alignment, s.cfg.Estimator.YawWrap, s.cfg.SampleInterval)

	go s.run(ctx)
	return nil
}

// Wait blocks until the fuse loop has exited.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	<-s.doneCh
}

// ZeroDrift averages the raw yaw rate over a short stationary window and
// installs it as the yaw offset.
func (s *Service) ZeroDrift(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ahrs: ctx is nil")
	}
	s.mu.RLock()
	detected := s.snap.IMUDetected
	s.mu.RUnlock()
	if !detected {
		return fmt.Errorf("ahrs: imu not detected")
	}
	return s.request(ctx, s.zeroDriftCh, "zero drift")
}

// ResetYaw zeroes the integrated yaw.
func (s *Service) ResetYaw(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ahrs: ctx is nil")
	}
	return s.request(ctx, s.resetYawCh, "reset yaw")
}

func (s *Service) request(ctx context.Context, ch chan chan error, what string) error {
	done := make(chan error, 1)
	select {
	case ch <- done:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("ahrs: %s already in progress", what)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return fmt.Errorf("ahrs: service stopped")
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		if s.closer != nil {
			_ = s.closer.Close()
		}
	}()

	est := NewEstimator(s.cfg.Estimator)

	t := time.NewTicker(s.cfg.SampleInterval)
	defer t.Stop()

	var calActive bool
	var calDone chan error
	var calStart time.Time
	var calSum float64
	var calN int

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case done := <-s.zeroDriftCh:
			if calActive {
				done <- fmt.Errorf("ahrs: zero drift already active")
				continue
			}
			calActive = true
			calDone = done
			calStart = time.Now()
			calSum, calN = 0, 0
		case done := <-s.resetYawCh:
			est.ResetYaw()
			s.publish(est)
			done <- nil
		case <-t.C:
			sample, err := s.src.ReadSample()
			if err != nil {
				s.setErr(err.Error())
				continue
			}
			est.Read(sample)
			est.Fuse()

			if calActive {
				calSum += float64(sample.Gz)
				calN++
				if time.Since(calStart) >= zeroDriftWindow {
					if calN == 0 {
						calDone <- fmt.Errorf("ahrs: zero drift failed (no samples)")
					} else {
						off := int32(math.Round(calSum / float64(calN)))
						est.SetYawOffsetLSB(off)
						log.Printf("ahrs: yaw offset set to %d LSB from %d samples", off, calN)
						calDone <- nil
					}
					calActive = false
					calDone = nil
				}
			}

			s.publish(est)
		}
	}
}

func (s *Service) publish(est *Estimator) {
	a := est.Angles()
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Valid = true
	s.snap.RollDeg = a.RollDeg
	s.snap.PitchDeg = a.PitchDeg
	s.snap.YawDeg = a.YawDeg
	s.snap.YawOffsetLSB = est.Config().YawOffsetLSB
	s.snap.LastError = ""
	s.snap.UpdatedAt = now
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.Valid = false
	s.snap.UpdatedAt = time.Now().UTC()
}

func openSource(cfg Config) (SampleSource, io.Closer, error) {
	switch cfg.Source {
	case "sim":
		return NewSimSource(cfg.SimYawRateDegPerSec, cfg.Estimator.GyroSensitivity), nil, nil
	case "mpu6050":
	default:
		return nil, nil, fmt.Errorf("ahrs: unknown source %q", cfg.Source)
	}

	bus, err := i2c.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, nil, fmt.Errorf("ahrs: %w", err)
	}
	dev, err := mpu6050.New(bus.Dev(cfg.IMUAddr))
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("ahrs: imu init: %w", err)
	}
	if !dev.TestConnection() {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("ahrs: mpu6050 connection test failed")
	}
	return mpuSource{dev: dev}, bus, nil
}

type mpuSource struct {
	dev *mpu6050.Device
}

func (m mpuSource) ReadSample() (RawSample, error) {
	ax, ay, az, gx, gy, gz, err := m.dev.ReadRaw()
	if err != nil {
		return RawSample{}, err
	}
	return RawSample{Ax: ax, Ay: ay, Az: az, Gx: gx, Gy: gy, Gz: gz}, nil
}

// SimSource reports a level, stationary sensor turning about Z at a fixed
// rate. Used when no IMU is wired.
type SimSource struct {
	gz int16
}

func NewSimSource(yawRateDegPerSec, sensitivity float64) *SimSource {
	if sensitivity <= 0 {
		sensitivity = DefaultGyroSensitivity
	}
	// Estimator negates Z, so a positive yaw rate is a negative raw reading.
	raw := math.Round(-yawRateDegPerSec * sensitivity)
	raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
	return &SimSource{gz: int16(raw)}
}

func (s *SimSource) ReadSample() (RawSample, error) {
	// 1g on Z at ±4g full scale.
	return RawSample{Az: 8192, Gz: s.gz}, nil
}
