package ahrs

import (
	"fmt"
	"math"
	"time"

	"rcgimbal/internal/angle"
)

const (
	// DefaultGyroSensitivity is LSB per deg/s at the ±500°/s full scale.
	DefaultGyroSensitivity = 65.5
	// DefaultComplementaryAlpha weights the gyro path of the roll/pitch blend.
	DefaultComplementaryAlpha = 0.98
)

// RawSample is one accel+gyro reading in sensor LSB units.
type RawSample struct {
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
}

// SampleSource delivers raw samples on demand.
type SampleSource interface {
	ReadSample() (RawSample, error)
}

// Alignment is the mounting rotation of the sensor about its Z axis.
type Alignment int

const (
	Align0   Alignment = 0
	Align90  Alignment = 90
	Align180 Alignment = 180
	Align270 Alignment = 270
)

func ParseAlignment(deg int) (Alignment, error) {
	switch deg {
	case 0, 90, 180, 270:
		return Alignment(deg), nil
	}
	return 0, fmt.Errorf("ahrs: invalid alignment %d (want 0, 90, 180 or 270)", deg)
}

// YawWrap selects the output range for yaw.
type YawWrap int

const (
	// YawWrap360 reports yaw in [0,360).
	YawWrap360 YawWrap = iota
	// YawWrap180 reports yaw in (-180,180].
	YawWrap180
)

func ParseYawWrap(s string) (YawWrap, error) {
	switch s {
	case "", "0_360":
		return YawWrap360, nil
	case "-180_180":
		return YawWrap180, nil
	}
	return 0, fmt.Errorf("ahrs: invalid yaw wrap %q (want 0_360 or -180_180)", s)
}

func (w YawWrap) String() string {
	if w == YawWrap180 {
		return "-180_180"
	}
	return "0_360"
}

type EstimatorConfig struct {
	Alignment Alignment
	YawWrap   YawWrap
	// YawOffsetLSB is the stationary gyro-Z reading removed before the sign flip.
	YawOffsetLSB       int32
	GyroSensitivity    float64
	ComplementaryAlpha float64
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Alignment:          Align0,
		YawWrap:            YawWrap360,
		GyroSensitivity:    DefaultGyroSensitivity,
		ComplementaryAlpha: DefaultComplementaryAlpha,
	}
}

type Angles struct {
	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`
}

// Estimator fuses gyro integration with accelerometer tilt.
//
// Read stages a sample, Fuse advances the angle state. Not safe for
// concurrent use; Service owns one and publishes snapshots.
type Estimator struct {
	cfg EstimatorConfig
	now func() time.Time

	accel [3]int32
	gyro  [3]int32

	hasSample bool
	prevAt    time.Time

	roll, pitch, yaw float64
}

func NewEstimator(cfg EstimatorConfig) *Estimator {
	return newEstimatorWithClock(cfg, time.Now)
}

func newEstimatorWithClock(cfg EstimatorConfig, now func() time.Time) *Estimator {
	if cfg.GyroSensitivity <= 0 {
		cfg.GyroSensitivity = DefaultGyroSensitivity
	}
	if cfg.ComplementaryAlpha <= 0 || cfg.ComplementaryAlpha > 1 {
		cfg.ComplementaryAlpha = DefaultComplementaryAlpha
	}
	if _, err := ParseAlignment(int(cfg.Alignment)); err != nil {
		cfg.Alignment = Align0
	}
	return &Estimator{cfg: cfg, now: now, prevAt: now()}
}

func (e *Estimator) Config() EstimatorConfig { return e.cfg }

func (e *Estimator) SetYawOffsetLSB(v int32) { e.cfg.YawOffsetLSB = v }

// Read stages one sample: yaw bias removal and sign flip first, then the
// mounting rotation. No fusion happens here.
func (e *Estimator) Read(s RawSample) {
	ax, ay, az := int32(s.Ax), int32(s.Ay), int32(s.Az)
	gx, gy, gz := int32(s.Gx), int32(s.Gy), int32(s.Gz)

	// Sensor Z is mounted inverted relative to the body frame.
	gz = -(gz - e.cfg.YawOffsetLSB)

	ax, ay = rotateZ(e.cfg.Alignment, ax, ay)
	gx, gy = rotateZ(e.cfg.Alignment, gx, gy)

	e.accel = [3]int32{ax, ay, az}
	e.gyro = [3]int32{gx, gy, gz}
	e.hasSample = true
}

func rotateZ(a Alignment, x, y int32) (int32, int32) {
	switch a {
	case Align90:
		return y, -x
	case Align180:
		return -x, -y
	case Align270:
		return -y, x
	}
	return x, y
}

// Staged returns the realigned triples from the last Read.
func (e *Estimator) Staged() (accel, gyro [3]int32, ok bool) {
	return e.accel, e.gyro, e.hasSample
}

// Fuse integrates the staged sample. It does nothing before the first
// Read or when the clock has not advanced.
func (e *Estimator) Fuse() {
	if !e.hasSample {
		return
	}
	now := e.now()
	dt := now.Sub(e.prevAt).Seconds()
	if dt <= 0 {
		return
	}
	e.prevAt = now
	e.fuseDT(dt)
}

func (e *Estimator) fuseDT(dt float64) {
	sens := e.cfg.GyroSensitivity
	e.roll += float64(e.gyro[0]) / sens * dt
	e.pitch += float64(e.gyro[1]) / sens * dt
	e.yaw += float64(e.gyro[2]) / sens * dt

	ax, ay, az := float64(e.accel[0]), float64(e.accel[1]), float64(e.accel[2])
	accRoll := angle.RadToDeg(math.Atan2(ay, az))
	accPitch := angle.RadToDeg(math.Atan2(-ax, math.Sqrt(ay*ay+az*az)))

	a := e.cfg.ComplementaryAlpha
	e.roll = a*e.roll + (1-a)*accRoll
	e.pitch = a*e.pitch + (1-a)*accPitch

	e.pitch = angle.Clamp(e.pitch, -90, 90)
	e.roll = angle.WrapRoll(e.roll)
	e.yaw = e.wrapYaw(e.yaw)
}

func (e *Estimator) wrapYaw(deg float64) float64 {
	if e.cfg.YawWrap == YawWrap180 {
		return angle.Wrap180(deg)
	}
	return angle.Wrap360(deg)
}

func (e *Estimator) Angles() Angles {
	return Angles{RollDeg: e.roll, PitchDeg: e.pitch, YawDeg: e.yaw}
}

// ResetYaw zeroes the gyro-only yaw, which otherwise drifts without bound.
func (e *Estimator) ResetYaw() { e.yaw = 0 }

// Reset clears all angles and the staged sample and restarts the dt clock.
func (e *Estimator) Reset() {
	e.roll, e.pitch, e.yaw = 0, 0, 0
	e.accel, e.gyro = [3]int32{}, [3]int32{}
	e.hasSample = false
	e.prevAt = e.now()
}
