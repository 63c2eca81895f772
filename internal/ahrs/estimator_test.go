package ahrs

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEstimator(cfg EstimatorConfig) (*Estimator, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	return newEstimatorWithClock(cfg, clk.Now), clk
}

func TestRead_AlignmentRotation(t *testing.T) {
	in := RawSample{Ax: 100, Ay: 200, Az: 300, Gx: 10, Gy: 20, Gz: -30}
	cases := []struct {
		align     Alignment
		wantAccel [3]int32
		wantGyro  [3]int32
	}{
		{Align0, [3]int32{100, 200, 300}, [3]int32{10, 20, 30}},
		{Align90, [3]int32{200, -100, 300}, [3]int32{20, -10, 30}},
		{Align180, [3]int32{-100, -200, 300}, [3]int32{-10, -20, 30}},
		{Align270, [3]int32{-200, 100, 300}, [3]int32{-20, 10, 30}},
	}
	for _, tc := range cases {
		cfg := DefaultEstimatorConfig()
		cfg.Alignment = tc.align
		e, _ := newTestEstimator(cfg)
		e.Read(in)
		accel, gyro, ok := e.Staged()
		if !ok {
			t.Fatalf("align=%d: expected staged sample", tc.align)
		}
		if accel != tc.wantAccel {
			t.Fatalf("align=%d: accel=%v want %v", tc.align, accel, tc.wantAccel)
		}
		if gyro != tc.wantGyro {
			t.Fatalf("align=%d: gyro=%v want %v", tc.align, gyro, tc.wantGyro)
		}
	}
}

func TestRead_YawBiasAndInversion(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.YawOffsetLSB = -23
	e, _ := newTestEstimator(cfg)
	for _, k := range []int32{0, 1, -1, 500, -4000} {
		e.Read(RawSample{Gz: int16(cfg.YawOffsetLSB + k)})
		_, gyro, _ := e.Staged()
		if gyro[2] != -k {
			t.Fatalf("k=%d: gz=%d want %d", k, gyro[2], -k)
		}
	}
}

func TestRead_YawInversionDoesNotOverflow(t *testing.T) {
	e, _ := newTestEstimator(DefaultEstimatorConfig())
	e.Read(RawSample{Gz: math.MinInt16})
	_, gyro, _ := e.Staged()
	if gyro[2] != 32768 {
		t.Fatalf("gz=%d want 32768", gyro[2])
	}
}

func TestFuse_NoSampleIsNoop(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	clk.Advance(time.Second)
	e.Fuse()
	if got := e.Angles(); got != (Angles{}) {
		t.Fatalf("angles=%+v want zero", got)
	}
}

func TestFuse_NonPositiveDTIsNoop(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	e.Read(RawSample{Az: 8192, Gx: 655})
	// Clock has not moved since construction.
	e.Fuse()
	if got := e.Angles(); got != (Angles{}) {
		t.Fatalf("angles=%+v want zero", got)
	}

	clk.Advance(-time.Second)
	e.Fuse()
	if got := e.Angles(); got != (Angles{}) {
		t.Fatalf("angles=%+v want zero after clock step back", got)
	}
}

func TestFuse_LevelAndStill(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	for i := 0; i < 50; i++ {
		e.Read(RawSample{Az: 8192})
		clk.Advance(10 * time.Millisecond)
		e.Fuse()
	}
	got := e.Angles()
	if math.Abs(got.RollDeg) > 1e-9 || math.Abs(got.PitchDeg) > 1e-9 || math.Abs(got.YawDeg) > 1e-9 {
		t.Fatalf("angles=%+v want zero", got)
	}
}

func TestFuse_ConvergesToAccelTilt(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	// 30 degrees of roll: ay = sin(30), az = cos(30).
	ay := int16(math.Round(8192 * 0.5))
	az := int16(math.Round(8192 * math.Sqrt(3) / 2))
	for i := 0; i < 1000; i++ {
		e.Read(RawSample{Ay: ay, Az: az})
		clk.Advance(10 * time.Millisecond)
		e.Fuse()
	}
	if got := e.Angles().RollDeg; math.Abs(got-30) > 0.05 {
		t.Fatalf("roll=%v want ~30", got)
	}
}

func TestFuse_PitchClamped(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	// Full-scale pitch rate for one second integrates ~500 deg.
	e.Read(RawSample{Az: 8192, Gy: math.MaxInt16})
	clk.Advance(time.Second)
	e.Fuse()
	if got := e.Angles().PitchDeg; got != 90 {
		t.Fatalf("pitch=%v want 90", got)
	}

	e.Read(RawSample{Az: 8192, Gy: math.MinInt16})
	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		e.Fuse()
	}
	if got := e.Angles().PitchDeg; got != -90 {
		t.Fatalf("pitch=%v want -90", got)
	}
}

func TestFuse_RollWrapsPast180(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	e.roll = 179
	// Accel roll ~179.94 deg (nearly inverted), gyro +2 deg/s for 1 s.
	e.Read(RawSample{Ay: 1, Az: -1000, Gx: 131})
	clk.Advance(time.Second)
	e.Fuse()

	got := e.Angles().RollDeg
	if got >= 0 || got < -180 {
		t.Fatalf("roll=%v want in [-180,0)", got)
	}
	if math.Abs(got-(-179.0211)) > 0.01 {
		t.Fatalf("roll=%v want ~-179.02", got)
	}
}

func TestFuse_YawDriftsWithoutAccelCorrection(t *testing.T) {
	cases := []struct {
		name string
		wrap YawWrap
	}{
		{"0_360", YawWrap360},
		{"-180_180", YawWrap180},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultEstimatorConfig()
			cfg.YawWrap = tc.wrap
			e, clk := newTestEstimator(cfg)

			// Raw -655 LSB becomes +10 deg/s after the sign flip.
			const n = 20
			dt := 100 * time.Millisecond
			prev := 0.0
			for i := 0; i < n; i++ {
				e.Read(RawSample{Az: 8192, Gz: -655})
				clk.Advance(dt)
				e.Fuse()
				y := e.Angles().YawDeg
				if y <= prev {
					t.Fatalf("tick %d: yaw=%v not increasing (prev %v)", i, y, prev)
				}
				prev = y
			}
			want := 10.0 * n * dt.Seconds()
			if math.Abs(prev-want) > 1e-6 {
				t.Fatalf("yaw=%v want %v", prev, want)
			}
		})
	}
}

func TestFuse_YawWrapConventions(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	e, clk := newTestEstimator(cfg)
	// Raw +655 LSB becomes -10 deg/s after the sign flip.
	e.Read(RawSample{Az: 8192, Gz: 655})
	clk.Advance(time.Second)
	e.Fuse()
	if got := e.Angles().YawDeg; math.Abs(got-350) > 1e-6 {
		t.Fatalf("yaw=%v want 350 in [0,360)", got)
	}

	cfg.YawWrap = YawWrap180
	e, clk = newTestEstimator(cfg)
	e.Read(RawSample{Az: 8192, Gz: 655})
	clk.Advance(time.Second)
	e.Fuse()
	if got := e.Angles().YawDeg; math.Abs(got-(-10)) > 1e-6 {
		t.Fatalf("yaw=%v want -10 in (-180,180]", got)
	}
}

func TestResetYaw(t *testing.T) {
	e, clk := newTestEstimator(DefaultEstimatorConfig())
	e.Read(RawSample{Az: 8192, Gz: -655})
	clk.Advance(time.Second)
	e.Fuse()
	if e.Angles().YawDeg == 0 {
		t.Fatalf("expected yaw to move")
	}
	e.ResetYaw()
	if got := e.Angles().YawDeg; got != 0 {
		t.Fatalf("yaw=%v want 0", got)
	}
}

func TestParseAlignment(t *testing.T) {
	for _, v := range []int{0, 90, 180, 270} {
		if _, err := ParseAlignment(v); err != nil {
			t.Fatalf("ParseAlignment(%d): %v", v, err)
		}
	}
	if _, err := ParseAlignment(45); err == nil {
		t.Fatalf("expected error for 45")
	}
}
