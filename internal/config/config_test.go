package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_EmptyFileGetsDefaults(t *testing.T) {
	path := writeTempConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.AHRS.SampleInterval != 5*time.Millisecond || cfg.AHRS.YawWrap != "0_360" || cfg.AHRS.IMUAddr != 0x68 {
		t.Fatalf("ahrs=%+v", cfg.AHRS)
	}
	if cfg.Motor.Zone.SpanZoneDeg != 150 || cfg.Motor.Zone.VoltageOutZone != 3.0 || cfg.Motor.Shaping.HysteresisV != 0.005 {
		t.Fatalf("motor=%+v", cfg.Motor)
	}
	if cfg.Motor.Tuning.AngleP != 50 || cfg.Motor.Limits.VoltageLimit != 0.5 {
		t.Fatalf("tuning=%+v limits=%+v", cfg.Motor.Tuning, cfg.Motor.Limits)
	}
	if cfg.Web.Listen != ":8080" || cfg.Console.Baud != 115200 {
		t.Fatalf("web=%+v console=%+v", cfg.Web, cfg.Console)
	}
}

func TestLoad_PartialSectionKeepsOtherDefaults(t *testing.T) {
	path := writeTempConfig(t, `
ahrs:
  source: sim
  alignment_deg: 90
  yaw_wrap: "-180_180"
  sample_interval: 10ms
motor:
  zone:
    span_zone_deg: 120
    transition_curve_ratio: 0.95
  tuning:
    angle_p: 20
telemetry:
  enable: true
  topic_prefix: "gimbal/"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.AHRS.Source != "sim" || cfg.AHRS.AlignmentDeg != 90 || cfg.AHRS.YawWrap != "-180_180" || cfg.AHRS.SampleInterval != 10*time.Millisecond {
		t.Fatalf("ahrs=%+v", cfg.AHRS)
	}
	if cfg.AHRS.GyroSensitivity != 65.5 {
		t.Fatalf("gyro_sensitivity=%v want default", cfg.AHRS.GyroSensitivity)
	}
	z := cfg.Motor.Zone
	if z.SpanZoneDeg != 120 || z.TransitionZoneDeg != 10 || z.TransitionCurveRatio != 0.9 {
		t.Fatalf("zone=%+v", z)
	}
	if cfg.Motor.Tuning.AngleP != 20 || cfg.Motor.Tuning.VelocityP != 0.08 {
		t.Fatalf("tuning=%+v", cfg.Motor.Tuning)
	}
	if cfg.Telemetry.TopicPrefix != "gimbal" || cfg.Telemetry.Broker == "" {
		t.Fatalf("telemetry=%+v", cfg.Telemetry)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"BadSource", "ahrs:\n  source: bno085\n", "ahrs.source must be 'mpu6050' or 'sim'"},
		{"BadAlignment", "ahrs:\n  alignment_deg: 45\n", "ahrs.alignment_deg must be one of 0, 90, 180, 270"},
		{"BadYawWrap", "ahrs:\n  yaw_wrap: '0_180'\n", "ahrs.yaw_wrap must be '0_360' or '-180_180'"},
		{"BadAlpha", "ahrs:\n  complementary_alpha: 1.5\n", "ahrs.complementary_alpha must be in [0, 1]"},
		{"BadSensitivity", "ahrs:\n  gyro_sensitivity: -1\n", "ahrs.gyro_sensitivity must be > 0"},
		{"BadBackend", "motor:\n  backend: stepper\n", "motor.backend must be 'sim' or 'as5600'"},
		{"PWMOnSim", "motor:\n  pwm:\n    enable: true\n", "motor.pwm requires backend 'as5600'"},
		{"PWMZeroSupply", "motor:\n  backend: as5600\n  pwm:\n    enable: true\n    supply_v: 0\n", "motor.pwm.supply_v must be > 0"},
		{"ZeroSpan", "motor:\n  zone:\n    span_zone_deg: 0\n", "motor.zone.span_zone_deg must be > 0"},
		{"NegTransition", "motor:\n  zone:\n    transition_zone_deg: -5\n", "motor.zone.transition_zone_deg must be > 0"},
		{"NegVoltage", "motor:\n  zone:\n    voltage_in_zone: -0.1\n", "motor.zone voltages must be >= 0"},
		{"BadSmoothing", "motor:\n  shaping:\n    smoothing_alpha: 0\n", "motor.shaping.smoothing_alpha must be in (0, 1]"},
		{"NegHysteresis", "motor:\n  shaping:\n    hysteresis_v: -0.1\n", "motor.shaping.hysteresis_v must be >= 0"},
		{"TelemetryNoBroker", "telemetry:\n  enable: true\n  broker: ''\n", "telemetry.broker is required when telemetry.enable is true"},
		{"BadQoS", "telemetry:\n  qos: 3\n", "telemetry.qos must be 0, 1 or 2"},
		{"ConsoleNoPort", "console:\n  enable: true\n  port: ''\n", "console.port is required when console.enable is true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultAndValidate_FillsZeroDurations(t *testing.T) {
	cfg := Defaults()
	cfg.AHRS.SampleInterval = 0
	cfg.Motor.UpdateInterval = 0
	cfg.Telemetry.Interval = 0
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate: %v", err)
	}
	if cfg.AHRS.SampleInterval <= 0 || cfg.Motor.UpdateInterval <= 0 || cfg.Telemetry.Interval <= 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := DefaultAndValidate(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "rcgimbal.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Motor.Backend != "as5600" || !cfg.Motor.PWM.Enable || cfg.Motor.PWM.Chip != -1 {
		t.Fatalf("motor=%+v", cfg.Motor)
	}
	if cfg.AHRS.IMUAddr != 0x68 || cfg.AHRS.SampleInterval != 5*time.Millisecond {
		t.Fatalf("ahrs=%+v", cfg.AHRS)
	}
	if cfg.Motor.Zone.SpanZoneDeg != 150 || cfg.Motor.Zone.TransitionZoneDeg != 10 {
		t.Fatalf("zone=%+v", cfg.Motor.Zone)
	}
}
