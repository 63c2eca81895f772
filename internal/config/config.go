package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rcgimbal/internal/actuator"
	"rcgimbal/internal/motorctl"
)

type Config struct {
	AHRS      AHRSConfig      `yaml:"ahrs"`
	Motor     MotorConfig     `yaml:"motor"`
	Web       WebConfig       `yaml:"web"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Console   ConsoleConfig   `yaml:"console"`
}

type AHRSConfig struct {
	Enable bool `yaml:"enable"`
	// Source is "mpu6050" or "sim".
	Source         string        `yaml:"source"`
	I2CBus         int           `yaml:"i2c_bus"`
	IMUAddr        uint16        `yaml:"imu_addr"`
	SampleInterval time.Duration `yaml:"sample_interval"`

	AlignmentDeg       int     `yaml:"alignment_deg"`
	YawWrap            string  `yaml:"yaw_wrap"`
	YawOffsetLSB       int32   `yaml:"yaw_offset_lsb"`
	GyroSensitivity    float64 `yaml:"gyro_sensitivity"`
	ComplementaryAlpha float64 `yaml:"complementary_alpha"`

	SimYawRateDegPerSec float64 `yaml:"sim_yaw_rate_dps"`
}

type MotorConfig struct {
	Enable bool `yaml:"enable"`
	// Backend is "sim" or "as5600".
	Backend        string        `yaml:"backend"`
	UpdateInterval time.Duration `yaml:"update_interval"`

	EncoderBus  string `yaml:"encoder_bus"`
	EncoderAddr uint16 `yaml:"encoder_addr"`
	EnableGPIO  int    `yaml:"enable_gpio"`

	PWM PWMConfig `yaml:"pwm"`

	Zone    motorctl.ZoneParams    `yaml:"zone"`
	Shaping motorctl.ShapingConfig `yaml:"shaping"`
	Tuning  actuator.Tuning        `yaml:"tuning"`
	Limits  actuator.Limits        `yaml:"limits"`
}

// PWMConfig selects the sysfs PWM channel driving the bridge on real
// hardware.
type PWMConfig struct {
	Enable      bool    `yaml:"enable"`
	Chip        int     `yaml:"chip"`
	Channel     int     `yaml:"channel"`
	FrequencyHz int     `yaml:"frequency_hz"`
	SupplyV     float64 `yaml:"supply_v"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
	// AttitudeInterval is the websocket push period.
	AttitudeInterval time.Duration `yaml:"attitude_interval"`
}

type TelemetryConfig struct {
	Enable      bool          `yaml:"enable"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Interval    time.Duration `yaml:"interval"`
	QoS         int           `yaml:"qos"`
}

type ConsoleConfig struct {
	Enable bool   `yaml:"enable"`
	Port   string `yaml:"port"`
	Baud   uint   `yaml:"baud"`
}

// Defaults returns the configuration used for any field the file leaves out.
func Defaults() Config {
	return Config{
		AHRS: AHRSConfig{
			Enable:             true,
			Source:             "mpu6050",
			I2CBus:             1,
			IMUAddr:            0x68,
			SampleInterval:     5 * time.Millisecond,
			YawWrap:            "0_360",
			GyroSensitivity:    65.5,
			ComplementaryAlpha: 0.98,
		},
		Motor: MotorConfig{
			Enable:         true,
			Backend:        "sim",
			UpdateInterval: 2 * time.Millisecond,
			EncoderBus:     "1",
			EncoderAddr:    0x36,
			PWM: PWMConfig{
				Chip:        -1,
				FrequencyHz: 20000,
				SupplyV:     12,
			},
			Zone:           motorctl.DefaultZoneParams(),
			Shaping:        motorctl.DefaultShapingConfig(),
			Tuning:         actuator.DefaultTuning(),
			Limits:         actuator.DefaultLimits(),
		},
		Web: WebConfig{
			Enable:           true,
			Listen:           ":8080",
			AttitudeInterval: 100 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "rcgimbal",
			TopicPrefix: "rcgimbal",
			Interval:    200 * time.Millisecond,
		},
		Console: ConsoleConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
	}
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills zero durations and names, clamps the transition
// curve ratio and rejects values the services cannot run with.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	def := Defaults()

	a := &cfg.AHRS
	a.Source = strings.ToLower(strings.TrimSpace(a.Source))
	if a.Source == "" {
		a.Source = def.AHRS.Source
	}
	if a.Source != "mpu6050" && a.Source != "sim" {
		return fmt.Errorf("ahrs.source must be 'mpu6050' or 'sim'")
	}
	if a.I2CBus < 0 {
		return fmt.Errorf("ahrs.i2c_bus must be >= 0")
	}
	if a.IMUAddr == 0 {
		a.IMUAddr = def.AHRS.IMUAddr
	}
	if a.SampleInterval <= 0 {
		a.SampleInterval = def.AHRS.SampleInterval
	}
	switch a.AlignmentDeg {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("ahrs.alignment_deg must be one of 0, 90, 180, 270")
	}
	if a.YawWrap == "" {
		a.YawWrap = def.AHRS.YawWrap
	}
	if a.YawWrap != "0_360" && a.YawWrap != "-180_180" {
		return fmt.Errorf("ahrs.yaw_wrap must be '0_360' or '-180_180'")
	}
	if a.GyroSensitivity <= 0 {
		return fmt.Errorf("ahrs.gyro_sensitivity must be > 0")
	}
	if a.ComplementaryAlpha < 0 || a.ComplementaryAlpha > 1 {
		return fmt.Errorf("ahrs.complementary_alpha must be in [0, 1]")
	}

	m := &cfg.Motor
	m.Backend = strings.ToLower(strings.TrimSpace(m.Backend))
	if m.Backend == "" {
		m.Backend = def.Motor.Backend
	}
	if m.Backend != "sim" && m.Backend != "as5600" {
		return fmt.Errorf("motor.backend must be 'sim' or 'as5600'")
	}
	if m.UpdateInterval <= 0 {
		m.UpdateInterval = def.Motor.UpdateInterval
	}
	if m.EncoderBus == "" {
		m.EncoderBus = def.Motor.EncoderBus
	}
	if m.EncoderAddr == 0 {
		m.EncoderAddr = def.Motor.EncoderAddr
	}
	if m.EnableGPIO < 0 {
		return fmt.Errorf("motor.enable_gpio must be >= 0")
	}
	if m.PWM.Enable {
		if m.Backend != "as5600" {
			return fmt.Errorf("motor.pwm requires backend 'as5600'")
		}
		if m.PWM.Channel < 0 {
			return fmt.Errorf("motor.pwm.channel must be >= 0")
		}
		if m.PWM.FrequencyHz <= 0 {
			return fmt.Errorf("motor.pwm.frequency_hz must be > 0")
		}
		if m.PWM.SupplyV <= 0 {
			return fmt.Errorf("motor.pwm.supply_v must be > 0")
		}
	}
	if m.Zone.SpanZoneDeg <= 0 {
		return fmt.Errorf("motor.zone.span_zone_deg must be > 0")
	}
	if m.Zone.TransitionZoneDeg <= 0 {
		return fmt.Errorf("motor.zone.transition_zone_deg must be > 0")
	}
	if m.Zone.VoltageInZone < 0 || m.Zone.VoltageOutZone < 0 {
		return fmt.Errorf("motor.zone voltages must be >= 0")
	}
	m.Zone.TransitionCurveRatio = motorctl.ClampCurveRatio(m.Zone.TransitionCurveRatio)
	if m.Shaping.SmoothingAlpha <= 0 || m.Shaping.SmoothingAlpha > 1 {
		return fmt.Errorf("motor.shaping.smoothing_alpha must be in (0, 1]")
	}
	if m.Shaping.HysteresisV < 0 {
		return fmt.Errorf("motor.shaping.hysteresis_v must be >= 0")
	}
	if m.Limits.VoltageLimit < 0 {
		return fmt.Errorf("motor.limits.voltage_limit must be >= 0")
	}

	w := &cfg.Web
	if w.Enable && strings.TrimSpace(w.Listen) == "" {
		w.Listen = def.Web.Listen
	}
	if w.AttitudeInterval <= 0 {
		w.AttitudeInterval = def.Web.AttitudeInterval
	}

	tm := &cfg.Telemetry
	if tm.Enable && strings.TrimSpace(tm.Broker) == "" {
		return fmt.Errorf("telemetry.broker is required when telemetry.enable is true")
	}
	if tm.ClientID == "" {
		tm.ClientID = def.Telemetry.ClientID
	}
	if tm.TopicPrefix == "" {
		tm.TopicPrefix = def.Telemetry.TopicPrefix
	}
	tm.TopicPrefix = strings.TrimSuffix(tm.TopicPrefix, "/")
	if tm.Interval <= 0 {
		tm.Interval = def.Telemetry.Interval
	}
	if tm.QoS < 0 || tm.QoS > 2 {
		return fmt.Errorf("telemetry.qos must be 0, 1 or 2")
	}

	c := &cfg.Console
	if c.Enable && strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("console.port is required when console.enable is true")
	}
	if c.Baud == 0 {
		c.Baud = def.Console.Baud
	}
	return nil
}
