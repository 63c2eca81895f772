package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"rcgimbal/internal/ahrs"
	"rcgimbal/internal/config"
	"rcgimbal/internal/console"
	"rcgimbal/internal/motorctl"
	"rcgimbal/internal/telemetry"
	"rcgimbal/internal/web"
)

// runtime owns the long-lived services built from one config.
type runtime struct {
	cfg config.Config

	ahrsSvc  *ahrs.Service
	motorSvc *motorctl.Service

	status   *web.Status
	attitude *web.AttitudeBroadcaster
}

func ahrsServiceConfig(c config.AHRSConfig) (ahrs.Config, error) {
	align, err := ahrs.ParseAlignment(c.AlignmentDeg)
	if err != nil {
		return ahrs.Config{}, err
	}
	wrap, err := ahrs.ParseYawWrap(c.YawWrap)
	if err != nil {
		return ahrs.Config{}, err
	}
	return ahrs.Config{
		Enable:              c.Enable,
		Source:              c.Source,
		I2CBus:              c.I2CBus,
		IMUAddr:             c.IMUAddr,
		SampleInterval:      c.SampleInterval,
		SimYawRateDegPerSec: c.SimYawRateDegPerSec,
		Estimator: ahrs.EstimatorConfig{
			Alignment:          align,
			YawWrap:            wrap,
			YawOffsetLSB:       c.YawOffsetLSB,
			GyroSensitivity:    c.GyroSensitivity,
			ComplementaryAlpha: c.ComplementaryAlpha,
		},
	}, nil
}

func motorServiceConfig(c config.MotorConfig) motorctl.Config {
	return motorctl.Config{
		Enable:         c.Enable,
		Backend:        c.Backend,
		UpdateInterval: c.UpdateInterval,
		Zone:           c.Zone,
		Shaping:        c.Shaping,
		Tuning:         c.Tuning,
		Limits:         c.Limits,
		EncoderBus:     c.EncoderBus,
		EncoderAddr:    c.EncoderAddr,
		EnableGPIO:     c.EnableGPIO,
		PWM: motorctl.PWMConfig{
			Enable:      c.PWM.Enable,
			Chip:        c.PWM.Chip,
			Channel:     c.PWM.Channel,
			FrequencyHz: c.PWM.FrequencyHz,
			SupplyV:     c.PWM.SupplyV,
		},
	}
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	r := &runtime{
		cfg:      c,
		status:   web.NewStatus(),
		attitude: web.NewAttitudeBroadcaster(),
	}

	if c.AHRS.Enable {
		ac, err := ahrsServiceConfig(c.AHRS)
		if err != nil {
			return nil, fmt.Errorf("ahrs config: %w", err)
		}
		svc := ahrs.New(ac)
		// Keep running without attitude; the snapshot reports the failure.
		if err := svc.Start(ctx); err != nil {
			log.Printf("ahrs init failed: %v", err)
		}
		r.ahrsSvc = svc
		r.status.SetAHRS(svc.Snapshot)
	}

	if c.Motor.Enable {
		svc := motorctl.New(motorServiceConfig(c.Motor))
		if err := svc.Start(ctx); err != nil {
			log.Printf("motorctl init failed: %v", err)
		}
		r.motorSvc = svc
		r.status.SetMotor(svc.Snapshot)
	}

	return r, nil
}

func (r *runtime) attitudeSnapshot() web.AttitudeSnapshot {
	return web.AttitudeFromAHRS(r.ahrsSvc.Snapshot())
}

// webDeps leaves the controller interfaces nil when a service is off so the
// handler can report it as unavailable.
func (r *runtime) webDeps(logs *web.LogBuffer) web.Deps {
	d := web.Deps{Status: r.status, Logs: logs, Attitude: r.attitude}
	if r.ahrsSvc != nil {
		d.AHRS = r.ahrsSvc
	}
	if r.motorSvc != nil {
		d.Motor = r.motorSvc
	}
	return d
}

func (r *runtime) newConsole() *console.Console {
	var m console.Motor
	if r.motorSvc != nil {
		m = r.motorSvc
	}
	var a console.AHRS
	if r.ahrsSvc != nil {
		a = r.ahrsSvc
	}
	return console.New(console.Config{Port: r.cfg.Console.Port, Baud: r.cfg.Console.Baud}, m, a, func() any {
		return r.status.Snapshot(time.Time{})
	})
}

func (r *runtime) newTelemetry() *telemetry.Publisher {
	var sources []telemetry.Source
	var command telemetry.CommandFunc
	if r.ahrsSvc != nil {
		sources = append(sources, telemetry.Source{Name: "attitude", Snapshot: func() any { return r.attitudeSnapshot() }})
	}
	if r.motorSvc != nil {
		sources = append(sources, telemetry.Source{Name: "motor", Snapshot: func() any { return r.motorSvc.Snapshot() }})
		command = r.motorSvc.Command
	}
	tc := r.cfg.Telemetry
	return telemetry.New(telemetry.Config{
		Broker:      tc.Broker,
		ClientID:    tc.ClientID,
		TopicPrefix: tc.TopicPrefix,
		Interval:    tc.Interval,
		QoS:         byte(tc.QoS),
	}, command, sources...)
}

// Close stops the services and waits for them to release their hardware.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.motorSvc != nil {
		r.motorSvc.Close()
		r.motorSvc.Wait()
	}
	if r.ahrsSvc != nil {
		r.ahrsSvc.Close()
		r.ahrsSvc.Wait()
	}
}
