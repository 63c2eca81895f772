package mpu6050

import (
	"fmt"
	"time"

	"rcgimbal/internal/i2c"
)

var sleep = time.Sleep

// Minimal MPU-6050 driver.
//
// Reads are returned in raw LSB; scaling and fusion live in ahrs.
// Full scale is fixed at ±4g / ±500°/s, which is what the estimator's
// gyro sensitivity default assumes.

const (
	addrDefault = 0x68

	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regIntEnable   = 0x38
	regAccelXoutH  = 0x3B // accel(6) temp(2) gyro(6)
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75

	whoAmIVal = 0x68

	bitReset      = 0x80
	clkSelPLLGyrX = 0x01

	fsGyro500dps = 0x08 // FS_SEL=1
	fsAccel4g    = 0x08 // AFS_SEL=1
	dlpf44Hz     = 0x03

	// 1 kHz / (1+div) with DLPF on.
	defaultSampleDiv = 1
)

type Device struct {
	dev regIO
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mpu6050: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mpu6050: dev is nil")
	}
	d := &Device{dev: dev}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("mpu6050: whoami read failed: %w", err)
	}
	// WHO_AM_I ignores AD0, bits 6:1 carry the address.
	if who&0x7E != whoAmIVal {
		return nil, fmt.Errorf("mpu6050: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("mpu6050: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	if err := d.dev.WriteReg(regPwrMgmt1, clkSelPLLGyrX); err != nil {
		return fmt.Errorf("mpu6050: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regConfig, dlpf44Hz); err != nil {
		return fmt.Errorf("mpu6050: dlpf config failed: %w", err)
	}
	if err := d.dev.WriteReg(regSmplrtDiv, defaultSampleDiv); err != nil {
		return fmt.Errorf("mpu6050: sample rate config failed: %w", err)
	}
	if err := d.dev.WriteReg(regGyroConfig, fsGyro500dps); err != nil {
		return fmt.Errorf("mpu6050: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("mpu6050: accel config failed: %w", err)
	}
	return nil
}

// TestConnection re-reads WHO_AM_I.
func (d *Device) TestConnection() bool {
	if d == nil {
		return false
	}
	who, err := d.dev.ReadRegU8(regWhoAmI)
	return err == nil && who&0x7E == whoAmIVal
}

// ReadRaw returns one accel+gyro burst in LSB, skipping the temperature word.
func (d *Device) ReadRaw() (ax, ay, az, gx, gy, gz int16, err error) {
	if d == nil {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("mpu6050: device is nil")
	}
	var buf [14]byte
	if err := d.dev.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("mpu6050: read sensors failed: %w", err)
	}
	be := func(i int) int16 { return int16(uint16(buf[i])<<8 | uint16(buf[i+1])) }
	return be(0), be(2), be(4), be(8), be(10), be(12), nil
}
