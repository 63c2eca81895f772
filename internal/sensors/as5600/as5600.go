// Package as5600 reads the AS5600 12-bit magnetic rotary position sensor
// over I2C.
package as5600

import (
	"fmt"
	"io"
	"math"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	regStatus   = 0x0B
	regRawAngle = 0x0C
	regAGC      = 0x1A

	statusMH = 1 << 3
	statusML = 1 << 4
	statusMD = 1 << 5

	counts = 4096
)

// DefaultAddress is fixed in silicon.
const DefaultAddress uint16 = 0x36

type Status struct {
	MagnetDetected bool
	TooWeak        bool
	TooStrong      bool
	AGC            uint8
}

type Dev struct {
	c conn.Conn
}

// New wraps an I2C connection and confirms a magnet is in range.
func New(c conn.Conn) (*Dev, error) {
	if c == nil {
		return nil, fmt.Errorf("as5600: conn is nil")
	}
	d := &Dev{c: c}
	st, err := d.Status()
	if err != nil {
		return nil, err
	}
	if !st.MagnetDetected {
		return nil, fmt.Errorf("as5600: magnet not detected")
	}
	return d, nil
}

// Open initializes the periph host drivers and opens the named I2C bus.
// The returned closer releases the bus.
func Open(busName string, addr uint16) (*Dev, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("as5600: host init: %w", err)
	}
	if addr == 0 {
		addr = DefaultAddress
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("as5600: open bus %q: %w", busName, err)
	}
	d, err := New(&i2c.Dev{Bus: bus, Addr: addr})
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return d, bus, nil
}

func (d *Dev) Status() (Status, error) {
	var st [1]byte
	if err := d.c.Tx([]byte{regStatus}, st[:]); err != nil {
		return Status{}, fmt.Errorf("as5600: read status: %w", err)
	}
	var agc [1]byte
	if err := d.c.Tx([]byte{regAGC}, agc[:]); err != nil {
		return Status{}, fmt.Errorf("as5600: read agc: %w", err)
	}
	return Status{
		MagnetDetected: st[0]&statusMD != 0,
		TooWeak:        st[0]&statusML != 0,
		TooStrong:      st[0]&statusMH != 0,
		AGC:            agc[0],
	}, nil
}

// RawAngle returns the unscaled 12-bit position.
func (d *Dev) RawAngle() (uint16, error) {
	var b [2]byte
	if err := d.c.Tx([]byte{regRawAngle}, b[:]); err != nil {
		return 0, fmt.Errorf("as5600: read raw angle: %w", err)
	}
	return (uint16(b[0])<<8 | uint16(b[1])) & 0x0FFF, nil
}

// Angle returns the shaft position in radians, [0, 2π).
func (d *Dev) Angle() (float64, error) {
	raw, err := d.RawAngle()
	if err != nil {
		return 0, err
	}
	return float64(raw) * 2 * math.Pi / counts, nil
}
