// Package console serves a line-oriented command prompt on a serial port,
// the same "set name=value" interface the motor firmware exposed.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

var openPortFn = openPort

type Config struct {
	Port string
	Baud uint
}

// Motor is the motor service surface the console drives.
type Motor interface {
	Command(ctx context.Context, line string) error
	SetTargetAngle(ctx context.Context, deg float64) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	EnterAngleControl(ctx context.Context) error
	ExitAngleControl(ctx context.Context) error
}

// AHRS is the estimator service surface the console drives.
type AHRS interface {
	ResetYaw(ctx context.Context) error
	ZeroDrift(ctx context.Context) error
}

type Console struct {
	cfg    Config
	motor  Motor
	ahrs   AHRS
	status func() any
}

// New builds a console. Any of motor, ahrs or status may be nil; the
// matching commands then report that they are unavailable.
func New(cfg Config, motor Motor, ahrs AHRS, status func() any) *Console {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	return &Console{cfg: cfg, motor: motor, ahrs: ahrs, status: status}
}

// Run opens the serial port and serves it until ctx is done or the port
// fails.
func (c *Console) Run(ctx context.Context) error {
	port, err := openPortFn(c.cfg)
	if err != nil {
		return fmt.Errorf("console: open %s: %w", c.cfg.Port, err)
	}
	log.Printf("console: serving on %s at %d baud", c.cfg.Port, c.cfg.Baud)

	var once sync.Once
	closePort := func() { once.Do(func() { _ = port.Close() }) }
	defer closePort()
	go func() {
		<-ctx.Done()
		// Unblocks the pending read.
		closePort()
	}()

	err = c.Serve(ctx, port, port)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Serve reads commands from r, one per line, and writes one reply line per
// command to w.
func (c *Console) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		reply := c.handle(ctx, line)
		if _, err := io.WriteString(w, reply+"\n"); err != nil {
			return fmt.Errorf("console: write: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("console: read: %w", err)
	}
	return nil
}

func (c *Console) handle(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])

	var err error
	switch verb {
	case "set":
		if c.motor == nil {
			return "err: motor unavailable"
		}
		err = c.motor.Command(ctx, line)
	case "target":
		if c.motor == nil {
			return "err: motor unavailable"
		}
		if len(fields) != 2 {
			return "err: usage: target <deg>"
		}
		deg, perr := strconv.ParseFloat(fields[1], 64)
		if perr != nil {
			return fmt.Sprintf("err: invalid angle %q", fields[1])
		}
		err = c.motor.SetTargetAngle(ctx, deg)
	case "enable":
		if c.motor == nil {
			return "err: motor unavailable"
		}
		err = c.motor.Enable(ctx)
	case "disable":
		if c.motor == nil {
			return "err: motor unavailable"
		}
		err = c.motor.Disable(ctx)
	case "angle":
		if c.motor == nil {
			return "err: motor unavailable"
		}
		if len(fields) != 2 {
			return "err: usage: angle on|off"
		}
		switch strings.ToLower(fields[1]) {
		case "on":
			err = c.motor.EnterAngleControl(ctx)
		case "off":
			err = c.motor.ExitAngleControl(ctx)
		default:
			return "err: usage: angle on|off"
		}
	case "reset_yaw":
		if c.ahrs == nil {
			return "err: ahrs unavailable"
		}
		err = c.ahrs.ResetYaw(ctx)
	case "zero_drift":
		if c.ahrs == nil {
			return "err: ahrs unavailable"
		}
		err = c.ahrs.ZeroDrift(ctx)
	case "status":
		if c.status == nil {
			return "err: status unavailable"
		}
		b, jerr := json.Marshal(c.status())
		if jerr != nil {
			return "err: " + jerr.Error()
		}
		return string(b)
	case "help":
		return "commands: set <name>=<value> | target <deg> | enable | disable | angle on|off | reset_yaw | zero_drift | status"
	default:
		return fmt.Sprintf("err: unknown command %q", verb)
	}
	if err != nil {
		return "err: " + err.Error()
	}
	return "ok"
}

func openPort(cfg Config) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:        cfg.Port,
		BaudRate:        cfg.Baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
}
