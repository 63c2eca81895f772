//go:build linux && (arm || arm64)

package actuator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OpenEnableLine requests the given BCM GPIO as the driver enable output,
// initially low.
func OpenEnableLine(pin int) (EnableLine, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("actuator: invalid enable pin %d", pin)
	}

	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("rcgimbal-motor"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodEnable{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("actuator: gpio line %q not found (or busy)", lineName)
}

type gpiodEnable struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodEnable) Set(on bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("actuator: enable line not initialized")
	}
	v := 0
	if on {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodEnable) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	// Leave the bridge off.
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
