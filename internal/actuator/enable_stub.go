//go:build !linux || (!arm && !arm64)

package actuator

import "fmt"

func OpenEnableLine(pin int) (EnableLine, error) {
	return nil, fmt.Errorf("actuator: gpio unsupported on this platform")
}
