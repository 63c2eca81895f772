package web

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	cpuTempPath     = "/sys/class/thermal/thermal_zone0/temp"
	boardModelPaths = []string{
		"/sys/firmware/devicetree/base/model",
		"/proc/device-tree/model",
	}
)

// parseCPUTempC accepts milli-degrees (the usual sysfs form) or degrees.
func parseCPUTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cpu temp empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse cpu temp %q: %w", s, err)
	}
	if n > 1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

func readCPUTempC() (float64, error) {
	b, err := os.ReadFile(cpuTempPath)
	if err != nil {
		return 0, fmt.Errorf("read cpu temp: %w", err)
	}
	return parseCPUTempC(string(b))
}

// boardModel returns the device-tree model string, e.g. "Raspberry Pi 5
// Model B Rev 1.0", or "" when the host has none.
func boardModel() string {
	for _, p := range boardModelPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if model := strings.Trim(strings.TrimSpace(string(b)), "\x00"); model != "" {
			return model
		}
	}
	return ""
}
