// CPU/GPU temperature sensor: hottest reading per category.
// Uses gopsutil host sensors; unsupported platforms report nothing.
package sensor

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const TemperatureName = "temperature"

// Substrings identifying CPU sensors across platforms.
// Linux:  coretemp_core_0_input, k10temp_tctl_input, acpitz_temp1_input
// macOS:  TC0P (CPU proximity), TC0D (CPU die), TCXC (CPU core)
var cpuSensorKeys = []string{
	"cpu", "core", "package",
	"tctl", "tdie", "k10temp", "coretemp",
	"tc0p", "tc0d", "tcxc",
	"acpitz", "zenpower",
}

// Linux:  amdgpu_edge_input, nouveau_temp1_input
// macOS:  TG0P (GPU proximity), TG0D (GPU die)
var gpuSensorKeys = []string{
	"gpu", "nvidia", "amd", "radeon",
	"tg0p", "tg0d",
	"amdgpu", "nouveau",
}

// Readings outside (0, 150] °C are treated as sensor errors.
const (
	minValidTemp = 0.0
	maxValidTemp = 150.0
)

// Temperature reports the maximum CPU and GPU temperature in °C.
type Temperature struct{}

func NewTemperature() *Temperature {
	return &Temperature{}
}

func (s *Temperature) Name() string { return TemperatureName }

// Sample returns an empty payload when no thermal sensor matches. gopsutil
// returns partial readings together with a warning error, so readings are
// used whenever there are any.
func (s *Temperature) Sample(ctx context.Context) ([]byte, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if len(temps) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
	return encodeTemperatures(temps), nil
}

// encodeTemperatures writes (bool cpu found, f64 cpu, bool gpu found, f64 gpu).
func encodeTemperatures(temps []host.TemperatureStat) []byte {
	var cpuMax, gpuMax float64
	cpuFound, gpuFound := false, false

	for _, t := range temps {
		if !isValidTemperature(t.Temperature) {
			continue
		}
		name := strings.ToLower(t.SensorKey)
		if matchesSensor(name, cpuSensorKeys) && (!cpuFound || t.Temperature > cpuMax) {
			cpuMax, cpuFound = t.Temperature, true
		}
		if matchesSensor(name, gpuSensorKeys) && (!gpuFound || t.Temperature > gpuMax) {
			gpuMax, gpuFound = t.Temperature, true
		}
	}
	if !cpuFound && !gpuFound {
		return nil
	}

	e := protocol.NewEncoder(18)
	e.PutBool(cpuFound)
	e.PutFloat64(cpuMax)
	e.PutBool(gpuFound)
	e.PutFloat64(gpuMax)
	return e.Bytes()
}

func matchesSensor(name string, keys []string) bool {
	for _, key := range keys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}

func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}
