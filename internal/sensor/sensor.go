// Package sensor defines the Sensor interface and the sensors compiled into
// the agent. Each sensor encodes its reading as a little-endian binary payload.
package sensor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Entry points a dynamically loaded sensor module exports.
const (
	FactorySymbol = "NewSensor"
	DestroySymbol = "DestroySensor"
)

// Sensor is the interface that all metric sources must implement.
type Sensor interface {
	// Name returns the unique identifier for this sensor.
	Name() string

	// Sample takes one reading. An empty payload means there is nothing to
	// report this tick; it is neither stored nor broadcast.
	Sample(ctx context.Context) ([]byte, error)
}

// Initializer is implemented by sensors that accept configuration params.
type Initializer interface {
	Init(params map[string]string) error
}

// Init passes params to s if it accepts them.
func Init(s Sensor, params map[string]string) error {
	if i, ok := s.(Initializer); ok {
		return i.Init(params)
	}
	return nil
}

func boolParam(params map[string]string, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("param %s: %w", key, err)
	}
	return b, nil
}

func listParam(params map[string]string, key string) []string {
	var out []string
	for _, v := range strings.Split(params[key], ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
