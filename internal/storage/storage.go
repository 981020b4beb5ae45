// Package storage defines the contract every storage backend implements and
// the errors they share. Backends live in subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cpp11nullptr/vikki/internal/models"
)

// Entry points a dynamically loaded storage module exports.
const (
	FactorySymbol = "NewStorage"
	DestroySymbol = "DestroyStorage"
)

// Storage persists sensor samples keyed by timestamp. One entity (table,
// file, key prefix) holds the samples of one sensor. Implementations must be
// safe for concurrent use.
type Storage interface {
	Name() string

	// Open establishes backend resources. It is called once at startup.
	Open(ctx context.Context, params map[string]string) error
	Close() error

	// PrepareEntity creates the entity for sensor if it does not exist yet.
	PrepareEntity(ctx context.Context, sensor string) error

	// Put stores one sample. A sample with the same timestamp is replaced.
	Put(ctx context.Context, sensor string, ts int64, payload []byte) error

	// Get returns samples with from <= ts <= to in ascending timestamp order.
	// A sensor without an entity yields no records.
	Get(ctx context.Context, sensor string, from, to int64) ([]models.Record, error)
}

var (
	ErrNotOpen       = errors.New("storage not open")
	ErrInvalidEntity = errors.New("invalid entity name")
	ErrMissingParam  = errors.New("missing storage parameter")
)

// Error wraps a failed storage operation.
type Error struct {
	Op     string
	Sensor string
	Err    error
}

func (e *Error) Error() string {
	if e.Sensor == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Sensor, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error unless it is nil or already one.
func Wrap(op, sensor string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Sensor: sensor, Err: err}
}

var entityPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateEntity checks that a sensor name can be used as an entity name in
// every backend (SQL identifiers, file names, object keys).
func ValidateEntity(sensor string) error {
	if !entityPattern.MatchString(sensor) {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, sensor)
	}
	return nil
}

// Param returns params[key] or ErrMissingParam when it is absent or empty.
func Param(params map[string]string, key string) (string, error) {
	v := params[key]
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return v, nil
}

// ParamDefault returns params[key], or def when it is absent or empty.
func ParamDefault(params map[string]string, key, def string) string {
	if v := params[key]; v != "" {
		return v
	}
	return def
}

// ParamBool parses params[key] as a bool, returning def when absent.
func ParamBool(params map[string]string, key string, def bool) (bool, error) {
	v := params[key]
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parameter %s: %w", key, err)
	}
	return b, nil
}
