package device

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for actuator or input values outside [-1, 1].
	ErrOutOfRange = errors.New("value out of range")
	// ErrUnsupportedParameter is returned for actuator parameters other than duty_cycle.
	ErrUnsupportedParameter = errors.New("unsupported parameter")
	// ErrUnknownDevice is returned for unrecognized actuator or input ids.
	ErrUnknownDevice = errors.New("unknown device")
)

// Error describes a rejected device call. It unwraps to one of the sentinels above.
type Error struct {
	Op     string
	Device string
	Param  string
	Value  float64
	Err    error
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Err, ErrOutOfRange):
		return fmt.Sprintf("%s %s: %v must be within [-1.0, 1.0]: %v", e.Op, e.Device, e.Value, e.Err)
	case errors.Is(e.Err, ErrUnsupportedParameter):
		return fmt.Sprintf("%s %s: %q is not supported, only %q: %v", e.Op, e.Device, e.Param, DutyCycle, e.Err)
	default:
		return fmt.Sprintf("%s %q: %v", e.Op, e.Device, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
