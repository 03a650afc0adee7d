// Package device is the actuator and input surface exposed to control programs.
//
// Robot validates motor commands and writes them into the kinematics wheel
// state it was constructed with. Gamepad reads joystick axes from an
// InputSource. Neither type suspends or locks: both are owned by the runtime's
// tick goroutine and the actions it resumes.
package device

import (
	"math"

	"github.com/comalice/pimulator/kinematics"
)

// Actuator ids and parameters accepted by Robot.SetValue.
const (
	LeftMotor  = "left_motor"
	RightMotor = "right_motor"
	DutyCycle  = "duty_cycle"
)

// Robot records actuator commands into a wheel state owned by the runtime.
type Robot struct {
	wheels *kinematics.WheelState
	gain   float64
}

// NewRobot returns a Robot writing into wheels. gain converts a duty cycle into
// wheel angular velocity.
func NewRobot(wheels *kinematics.WheelState, gain float64) *Robot {
	return &Robot{wheels: wheels, gain: gain}
}

// SetValue commands an actuator. The value is checked first, then the
// parameter, then the device.
func (r *Robot) SetValue(device, param string, value float64) error {
	if !(value >= -1 && value <= 1) {
		return &Error{Op: "set_value", Device: device, Param: param, Value: value, Err: ErrOutOfRange}
	}
	if param != DutyCycle {
		return &Error{Op: "set_value", Device: device, Param: param, Value: value, Err: ErrUnsupportedParameter}
	}
	switch device {
	case LeftMotor:
		r.wheels.Left = value * r.gain
	case RightMotor:
		r.wheels.Right = value * r.gain
	default:
		return &Error{Op: "set_value", Device: device, Param: param, Value: value, Err: ErrUnknownDevice}
	}
	return nil
}

// GetValue returns the duty cycle last commanded on an actuator.
func (r *Robot) GetValue(device string) (float64, error) {
	var w float64
	switch device {
	case LeftMotor:
		w = r.wheels.Left
	case RightMotor:
		w = r.wheels.Right
	default:
		return 0, &Error{Op: "get_value", Device: device, Err: ErrUnknownDevice}
	}
	if r.gain == 0 {
		return 0, nil
	}
	return w / r.gain, nil
}

// Stop zeroes both motors.
func (r *Robot) Stop() {
	r.wheels.Left = 0
	r.wheels.Right = 0
}

// clampDuty limits v to a legal duty cycle, used by drive mixers.
func clampDuty(v float64) float64 {
	return math.Max(math.Min(v, 1), -1)
}
