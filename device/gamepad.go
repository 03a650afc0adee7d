package device

import (
	"fmt"
	"math"
)

// Joystick axis ids readable through Gamepad.GetValue.
const (
	JoystickLeftX  = "joystick_left_x"
	JoystickLeftY  = "joystick_left_y"
	JoystickRightX = "joystick_right_x"
	JoystickRightY = "joystick_right_y"
)

// Neutral is reported for a stick whose two axes are both exactly zero.
const Neutral = "Neutral"

// InputSource supplies the current reading of an input id.
type InputSource interface {
	Value(id string) (float64, bool)
}

// Gamepad exposes an InputSource to control programs.
type Gamepad struct {
	src InputSource
}

// NewGamepad wraps src.
func NewGamepad(src InputSource) *Gamepad {
	return &Gamepad{src: src}
}

// GetValue returns the reading of an input id.
func (g *Gamepad) GetValue(id string) (float64, error) {
	if g.src == nil {
		return 0, &Error{Op: "get_value", Device: id, Err: ErrUnknownDevice}
	}
	v, ok := g.src.Value(id)
	if !ok {
		return 0, &Error{Op: "get_value", Device: id, Err: ErrUnknownDevice}
	}
	return v, nil
}

// LeftStick returns the direction the left stick points to.
func (g *Gamepad) LeftStick() (Direction, error) {
	return g.stick(JoystickLeftX, JoystickLeftY)
}

// RightStick returns the direction the right stick points to.
func (g *Gamepad) RightStick() (Direction, error) {
	return g.stick(JoystickRightX, JoystickRightY)
}

func (g *Gamepad) stick(xID, yID string) (Direction, error) {
	x, err := g.GetValue(xID)
	if err != nil {
		return Direction{}, err
	}
	y, err := g.GetValue(yID)
	if err != nil {
		return Direction{}, err
	}
	// stick y axes read negative when pushed forward
	return Theta(x, -y), nil
}

// Direction is a stick angle in degrees, or Neutral.
type Direction struct {
	Neutral bool
	Degrees float64
}

func (d Direction) String() string {
	if d.Neutral {
		return Neutral
	}
	return fmt.Sprintf("%.1f", d.Degrees)
}

// Theta converts a cartesian axis pair into a polar angle.
func Theta(x, y float64) Direction {
	if x == 0 && y == 0 {
		return Direction{Neutral: true}
	}
	if x == 0 {
		if y > 0 {
			return Direction{Degrees: 90}
		}
		return Direction{Degrees: 270}
	}
	theta := math.Atan(y/x) * 180 / math.Pi
	if x > 0 {
		return Direction{Degrees: theta}
	}
	return Direction{Degrees: theta + 180}
}
