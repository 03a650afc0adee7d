package kinematics

import "math"

// Params holds the physical constants of the robot and field.
type Params struct {
	Width              float64 // distance between the wheels
	WheelRadius        float64
	FieldMax           float64 // side of the square field
	MaxAngularVelocity float64 // angular velocity commanded by a duty cycle of 1
	PhaseScale         float64 // wheel phase advance per unit of angular velocity per tick
	RightSign          float64 // -1 when the right motor is mounted mirrored
}

// DefaultParams returns the constants of the reference robot.
func DefaultParams() Params {
	return Params{
		Width:              12,
		WheelRadius:        2,
		FieldMax:           143,
		MaxAngularVelocity: 9,
		PhaseScale:         5,
		RightSign:          -1,
	}
}

// Pose is the robot position on the field. Heading is in degrees.
type Pose struct {
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	Heading float64 `json:"heading" yaml:"heading"`
}

// DefaultPose is the center of the reference field, facing +X.
func DefaultPose() Pose {
	return Pose{X: 72, Y: 72, Heading: 0}
}

// WheelState holds commanded angular velocities and cosmetic wheel phases.
type WheelState struct {
	Left       float64 `json:"left" yaml:"left"`
	Right      float64 `json:"right" yaml:"right"`
	LeftPhase  float64 `json:"leftPhase" yaml:"leftPhase"`
	RightPhase float64 `json:"rightPhase" yaml:"rightPhase"`
}

// State is everything the engine advances each tick.
type State struct {
	Pose   Pose
	Wheels WheelState
}

// Advance integrates the drive model over dt seconds and returns the next state.
func Advance(p Params, s State, dt float64) State {
	lv := s.Wheels.Left * p.WheelRadius
	rv := s.Wheels.Right * p.WheelRadius * p.rightSign()
	theta := radians(s.Pose.Heading)
	heading := s.Pose.Heading

	var dx, dy float64
	if lv == rv {
		distance := rv * dt
		dx = distance * math.Cos(theta)
		dy = distance * math.Sin(theta)
	} else {
		rt := p.Width / 2 * (lv + rv) / (rv - lv)
		wt := (rv - lv) / p.Width
		turn := wt * dt
		i := rt * (1 - math.Cos(turn))
		j := rt * math.Sin(turn)
		dx = i*math.Sin(theta) + j*math.Cos(theta)
		dy = i*math.Cos(theta) + j*math.Sin(theta)
		heading = WrapDegrees(heading + degrees(turn))
	}

	next := s
	next.Pose = Pose{
		X:       clamp(s.Pose.X+dx, 0, p.FieldMax),
		Y:       clamp(s.Pose.Y+dy, 0, p.FieldMax),
		Heading: heading,
	}
	next.Wheels.LeftPhase = WrapDegrees(s.Wheels.LeftPhase + s.Wheels.Left*p.PhaseScale)
	next.Wheels.RightPhase = WrapDegrees(s.Wheels.RightPhase + s.Wheels.Right*p.PhaseScale)
	return next
}

// WrapDegrees maps any angle into [0, 360).
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	// -tiny + 360 rounds to exactly 360
	if w >= 360 {
		w = 0
	}
	return w
}

func (p Params) rightSign() float64 {
	if p.RightSign == 0 {
		return 1
	}
	return p.RightSign
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(math.Min(v, hi), lo)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
