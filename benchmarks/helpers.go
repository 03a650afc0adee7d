// Package benchmarks measures the simulator's hot paths: the kinematics
// step, the scheduler's action resumption, state publication and whole
// runtime ticks.
package benchmarks

import (
	"time"

	"github.com/comalice/pimulator/kinematics"
	"github.com/comalice/pimulator/program"
	"github.com/comalice/pimulator/realtime"
)

// DriveState returns a robot state with both wheels commanded, mirrored
// right wheel included. turn skews the right wheel to force the arc case.
func DriveState(turn float64) kinematics.State {
	p := kinematics.DefaultParams()
	return kinematics.State{
		Pose: kinematics.DefaultPose(),
		Wheels: kinematics.WheelState{
			Left:  0.5 * p.MaxAngularVelocity,
			Right: -(0.5 + turn) * p.MaxAngularVelocity,
		},
	}
}

// FastConfig is a runtime config with a 1ms tick and a generous watchdog.
func FastConfig() realtime.Config {
	return realtime.Config{
		TickRate:        time.Millisecond,
		WatchdogTimeout: time.Second,
		StartPose:       kinematics.DefaultPose(),
	}
}

// CountingProgram drives the motors from main and counts main calls.
func CountingProgram(calls *int64) program.Func {
	return program.Func{
		TeleopMain: func(env program.Env) error {
			*calls++
			return env.Robot.TankDrive(0.5, 0.4)
		},
	}
}
