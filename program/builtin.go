package program

import (
	"go.uber.org/zap"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/scheduler"
)

// Names of the built-in programs.
const (
	TankDriveName    = "tank_drive"
	ArcadeDriveName  = "arcade_drive"
	DriveForwardName = "drive_forward"
)

// Builtins returns a registry holding the built-in programs.
func Builtins() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		TankDriveName:    TankDrive().Factory(),
		ArcadeDriveName:  ArcadeDrive().Factory(),
		DriveForwardName: DriveForward,
	} {
		if err := r.Register(name, f); err != nil {
			panic(err)
		}
	}
	return r
}

// TankDrive drives each motor from the y axis of its stick in teleop.
func TankDrive() Func {
	return Func{
		TeleopMain: func(env Env) error {
			left, err := env.Gamepad.GetValue(device.JoystickLeftY)
			if err != nil {
				return err
			}
			right, err := env.Gamepad.GetValue(device.JoystickRightY)
			if err != nil {
				return err
			}
			return env.Robot.TankDrive(left, right)
		},
	}
}

// ArcadeDrive steers with the left stick in teleop.
func ArcadeDrive() Func {
	return Func{
		TeleopMain: func(env Env) error {
			turn, err := env.Gamepad.GetValue(device.JoystickLeftX)
			if err != nil {
				return err
			}
			forward, err := env.Gamepad.GetValue(device.JoystickLeftY)
			if err != nil {
				return err
			}
			return env.Robot.ArcadeDrive(turn, forward)
		},
	}
}

// driveForward drives straight for three seconds, then idles for three,
// using an action in both modes. Teleop falls back to tank drive once the
// action has finished.
type driveForward struct {
	env   Env
	drive *scheduler.Action
	tank  ControlProgram
}

// DriveForward is the Factory of the drive_forward program.
func DriveForward() (ControlProgram, error) {
	return &driveForward{tank: TankDrive().Program()}, nil
}

func (p *driveForward) Bind(env Env) error {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	p.env = env
	if err := p.tank.Bind(env); err != nil {
		return err
	}
	a, err := env.Scheduler.Define("drive_fwd", func(ctx *scheduler.Context, args ...any) error {
		speed := 0.7
		if len(args) > 0 {
			if v, ok := args[0].(float64); ok {
				speed = v
			}
		}
		if err := env.Robot.TankDrive(speed, speed); err != nil {
			return err
		}
		if err := ctx.Sleep(3.0); err != nil {
			return err
		}
		env.Robot.Stop()
		return ctx.Sleep(3.0)
	})
	if err != nil {
		return err
	}
	p.drive = a
	return nil
}

func (p *driveForward) AutonomousSetup() error {
	p.env.Logger.Info("autonomous mode has started")
	return p.env.Scheduler.Run(p.drive)
}

func (p *driveForward) AutonomousMain() error { return nil }

func (p *driveForward) TeleopSetup() error { return p.env.Scheduler.Run(p.drive) }

func (p *driveForward) TeleopMain() error {
	running, err := p.env.Scheduler.IsRunning(p.drive)
	if err != nil || running {
		return err
	}
	return p.tank.TeleopMain()
}
