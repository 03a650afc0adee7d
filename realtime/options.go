package realtime

import (
	"time"

	"go.uber.org/zap"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/kinematics"
)

// Config configures a Runtime.
type Config struct {
	TickRate        time.Duration // simulated and paced tick period
	WatchdogTimeout time.Duration // budget for setup and for each tick
	MaxDuration     time.Duration // simulated time after which the run stops; 0 runs until stopped
	Kinematics      kinematics.Params
	StartPose       kinematics.Pose
}

// DefaultConfig returns a 50ms tick, a 1s watchdog and the reference robot
// placed at the field center.
func DefaultConfig() Config {
	return Config{
		TickRate:        50 * time.Millisecond,
		WatchdogTimeout: time.Second,
		Kinematics:      kinematics.DefaultParams(),
		StartPose:       kinematics.DefaultPose(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = d.WatchdogTimeout
	}
	if c.Kinematics == (kinematics.Params{}) {
		c.Kinematics = d.Kinematics
	}
	return c
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithPublisher adds a snapshot sink. It may be given more than once.
func WithPublisher(p Publisher) Option {
	return func(rt *Runtime) {
		if p != nil {
			rt.publishers = append(rt.publishers, p)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(rt *Runtime) {
		rt.observer = o
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithInterrupter sets what is interrupted when the watchdog expires.
func WithInterrupter(i Interrupter) Option {
	return func(rt *Runtime) {
		rt.interrupter = i
	}
}

// WithRunID stamps snapshots with id instead of a generated one.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// WithInput sets the source behind the runtime's gamepad.
func WithInput(src device.InputSource) Option {
	return func(rt *Runtime) {
		rt.input = src
	}
}
