package pimulator

import (
	"time"

	"go.uber.org/zap"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/gamepad"
	"github.com/comalice/pimulator/internal/production"
	"github.com/comalice/pimulator/realtime"
)

// DefaultReadTimeout is how long GetState callers are expected to wait for
// a fresh snapshot.
const DefaultReadTimeout = 100 * time.Millisecond

// DefaultAutonomousDuration is the length of an autonomous period.
const DefaultAutonomousDuration = 30 * time.Second

// InputFactory creates the gamepad input for one run.
type InputFactory func() (device.InputSource, error)

// RunSink receives the snapshots of a single run and is closed once the run
// has ended. err is the run's fault, or nil.
type RunSink interface {
	realtime.Publisher
	Close(info RunInfo, err error) error
}

// SinkFactory creates a RunSink for a run that is about to start.
type SinkFactory func(info RunInfo) (RunSink, error)

// RunInfo identifies a run.
type RunInfo struct {
	ID      string
	Mode    Mode
	Started time.Time
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithRuntimeConfig sets the runtime configuration used for every run. The
// MaxDuration field is replaced per mode.
func WithRuntimeConfig(cfg realtime.Config) Option {
	return func(s *Simulation) {
		s.cfg = cfg
	}
}

// WithAutonomousDuration limits autonomous runs to d of simulated time.
// Zero lets autonomous runs continue until stopped.
func WithAutonomousDuration(d time.Duration) Option {
	return func(s *Simulation) {
		s.autonomous = d
	}
}

// WithBufferCapacity sets the number of unread snapshots kept for GetState.
func WithBufferCapacity(n int) Option {
	return func(s *Simulation) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger used by the simulation and its runs.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver attaches an observer to every run.
func WithObserver(o realtime.Observer) Option {
	return func(s *Simulation) {
		s.observer = o
	}
}

// WithPublisher adds a publisher that receives the snapshots of every run.
func WithPublisher(p realtime.Publisher) Option {
	return func(s *Simulation) {
		s.publishers = append(s.publishers, p)
	}
}

// WithSink adds a per-run sink factory.
func WithSink(f SinkFactory) Option {
	return func(s *Simulation) {
		s.sinks = append(s.sinks, f)
	}
}

// WithEvictHook is called for every snapshot dropped from the GetState
// buffer.
func WithEvictHook(fn func()) Option {
	return func(s *Simulation) {
		s.onEvict = fn
	}
}

// WithInput sets the factory for the per-run gamepad input.
func WithInput(f InputFactory) Option {
	return func(s *Simulation) {
		s.input = f
	}
}

// WithGamepadScript feeds each run from a fresh scripted gamepad that starts
// at the beginning of script.
func WithGamepadScript(script gamepad.Script) Option {
	return WithInput(func() (device.InputSource, error) {
		return gamepad.NewScripted(script)
	})
}

func defaults(s *Simulation) {
	s.cfg = realtime.DefaultConfig()
	s.autonomous = DefaultAutonomousDuration
	s.capacity = production.DefaultCapacity
	s.logger = zap.NewNop()
	WithGamepadScript(gamepad.Tank)(s)
}
