package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/internal/lifecycle"
	"github.com/comalice/pimulator/kinematics"
	"github.com/comalice/pimulator/scheduler"
)

// Status is the lifecycle state of a Runtime.
type Status = lifecycle.StateID

const (
	Idle    = lifecycle.Idle
	Running = lifecycle.Running
	Stopped = lifecycle.Stopped
	Faulted = lifecycle.Faulted
)

// Runtime executes one run of a control program. The robot state is owned
// by the tick goroutine; everything else reads Snapshots.
type Runtime struct {
	cfg   Config
	state kinematics.State
	robot *device.Robot
	pad   *device.Gamepad
	sched *scheduler.Scheduler
	input device.InputSource

	publishers  []Publisher
	observer    Observer
	interrupter Interrupter
	logger      *zap.Logger
	runID       string

	machine *lifecycle.Machine

	mu       sync.Mutex
	started  bool
	tickNum  uint64
	overruns uint64
	fault    *Fault

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRuntime creates an idle runtime. Zero fields of cfg take the values of
// DefaultConfig, except StartPose.
func NewRuntime(cfg Config, opts ...Option) *Runtime {
	rt := &Runtime{
		cfg:     cfg.withDefaults(),
		sched:   scheduler.New(),
		logger:  zap.NewNop(),
		machine: lifecycle.New(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	rt.state.Pose = rt.cfg.StartPose
	for _, opt := range opts {
		opt(rt)
	}
	if rt.runID == "" {
		rt.runID = uuid.NewString()
	}
	rt.logger = rt.logger.With(zap.String("run_id", rt.runID))
	rt.robot = device.NewRobot(&rt.state.Wheels, rt.cfg.Kinematics.MaxAngularVelocity)
	rt.pad = device.NewGamepad(rt.input)

	logTransition := func(_ context.Context, evt lifecycle.EventID, from, to lifecycle.StateID) error {
		rt.logger.Info("runtime state changed",
			zap.Stringer("from", from), zap.Stringer("to", to), zap.Stringer("event", evt))
		return nil
	}
	for _, id := range []lifecycle.StateID{Running, Stopped, Faulted} {
		if s, ok := rt.machine.State(id); ok {
			s.OnEntry(logTransition)
		}
	}
	return rt
}

// Start runs setup to completion under the watchdog, publishes the initial
// snapshot and starts the tick loop. A setup fault is returned and leaves the
// runtime Faulted without ever ticking.
func (rt *Runtime) Start(ctx context.Context, setup, main Routine) error {
	if main == nil {
		return fmt.Errorf("%w: main routine is required", ErrProtocolFault)
	}
	rt.mu.Lock()
	if rt.started {
		rt.mu.Unlock()
		return ErrAlreadyStarted
	}
	rt.started = true
	rt.mu.Unlock()

	if err := rt.machine.Start(ctx); err != nil {
		return err
	}

	if setup != nil {
		if f := rt.guard(PhaseSetup, 0, setup); f != nil {
			rt.fail(ctx, f)
			rt.sched.Close()
			close(rt.done)
			return f
		}
	}

	if err := rt.machine.Send(ctx, lifecycle.EventStart); err != nil {
		return err
	}
	rt.publish(rt.snapshot(0))

	go rt.loop(ctx, main)
	return nil
}

// Stop asks the loop to exit after the current tick and waits for it.
func (rt *Runtime) Stop() error {
	if rt.machine.Current() != Running {
		return ErrNotRunning
	}
	rt.stopOnce.Do(func() { close(rt.stopCh) })
	<-rt.done
	return nil
}

// Done is closed when the run has ended, whether stopped or faulted.
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

// Wait blocks until the run ends and returns its fault, if any.
// It must only be called after Start.
func (rt *Runtime) Wait() error {
	<-rt.done
	return rt.Err()
}

// Err returns the fault that ended the run, or nil.
func (rt *Runtime) Err() error {
	if f := rt.Fault(); f != nil {
		return f
	}
	return nil
}

// Fault returns the fault that ended the run, or nil.
func (rt *Runtime) Fault() *Fault {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.fault
}

// Status returns the lifecycle state.
func (rt *Runtime) Status() Status { return rt.machine.Current() }

// Tick returns the number of completed ticks.
func (rt *Runtime) Tick() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tickNum
}

// Overruns returns how many ticks took longer than the tick period.
func (rt *Runtime) Overruns() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.overruns
}

func (rt *Runtime) RunID() string { return rt.runID }

func (rt *Runtime) Config() Config { return rt.cfg }

// Robot is the actuator surface bound to this run's wheel state. It must
// only be used from setup, main and actions.
func (rt *Runtime) Robot() *device.Robot { return rt.robot }

// Gamepad reads the input source given with WithInput.
func (rt *Runtime) Gamepad() *device.Gamepad { return rt.pad }

// Scheduler runs this run's actions.
func (rt *Runtime) Scheduler() *scheduler.Scheduler { return rt.sched }

func (rt *Runtime) snapshot(tick uint64) Snapshot {
	return Snapshot{
		RunID:   rt.runID,
		Tick:    tick,
		SimTime: time.Duration(tick) * rt.cfg.TickRate,
		Wall:    time.Now(),
		Pose:    rt.state.Pose,
		Wheels:  rt.state.Wheels,
	}
}

func (rt *Runtime) publish(s Snapshot) {
	for _, p := range rt.publishers {
		p.Publish(s)
	}
}

func (rt *Runtime) fail(ctx context.Context, f *Fault) {
	rt.mu.Lock()
	rt.fault = f
	rt.mu.Unlock()

	if err := rt.machine.Send(ctx, lifecycle.EventFault); err != nil {
		rt.logger.Warn("lifecycle rejected fault", zap.Error(err))
	}
	rt.logger.Error("runtime faulted",
		zap.Stringer("kind", f.Kind),
		zap.String("phase", string(f.Phase)),
		zap.Uint64("tick", f.Tick),
		zap.Error(f.Cause))
	if rt.observer != nil {
		rt.observer.ObserveFault(f)
	}
}

func (rt *Runtime) finish(ctx context.Context, reason string) {
	if err := rt.machine.Send(ctx, lifecycle.EventStop); err != nil {
		rt.logger.Warn("lifecycle rejected stop", zap.Error(err))
	}
	rt.logger.Info("runtime stopped", zap.String("reason", reason), zap.Uint64("ticks", rt.Tick()))
}
