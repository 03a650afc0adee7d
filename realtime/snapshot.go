package realtime

import (
	"time"

	"github.com/comalice/pimulator/kinematics"
)

// Snapshot is an immutable copy of the robot state taken after a tick.
// It holds no references into the runtime.
type Snapshot struct {
	RunID   string                `json:"runId" yaml:"runId"`
	Tick    uint64                `json:"tick" yaml:"tick"`
	SimTime time.Duration         `json:"simTime" yaml:"simTime"`
	Wall    time.Time             `json:"wall" yaml:"wall"`
	Pose    kinematics.Pose       `json:"pose" yaml:"pose"`
	Wheels  kinematics.WheelState `json:"wheels" yaml:"wheels"`
}

// TickContext describes the tick being executed.
type TickContext struct {
	Tick     uint64
	SimTime  time.Duration
	Start    time.Time
	Deadline time.Time // watchdog expiry
}

// Publisher receives every snapshot. Publish is called from the tick
// goroutine and must not block.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot)

func (f PublisherFunc) Publish(s Snapshot) { f(s) }

// Observer is notified about tick timing and faults, typically for metrics.
type Observer interface {
	ObserveTick(tc TickContext, elapsed time.Duration, overrun bool, actions int)
	ObserveFault(f *Fault)
}

// Interrupter aborts user code stuck past the watchdog deadline.
type Interrupter interface {
	Interrupt(reason any)
}

// Routine is a setup or main entry point.
type Routine func() error
