package realtime

import (
	"errors"
	"fmt"

	"github.com/comalice/pimulator/scheduler"
)

var (
	ErrTimeoutFault  = errors.New("timeout fault")
	ErrUserCodeFault = errors.New("user code fault")
	ErrProtocolFault = errors.New("protocol fault")

	ErrAlreadyStarted = errors.New("runtime already started")
	ErrNotRunning     = errors.New("runtime not running")
)

// FaultKind classifies a Fault.
type FaultKind int

const (
	FaultTimeout FaultKind = iota
	FaultUserCode
	FaultProtocol
)

func (k FaultKind) String() string {
	switch k {
	case FaultTimeout:
		return "timeout"
	case FaultUserCode:
		return "user_code"
	case FaultProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

func (k FaultKind) sentinel() error {
	switch k {
	case FaultTimeout:
		return ErrTimeoutFault
	case FaultProtocol:
		return ErrProtocolFault
	default:
		return ErrUserCodeFault
	}
}

// Phase is the part of a run a fault happened in.
type Phase string

const (
	PhaseSetup Phase = "setup"
	PhaseTick  Phase = "tick"
)

// Fault is the terminal condition of a run. errors.Is matches it against
// the sentinel of its kind and against its cause.
type Fault struct {
	Kind  FaultKind
	Phase Phase
	Tick  uint64
	Cause error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault during %s (tick %d): %v", f.Kind, f.Phase, f.Tick, f.Cause)
}

func (f *Fault) Unwrap() error { return f.Cause }

func (f *Fault) Is(target error) bool { return target == f.Kind.sentinel() }

// classify turns an error escaping user code into a Fault.
func classify(phase Phase, tick uint64, err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return &Fault{Kind: f.Kind, Phase: phase, Tick: tick, Cause: f.Cause}
	}
	kind := FaultUserCode
	switch {
	case errors.Is(err, ErrTimeoutFault):
		kind = FaultTimeout
	case errors.Is(err, ErrProtocolFault), errors.Is(err, scheduler.ErrConfiguration):
		kind = FaultProtocol
	}
	return &Fault{Kind: kind, Phase: phase, Tick: tick, Cause: err}
}
