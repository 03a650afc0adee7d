// Package testutil runs control programs on a real runtime in tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/comalice/pimulator/program"
	"github.com/comalice/pimulator/realtime"
)

// StaticInput is an InputSource returning fixed axis values. Safe for
// concurrent use.
type StaticInput struct {
	mu     sync.Mutex
	values map[string]float64
}

// NewStaticInput returns a source with the given readings.
func NewStaticInput(values map[string]float64) *StaticInput {
	in := &StaticInput{values: make(map[string]float64, len(values))}
	for k, v := range values {
		in.values[k] = v
	}
	return in
}

func (in *StaticInput) Value(id string) (float64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	v, ok := in.values[id]
	return v, ok
}

func (in *StaticInput) Set(id string, v float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.values[id] = v
}

// RuntimeAdapter runs a control program on a runtime the way a simulation
// does and records every snapshot.
type RuntimeAdapter struct {
	RT         *realtime.Runtime
	Program    program.ControlProgram
	Autonomous bool

	env   program.Env
	mu    sync.Mutex
	snaps []realtime.Snapshot
}

// NewRuntimeAdapter creates a runtime for prog. The program is bound by the
// setup routine when Start is called.
func NewRuntimeAdapter(t testing.TB, prog program.ControlProgram, autonomous bool, cfg realtime.Config, opts ...realtime.Option) *RuntimeAdapter {
	t.Helper()
	a := &RuntimeAdapter{Program: prog, Autonomous: autonomous}
	logger := zaptest.NewLogger(t)
	opts = append([]realtime.Option{
		realtime.WithLogger(logger),
		realtime.WithPublisher(realtime.PublisherFunc(a.record)),
	}, opts...)
	if i, ok := prog.(realtime.Interrupter); ok {
		opts = append(opts, realtime.WithInterrupter(i))
	}
	a.RT = realtime.NewRuntime(cfg, opts...)
	a.env = program.Env{
		Robot:     a.RT.Robot(),
		Gamepad:   a.RT.Gamepad(),
		Scheduler: a.RT.Scheduler(),
		Logger:    logger,
	}
	return a
}

// Start binds the program and runs the entry points of the adapter's mode.
func (a *RuntimeAdapter) Start(ctx context.Context) error {
	setup, main := program.Routines(a.Program, a.env, a.Autonomous)
	return a.RT.Start(ctx, setup, main)
}

func (a *RuntimeAdapter) Stop() error { return a.RT.Stop() }

// Snapshots returns everything published so far.
func (a *RuntimeAdapter) Snapshots() []realtime.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]realtime.Snapshot(nil), a.snaps...)
}

// WaitForTicks blocks until n ticks completed or the run ended.
func (a *RuntimeAdapter) WaitForTicks(n uint64, timeout time.Duration) bool {
	return WaitFor(timeout, func() bool {
		select {
		case <-a.RT.Done():
			return true
		default:
		}
		return a.RT.Tick() >= n
	})
}

func (a *RuntimeAdapter) record(s realtime.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps = append(a.snaps, s)
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
