// Package program defines the control programs a simulation runs: the
// ControlProgram interface, an adapter for plain Go functions, a registry
// for looking programs up by name and the built-in sample programs.
package program

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/scheduler"
)

// ErrUnknownProgram is returned by Registry.Lookup for unregistered names.
var ErrUnknownProgram = errors.New("unknown program")

// Env is what a program is bound to for one run.
type Env struct {
	Robot     *device.Robot
	Gamepad   *device.Gamepad
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
}

// ControlProgram is user control logic with four entry points. Bind is
// called once per run before any entry point; setup is called once and main
// once per tick, all on the runtime's tick goroutine.
type ControlProgram interface {
	Bind(env Env) error
	AutonomousSetup() error
	AutonomousMain() error
	TeleopSetup() error
	TeleopMain() error
}

// Factory creates a fresh program instance for a run.
type Factory func() (ControlProgram, error)

// Entry is one entry point of a Func program.
type Entry func(env Env) error

// Func adapts plain functions to ControlProgram. Nil entries do nothing.
type Func struct {
	OnBind          Entry
	AutonomousSetup Entry
	AutonomousMain  Entry
	TeleopSetup     Entry
	TeleopMain      Entry
}

// Program returns a ControlProgram calling f's entries.
func (f Func) Program() ControlProgram { return &funcProgram{f: f} }

// Factory returns a Factory producing a fresh Func program per call.
func (f Func) Factory() Factory {
	return func() (ControlProgram, error) { return f.Program(), nil }
}

type funcProgram struct {
	f   Func
	env Env
}

func (p *funcProgram) Bind(env Env) error {
	p.env = env
	return p.call(p.f.OnBind)
}

func (p *funcProgram) AutonomousSetup() error { return p.call(p.f.AutonomousSetup) }
func (p *funcProgram) AutonomousMain() error  { return p.call(p.f.AutonomousMain) }
func (p *funcProgram) TeleopSetup() error     { return p.call(p.f.TeleopSetup) }
func (p *funcProgram) TeleopMain() error      { return p.call(p.f.TeleopMain) }

func (p *funcProgram) call(e Entry) error {
	if e == nil {
		return nil
	}
	return e(p.env)
}

// Registry maps program names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a unique name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("program name must not be empty")
	}
	if f == nil {
		return fmt.Errorf("program %q has no factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("program %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Routines returns the setup and main routines of p for one mode. Setup
// binds p to env before calling its setup entry, so a failing or hanging
// Bind is reported like any other setup failure.
func Routines(p ControlProgram, env Env, autonomous bool) (setup, main func() error) {
	if autonomous {
		setup, main = p.AutonomousSetup, p.AutonomousMain
	} else {
		setup, main = p.TeleopSetup, p.TeleopMain
	}
	entry := setup
	setup = func() error {
		if err := p.Bind(env); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
		return entry()
	}
	return setup, main
}
