// Package pimulator simulates a two-wheeled differential-drive robot driven
// by a control program.
//
// A Simulation owns at most one run at a time. Each Start creates a fresh
// program instance, gamepad input, runtime and state buffer; GetState reads
// the most recent robot snapshot from any goroutine.
//
//	sim := pimulator.New(program.TankDrive().Factory())
//	if _, err := sim.Start(ctx, pimulator.Teleop); err != nil {
//		return err
//	}
//	snap, err := sim.GetState(pimulator.DefaultReadTimeout)
package pimulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/internal/extensibility"
	"github.com/comalice/pimulator/internal/production"
	"github.com/comalice/pimulator/program"
	"github.com/comalice/pimulator/realtime"
)

var (
	// ErrNotStarted is returned when no run has been started.
	ErrNotStarted = errors.New("simulation not started")
	// ErrStalled is returned by GetState when a running simulation produced
	// no new snapshot within the timeout.
	ErrStalled = errors.New("simulation stalled")
	// ErrStarting is returned by GetState while the run's setup is still
	// executing and nothing has been published yet.
	ErrStarting = errors.New("simulation starting")
	// ErrOverridesUnsupported is returned when the run input cannot be
	// overridden.
	ErrOverridesUnsupported = errors.New("input does not support overrides")
	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("unknown mode")
)

// Mode selects the entry points of a control program.
type Mode int

const (
	Teleop Mode = iota
	Autonomous
)

func (m Mode) String() string {
	switch m {
	case Teleop:
		return "teleop"
	case Autonomous:
		return "autonomous"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "teleop" or "autonomous".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "teleop":
		return Teleop, nil
	case "autonomous":
		return Autonomous, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type overrider interface {
	Override(id string, value float64) error
	ClearOverride(ids ...string)
}

// Simulation is the handle through which hosts start, stop and observe runs.
// It is safe for concurrent use.
type Simulation struct {
	factory program.Factory

	cfg        realtime.Config
	autonomous time.Duration
	capacity   int
	logger     *zap.Logger
	observer   realtime.Observer
	publishers []realtime.Publisher
	sinks      []SinkFactory
	onEvict    func()
	input      InputFactory

	mu        sync.Mutex
	rt        *realtime.Runtime
	buf       *production.StateBuffer
	src       device.InputSource
	info      RunInfo
	runDone   chan struct{}
	overrides map[string]float64
}

// New creates a simulation for the programs produced by factory.
func New(factory program.Factory, opts ...Option) *Simulation {
	s := &Simulation{
		factory:   factory,
		overrides: make(map[string]float64),
	}
	defaults(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a run in mode. It returns false when a run is already in
// progress. A run whose setup fails returns true together with the fault;
// the run is then Faulted. ctx bounds the whole run.
func (s *Simulation) Start(ctx context.Context, mode Mode) (bool, error) {
	s.mu.Lock()
	if s.active() {
		s.mu.Unlock()
		return false, nil
	}
	rt, setup, main, sinks, err := s.prepare(mode)
	info := s.info
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	runDone := make(chan struct{})
	s.runDone = runDone
	s.mu.Unlock()

	go s.watch(rt, info, sinks, runDone)
	if err := rt.Start(ctx, setup, main); err != nil {
		return true, err
	}
	return true, nil
}

// prepare builds a run and makes it current. Called with s.mu held.
func (s *Simulation) prepare(mode Mode) (*realtime.Runtime, realtime.Routine, realtime.Routine, []RunSink, error) {
	if s.factory == nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: no program", realtime.ErrProtocolFault)
	}
	prog, err := s.factory()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create program: %w", err)
	}
	src, err := s.input()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create input: %w", err)
	}
	if o, ok := src.(overrider); ok {
		for id, v := range s.overrides {
			if err := o.Override(id, v); err != nil {
				return nil, nil, nil, nil, err
			}
		}
	}

	info := RunInfo{ID: uuid.NewString(), Mode: mode, Started: time.Now()}
	base := s.logger.With(zap.Stringer("mode", mode))
	logger := base.With(zap.String("run_id", info.ID))

	var sinks []RunSink
	for _, f := range s.sinks {
		sink, err := f(info)
		if err != nil {
			closeSinks(sinks, info, err, logger)
			return nil, nil, nil, nil, fmt.Errorf("create sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	var bufOpts []production.BufferOption
	if s.onEvict != nil {
		bufOpts = append(bufOpts, production.WithEvictHook(s.onEvict))
	}
	buf := production.NewStateBuffer(s.capacity, bufOpts...)

	wrapped := extensibility.NewLoggingProgram(prog, logger)
	opts := []realtime.Option{
		realtime.WithRunID(info.ID),
		realtime.WithLogger(base),
		realtime.WithInput(src),
		realtime.WithInterrupter(wrapped),
		realtime.WithPublisher(buf),
	}
	for _, p := range s.publishers {
		opts = append(opts, realtime.WithPublisher(p))
	}
	for _, sink := range sinks {
		opts = append(opts, realtime.WithPublisher(sink))
	}
	if s.observer != nil {
		opts = append(opts, realtime.WithObserver(s.observer))
	}

	cfg := s.cfg
	cfg.MaxDuration = 0
	if mode == Autonomous {
		cfg.MaxDuration = s.autonomous
	}
	rt := realtime.NewRuntime(cfg, opts...)
	env := program.Env{
		Robot:     rt.Robot(),
		Gamepad:   rt.Gamepad(),
		Scheduler: rt.Scheduler(),
		Logger:    logger,
	}
	setup, main := program.Routines(wrapped, env, mode == Autonomous)

	s.rt, s.buf, s.src, s.info = rt, buf, src, info
	return rt, setup, main, sinks, nil
}

// active reports whether the current run is starting or running.
func (s *Simulation) active() bool {
	if s.rt == nil {
		return false
	}
	st := s.rt.Status()
	return st == realtime.Idle || st == realtime.Running
}

func (s *Simulation) watch(rt *realtime.Runtime, info RunInfo, sinks []RunSink, runDone chan struct{}) {
	defer close(runDone)
	<-rt.Done()
	closeSinks(sinks, info, rt.Err(), s.logger)
}

func closeSinks(sinks []RunSink, info RunInfo, runErr error, logger *zap.Logger) {
	for _, sink := range sinks {
		if err := sink.Close(info, runErr); err != nil {
			logger.Warn("closing run sink", zap.String("run_id", info.ID), zap.Error(err))
		}
	}
}

// Stop ends the current run and waits for it to finish. It returns false
// when no run is in progress.
func (s *Simulation) Stop() (bool, error) {
	s.mu.Lock()
	rt, runDone := s.rt, s.runDone
	s.mu.Unlock()
	if rt == nil || rt.Status() != realtime.Running {
		return false, nil
	}
	if err := rt.Stop(); err != nil {
		if errors.Is(err, realtime.ErrNotRunning) {
			return false, nil
		}
		return false, err
	}
	<-runDone
	return true, nil
}

// Wait blocks until the current run has ended and returns its fault, if any.
func (s *Simulation) Wait(ctx context.Context) error {
	s.mu.Lock()
	rt, runDone := s.rt, s.runDone
	s.mu.Unlock()
	if rt == nil {
		return ErrNotStarted
	}
	select {
	case <-runDone:
		return rt.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetState returns the newest snapshot of the current run, waiting up to
// timeout for one to be published. While the run is going, a timeout yields
// ErrStalled together with the last snapshot. While setup is still running
// it returns ErrStarting. Once the run has ended the last snapshot is
// returned without error. A run that faulted before publishing anything
// returns its fault.
func (s *Simulation) GetState(timeout time.Duration) (realtime.Snapshot, error) {
	s.mu.Lock()
	rt, buf := s.rt, s.buf
	s.mu.Unlock()
	if rt == nil {
		return realtime.Snapshot{}, ErrNotStarted
	}

	snap, err := buf.Read(timeout)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, production.ErrNoData):
		if ferr := rt.Err(); ferr != nil {
			return snap, ferr
		}
		if rt.Status() == realtime.Idle {
			return snap, ErrStarting
		}
		return snap, ErrStalled
	case errors.Is(err, production.ErrTimeout):
		if rt.Status() == realtime.Running {
			return snap, ErrStalled
		}
		return snap, nil
	default:
		return snap, err
	}
}

// Status returns the lifecycle state of the current run, Idle before the
// first Start.
func (s *Simulation) Status() realtime.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt == nil {
		return realtime.Idle
	}
	return s.rt.Status()
}

// Fault returns the fault that ended the current run, or nil.
func (s *Simulation) Fault() *realtime.Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt == nil {
		return nil
	}
	return s.rt.Fault()
}

// Run describes the current run. ok is false before the first Start.
func (s *Simulation) Run() (info RunInfo, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.rt != nil
}

// Override pins a gamepad axis to value for the current run and every later
// one, until cleared.
func (s *Simulation) Override(id string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.src
	if src == nil {
		var err error
		if src, err = s.input(); err != nil {
			return err
		}
	}
	o, ok := src.(overrider)
	if !ok {
		return ErrOverridesUnsupported
	}
	if err := o.Override(id, value); err != nil {
		return err
	}
	s.overrides[id] = value
	return nil
}

// ClearOverrides removes the overrides for ids, or all of them when ids is
// empty.
func (s *Simulation) ClearOverrides(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		for id := range s.overrides {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.overrides, id)
	}
	if o, ok := s.src.(overrider); ok {
		o.ClearOverride(ids...)
	}
}

// Overrides returns a copy of the active overrides.
func (s *Simulation) Overrides() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.overrides))
	for id, v := range s.overrides {
		out[id] = v
	}
	return out
}
