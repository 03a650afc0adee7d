package scheduler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	// ErrConfiguration reports misuse of the action API.
	ErrConfiguration = errors.New("configuration error")
	// ErrClosed is returned once the scheduler has been closed.
	ErrClosed = errors.New("scheduler closed")
)

// ActionFunc is the body of an action.
type ActionFunc func(ctx *Context, args ...any) error

// Action is a handle returned by Define.
type Action struct {
	name  string
	fn    ActionFunc
	owner *Scheduler
}

// Name returns the name the action was defined with.
func (a *Action) Name() string { return a.name }

func (a *Action) String() string { return "action " + a.name }

// ActionError wraps an error returned (or a panic raised) by an action.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string { return fmt.Sprintf("action %q: %v", e.Action, e.Err) }

func (e *ActionError) Unwrap() error { return e.Err }

type yieldMsg struct {
	sleep time.Duration
	done  bool
	err   error
}

type task struct {
	action *Action
	args   []any
	wake   time.Duration
	resume chan struct{}
	yield  chan yieldMsg
}

// Scheduler owns the registered actions and the set of running ones.
// Apart from Close, its methods must be called from the goroutine driving
// Step or from inside a running action.
type Scheduler struct {
	actions map[string]*Action
	tasks   []*task // running, in launch order
	running map[*Action]*task
	now     time.Duration
	current *task

	quit      chan struct{}
	closeOnce sync.Once
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		actions: make(map[string]*Action),
		running: make(map[*Action]*task),
		quit:    make(chan struct{}),
	}
}

// Define registers an action under a unique name.
func (s *Scheduler) Define(name string, fn ActionFunc) (*Action, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: action name must not be empty", ErrConfiguration)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: action %q has no body", ErrConfiguration, name)
	}
	if _, exists := s.actions[name]; exists {
		return nil, fmt.Errorf("%w: action %q already defined", ErrConfiguration, name)
	}
	a := &Action{name: name, fn: fn, owner: s}
	s.actions[name] = a
	return a, nil
}

// Lookup returns a defined action by name.
func (s *Scheduler) Lookup(name string) (*Action, bool) {
	a, ok := s.actions[name]
	return a, ok
}

// Run launches a. It is a no-op if a is already running. The action starts at
// the next Step.
func (s *Scheduler) Run(a *Action, args ...any) error {
	if err := s.check(a); err != nil {
		return err
	}
	if s.closed() {
		return ErrClosed
	}
	if _, ok := s.running[a]; ok {
		return nil
	}
	t := &task{
		action: a,
		args:   args,
		wake:   s.now,
		resume: make(chan struct{}),
		yield:  make(chan yieldMsg),
	}
	s.running[a] = t
	s.tasks = append(s.tasks, t)
	go s.runTask(t)
	return nil
}

// IsRunning reports whether a is in the running set.
func (s *Scheduler) IsRunning(a *Action) (bool, error) {
	if err := s.check(a); err != nil {
		return false, err
	}
	_, ok := s.running[a]
	return ok, nil
}

// Running returns the number of running actions.
func (s *Scheduler) Running() int { return len(s.running) }

// Sleep suspends the action currently being resumed. Calling it from anywhere
// else is a configuration error.
func (s *Scheduler) Sleep(seconds float64) error {
	t := s.current
	if t == nil {
		return fmt.Errorf("%w: sleep must be called inside an action started with run", ErrConfiguration)
	}
	return s.suspend(t, seconds)
}

// Step resumes every action whose wake time is at or before now, in launch
// order, and returns after each has suspended again or finished. The first
// action failure stops the step and is returned as an *ActionError.
func (s *Scheduler) Step(now time.Duration) error {
	if s.closed() {
		return ErrClosed
	}
	s.now = now

	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.wake <= now {
			due = append(due, t)
		}
	}

	for _, t := range due {
		msg, err := s.resume(t)
		if err != nil {
			return err
		}
		if !msg.done {
			t.wake = wakeAt(now, msg.sleep)
			continue
		}
		s.remove(t)
		if msg.err != nil {
			return &ActionError{Action: t.action.name, Err: msg.err}
		}
	}
	return nil
}

// Close cancels every suspended action: their Sleep calls return ErrClosed.
// It is safe to call from any goroutine, more than once.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

func (s *Scheduler) check(a *Action) error {
	if a == nil {
		return fmt.Errorf("%w: not an action", ErrConfiguration)
	}
	if a.owner != s {
		return fmt.Errorf("%w: %s is not registered with this scheduler", ErrConfiguration, a.name)
	}
	return nil
}

func (s *Scheduler) closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Scheduler) resume(t *task) (yieldMsg, error) {
	s.current = t
	defer func() { s.current = nil }()

	select {
	case t.resume <- struct{}{}:
	case <-s.quit:
		return yieldMsg{}, ErrClosed
	}
	select {
	case msg := <-t.yield:
		return msg, nil
	case <-s.quit:
		return yieldMsg{}, ErrClosed
	}
}

func (s *Scheduler) suspend(t *task, seconds float64) error {
	select {
	case t.yield <- yieldMsg{sleep: toDuration(seconds)}:
	case <-s.quit:
		return ErrClosed
	}
	select {
	case <-t.resume:
		return nil
	case <-s.quit:
		return ErrClosed
	}
}

func (s *Scheduler) remove(t *task) {
	delete(s.running, t.action)
	for i, other := range s.tasks {
		if other == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) runTask(t *task) {
	select {
	case <-t.resume:
	case <-s.quit:
		return
	}
	err := s.invoke(t)
	select {
	case t.yield <- yieldMsg{done: true, err: err}:
	case <-s.quit:
	}
}

func (s *Scheduler) invoke(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.action.fn(&Context{s: s, t: t}, t.args...)
}

// wakeAt returns now+sleep, saturating instead of wrapping past the largest
// representable time.
func wakeAt(now, sleep time.Duration) time.Duration {
	if sleep > math.MaxInt64-now {
		return time.Duration(math.MaxInt64)
	}
	return now + sleep
}

func toDuration(seconds float64) time.Duration {
	if !(seconds > 0) {
		return 0
	}
	d := seconds * float64(time.Second)
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
