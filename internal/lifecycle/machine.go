// Package lifecycle is a small flat state machine tracking a simulation run
// through Idle, Running, Stopped and Faulted.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type StateID int
type EventID int

const (
	Idle StateID = iota
	Running
	Stopped
	Faulted
)

func (s StateID) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	EventStart EventID = iota
	EventStop
	EventFault
)

func (e EventID) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventFault:
		return "fault"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

var (
	// ErrInvalidTransition is returned when the current state has no
	// transition for the event.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotStarted        = errors.New("machine not started")
)

type Action func(ctx context.Context, evt EventID, from StateID, to StateID) error

type State struct {
	ID          StateID
	Transitions []*Transition
	EntryAction Action
	ExitAction  Action
	Final       bool
}

type Transition struct {
	Event  EventID
	Target StateID
	Action Action
}

// On adds a transition to target taken on evt.
func (s *State) On(evt EventID, target StateID) *Transition {
	t := &Transition{Event: evt, Target: target}
	s.Transitions = append(s.Transitions, t)
	return t
}

func (s *State) OnEntry(action Action) { s.EntryAction = action }

func (s *State) OnExit(action Action) { s.ExitAction = action }

// Machine holds a set of states and the current one. It is safe for
// concurrent use; actions run with the machine lock held and must not call
// back into it.
type Machine struct {
	mu      sync.Mutex
	states  map[StateID]*State
	initial StateID
	current *State
}

// NewMachine builds a machine from states. The first state is initial.
func NewMachine(states ...*State) (*Machine, error) {
	if len(states) == 0 {
		return nil, errors.New("no states provided")
	}
	m := &Machine{states: make(map[StateID]*State, len(states))}
	for _, s := range states {
		if s == nil {
			return nil, errors.New("nil state")
		}
		if _, exists := m.states[s.ID]; exists {
			return nil, fmt.Errorf("duplicate state ID %s", s.ID)
		}
		m.states[s.ID] = s
	}
	for _, s := range states {
		for _, t := range s.Transitions {
			if _, ok := m.states[t.Target]; !ok {
				return nil, fmt.Errorf("state %s: transition on %s targets unknown state %s", s.ID, t.Event, t.Target)
			}
		}
	}
	m.initial = states[0].ID
	return m, nil
}

// New returns the run lifecycle: Idle -start-> Running, Idle -fault-> Faulted,
// Running -stop-> Stopped, Running -fault-> Faulted. Stopped and Faulted are final.
func New() *Machine {
	idle := &State{ID: Idle}
	idle.On(EventStart, Running)
	idle.On(EventFault, Faulted)

	running := &State{ID: Running}
	running.On(EventStop, Stopped)
	running.On(EventFault, Faulted)

	m, err := NewMachine(idle, running, &State{ID: Stopped, Final: true}, &State{ID: Faulted, Final: true})
	if err != nil {
		panic(err)
	}
	return m
}

// State returns the registered state with id, so callers can attach actions
// before Start.
func (m *Machine) State(id StateID) (*State, bool) {
	s, ok := m.states[id]
	return s, ok
}

// Start enters the initial state.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return errors.New("machine already started")
	}
	s := m.states[m.initial]
	if s.EntryAction != nil {
		if err := s.EntryAction(ctx, -1, s.ID, s.ID); err != nil {
			return err
		}
	}
	m.current = s
	return nil
}

// Send takes the first transition of the current state matching evt.
// Exit, transition and entry actions run in that order; if any fails the
// machine stays in the source state.
func (m *Machine) Send(ctx context.Context, evt EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNotStarted
	}

	from := m.current
	var t *Transition
	for _, candidate := range from.Transitions {
		if candidate.Event == evt {
			t = candidate
			break
		}
	}
	if t == nil {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, evt, from.ID)
	}
	to := m.states[t.Target]

	if from.ExitAction != nil {
		if err := from.ExitAction(ctx, evt, from.ID, to.ID); err != nil {
			return err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, evt, from.ID, to.ID); err != nil {
			return err
		}
	}
	if to.EntryAction != nil {
		if err := to.EntryAction(ctx, evt, from.ID, to.ID); err != nil {
			return err
		}
	}
	m.current = to
	return nil
}

// Current returns the current state, or Idle before Start.
func (m *Machine) Current() StateID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return m.initial
	}
	return m.current.ID
}

// Done reports whether the machine is in a final state.
func (m *Machine) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.Final
}
