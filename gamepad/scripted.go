// Package gamepad provides joystick input sources used in place of real hardware.
//
// A Scripted source cycles through a fixed Script of axis readings, each held
// for its step duration. External callers can pin individual axes with
// Override, which takes precedence over the script until cleared.
package gamepad

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Axis ids. They match the ids accepted by device.Gamepad.
const (
	LeftX  = "joystick_left_x"
	LeftY  = "joystick_left_y"
	RightX = "joystick_right_x"
	RightY = "joystick_right_y"
)

var (
	ErrUnknownAxis  = errors.New("unknown axis")
	ErrInvalidValue = errors.New("axis value must be within [-1.0, 1.0]")
	ErrUnknownMode  = errors.New("unknown gamepad mode")
	ErrEmptyScript  = errors.New("script has no steps with a positive duration")
)

// Step holds axis readings for Duration.
type Step struct {
	LeftX    float64       `json:"leftX" yaml:"leftX"`
	LeftY    float64       `json:"leftY" yaml:"leftY"`
	RightX   float64       `json:"rightX" yaml:"rightX"`
	RightY   float64       `json:"rightY" yaml:"rightY"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func (s Step) axis(id string) (float64, bool) {
	switch id {
	case LeftX:
		return s.LeftX, true
	case LeftY:
		return s.LeftY, true
	case RightX:
		return s.RightX, true
	case RightY:
		return s.RightY, true
	}
	return 0, false
}

// Script is a cyclic sequence of steps.
type Script []Step

// Total returns the length of one cycle.
func (s Script) Total() time.Duration {
	var total time.Duration
	for _, st := range s {
		if st.Duration > 0 {
			total += st.Duration
		}
	}
	return total
}

// At returns the step active elapsed time after the script started.
func (s Script) At(elapsed time.Duration) Step {
	total := s.Total()
	if total <= 0 {
		return Step{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	elapsed %= total
	for _, st := range s {
		if st.Duration <= 0 {
			continue
		}
		if elapsed < st.Duration {
			return st
		}
		elapsed -= st.Duration
	}
	return s[len(s)-1]
}

// Tank, played through a tank drive, goes straight, spins, backs up, then spins back.
var Tank = Script{
	{LeftY: 1, RightY: 1, Duration: 1 * time.Second},
	{LeftY: 1, RightY: -1, Duration: 2 * time.Second},
	{LeftY: -1, RightY: -1, Duration: 3 * time.Second},
	{LeftY: -1, RightY: 1, Duration: 3 * time.Second},
}

// Arcade sweeps the left stick around a full circle.
var Arcade = Script{
	{LeftX: 0, LeftY: 1, Duration: 3 * time.Second},
	{LeftX: 1, LeftY: 0, Duration: 3 * time.Second},
	{LeftX: 0, LeftY: -1, Duration: 3 * time.Second},
	{LeftX: -1, LeftY: 0, Duration: 3 * time.Second},
}

// ScriptFor returns the built-in script for a control mode.
func ScriptFor(mode string) (Script, error) {
	switch mode {
	case "tank", "":
		return Tank, nil
	case "arcade":
		return Arcade, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Option configures a Scripted source.
type Option func(*Scripted)

// WithClock replaces the elapsed-time source. The default measures wall time
// since construction.
func WithClock(elapsed func() time.Duration) Option {
	return func(s *Scripted) {
		s.elapsed = elapsed
	}
}

// Scripted plays back a Script. Safe for concurrent use.
type Scripted struct {
	script    Script
	elapsed   func() time.Duration
	mu        sync.Mutex
	overrides map[string]float64
}

// NewScripted creates a source that starts playing script immediately.
func NewScripted(script Script, opts ...Option) (*Scripted, error) {
	if script.Total() <= 0 {
		return nil, ErrEmptyScript
	}
	start := time.Now()
	s := &Scripted{
		script:    script,
		elapsed:   func() time.Duration { return time.Since(start) },
		overrides: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Value implements device.InputSource.
func (s *Scripted) Value(id string) (float64, bool) {
	s.mu.Lock()
	v, ok := s.overrides[id]
	s.mu.Unlock()
	if ok {
		return v, true
	}
	return s.script.At(s.elapsed()).axis(id)
}

// Override pins an axis to value until ClearOverride is called.
func (s *Scripted) Override(id string, value float64) error {
	if _, ok := (Step{}).axis(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAxis, id)
	}
	if !(value >= -1 && value <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidValue, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[id] = value
	return nil
}

// ClearOverride returns an axis to the script. ClearOverride() with no ids clears all.
func (s *Scripted) ClearOverride(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		clear(s.overrides)
		return
	}
	for _, id := range ids {
		delete(s.overrides, id)
	}
}
