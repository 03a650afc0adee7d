package scheduler

import (
	"fmt"
	"time"
)

// Context is handed to a running action.
type Context struct {
	s *Scheduler
	t *task
}

// Name returns the running action's name.
func (c *Context) Name() string { return c.t.action.name }

// Now returns the simulated time of the current resumption.
func (c *Context) Now() time.Duration { return c.s.now }

// Scheduler returns the scheduler running this action, so actions can launch others.
func (c *Context) Scheduler() *Scheduler { return c.s }

// Sleep suspends the action for at least seconds of simulated time.
func (c *Context) Sleep(seconds float64) error {
	if c.s.current != c.t {
		return fmt.Errorf("%w: %s slept outside its own resumption", ErrConfiguration, c.t.action)
	}
	return c.s.suspend(c.t, seconds)
}
