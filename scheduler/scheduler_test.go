package scheduler

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 50 * time.Millisecond

func TestDefine(t *testing.T) {
	s := New()
	noop := func(*Context, ...any) error { return nil }

	a, err := s.Define("drive", noop)
	require.NoError(t, err)
	assert.Equal(t, "drive", a.Name())

	got, ok := s.Lookup("drive")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, err = s.Define("drive", noop)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = s.Define("", noop)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = s.Define("lift", nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRun_UnregisteredAction(t *testing.T) {
	s := New()
	other := New()
	foreign, err := other.Define("drive", func(*Context, ...any) error { return nil })
	require.NoError(t, err)

	assert.ErrorIs(t, s.Run(nil), ErrConfiguration)
	assert.ErrorIs(t, s.Run(foreign), ErrConfiguration)

	_, err = s.IsRunning(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = s.IsRunning(foreign)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRun_NoOpWhileRunning(t *testing.T) {
	s := New()
	defer s.Close()

	starts := 0
	var log []string
	a, err := s.Define("drive", func(ctx *Context, args ...any) error {
		starts++
		log = append(log, "start")
		if err := ctx.Sleep(1.0); err != nil {
			return err
		}
		log = append(log, "finish")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(a))
	running, err := s.IsRunning(a)
	require.NoError(t, err)
	assert.True(t, running, "running as soon as Run returns")

	require.NoError(t, s.Step(0))
	assert.Equal(t, 1, starts)

	// relaunch attempt while suspended
	require.NoError(t, s.Run(a))
	require.NoError(t, s.Step(500*time.Millisecond))
	assert.Equal(t, 1, starts)
	assert.Equal(t, []string{"start"}, log)

	// original continuation still wakes on schedule
	require.NoError(t, s.Step(time.Second))
	assert.Equal(t, []string{"start", "finish"}, log)
	running, _ = s.IsRunning(a)
	assert.False(t, running)
	assert.Equal(t, 0, s.Running())

	// completion allows a relaunch
	require.NoError(t, s.Run(a))
	require.NoError(t, s.Step(time.Second+tick))
	assert.Equal(t, 2, starts)
}

func TestStep_InterleavesAtSleep(t *testing.T) {
	s := New()
	defer s.Close()

	var log []string
	mk := func(name string, pause float64) ActionFunc {
		return func(ctx *Context, args ...any) error {
			for i := 0; i < 2; i++ {
				log = append(log, name+string(rune('0'+i)))
				if err := ctx.Sleep(pause); err != nil {
					return err
				}
			}
			return nil
		}
	}
	a, _ := s.Define("a", mk("a", 0.1))
	b, _ := s.Define("b", mk("b", 0.05))
	require.NoError(t, s.Run(a))
	require.NoError(t, s.Run(b))

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Step(time.Duration(i)*tick))
	}

	assert.Equal(t, []string{"a0", "b0", "b1", "a1"}, log)
	assert.Equal(t, 0, s.Running())
}

func TestSleep_VeryLongSleepNeverWakesEarly(t *testing.T) {
	s := New()
	defer s.Close()

	resumed := 0
	a, err := s.Define("park", func(ctx *Context, _ ...any) error {
		resumed++
		if err := ctx.Sleep(1e10); err != nil {
			return err
		}
		resumed++
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(a))

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Step(time.Duration(i)*tick))
	}
	assert.Equal(t, 1, resumed)
	running, err := s.IsRunning(a)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestWakeAtSaturates(t *testing.T) {
	assert.Equal(t, 3*tick, wakeAt(tick, 2*tick))
	assert.Equal(t, time.Duration(math.MaxInt64), wakeAt(tick, toDuration(math.Inf(1))))
	assert.Equal(t, time.Duration(math.MaxInt64), wakeAt(time.Duration(math.MaxInt64), 1))
}

func TestSleep_ZeroYieldsUntilNextStep(t *testing.T) {
	s := New()
	defer s.Close()

	steps := 0
	a, _ := s.Define("spin", func(ctx *Context, args ...any) error {
		for i := 0; i < 3; i++ {
			steps++
			if err := ctx.Sleep(0); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, s.Run(a))

	require.NoError(t, s.Step(0))
	assert.Equal(t, 1, steps)
	require.NoError(t, s.Step(tick))
	assert.Equal(t, 2, steps)
}

func TestRun_PassesArgs(t *testing.T) {
	s := New()
	defer s.Close()

	var got []any
	a, _ := s.Define("args", func(ctx *Context, args ...any) error {
		got = args
		return nil
	})
	require.NoError(t, s.Run(a, 0.7, "left"))
	require.NoError(t, s.Step(0))

	assert.Equal(t, []any{0.7, "left"}, got)
}

func TestRun_FromActionStartsNextStep(t *testing.T) {
	s := New()
	defer s.Close()

	var log []string
	child, _ := s.Define("child", func(ctx *Context, args ...any) error {
		log = append(log, "child")
		return nil
	})
	parent, _ := s.Define("parent", func(ctx *Context, args ...any) error {
		log = append(log, "parent")
		return ctx.Scheduler().Run(child)
	})
	require.NoError(t, s.Run(parent))

	require.NoError(t, s.Step(0))
	assert.Equal(t, []string{"parent"}, log)
	require.NoError(t, s.Step(tick))
	assert.Equal(t, []string{"parent", "child"}, log)
}

func TestStep_ActionError(t *testing.T) {
	s := New()
	defer s.Close()

	boom := errors.New("boom")
	a, _ := s.Define("fail", func(ctx *Context, args ...any) error { return boom })
	require.NoError(t, s.Run(a))

	err := s.Step(0)

	var aerr *ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "fail", aerr.Action)
	assert.ErrorIs(t, err, boom)
	running, _ := s.IsRunning(a)
	assert.False(t, running)
}

func TestStep_ActionPanic(t *testing.T) {
	s := New()
	defer s.Close()

	a, _ := s.Define("panic", func(ctx *Context, args ...any) error { panic("stuck motor") })
	require.NoError(t, s.Run(a))

	err := s.Step(0)

	var aerr *ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, err.Error(), "stuck motor")
}

func TestSleep_OutsideAction(t *testing.T) {
	s := New()
	defer s.Close()

	assert.ErrorIs(t, s.Sleep(1), ErrConfiguration)
}

func TestSleep_SchedulerLevelInsideAction(t *testing.T) {
	s := New()
	defer s.Close()

	resumed := false
	a, _ := s.Define("js-style", func(ctx *Context, args ...any) error {
		if err := s.Sleep(0.1); err != nil {
			return err
		}
		resumed = true
		return nil
	})
	require.NoError(t, s.Run(a))

	require.NoError(t, s.Step(0))
	require.NoError(t, s.Step(tick))
	assert.False(t, resumed)
	require.NoError(t, s.Step(2*tick))
	assert.True(t, resumed)
}

func TestClose_CancelsSuspendedActions(t *testing.T) {
	s := New()

	result := make(chan error, 1)
	a, _ := s.Define("long", func(ctx *Context, args ...any) error {
		err := ctx.Sleep(60)
		result <- err
		return err
	})
	require.NoError(t, s.Run(a))
	require.NoError(t, s.Step(0))

	s.Close()
	s.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("suspended action was not released by Close")
	}
	assert.ErrorIs(t, s.Step(tick), ErrClosed)
	assert.ErrorIs(t, s.Run(a), ErrClosed)
}
