package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/pimulator/kinematics"
)

// loop runs ticks until stopped, faulted, cancelled or out of time.
func (rt *Runtime) loop(ctx context.Context, main Routine) {
	defer close(rt.done)
	defer rt.sched.Close()

	period := rt.cfg.TickRate
	timer := time.NewTimer(period)
	defer timer.Stop()

	next := time.Now()
	for tick := uint64(1); ; tick++ {
		start := time.Now()
		tc := TickContext{
			Tick:     tick,
			SimTime:  time.Duration(tick-1) * period,
			Start:    start,
			Deadline: start.Add(rt.cfg.WatchdogTimeout),
		}

		if f := rt.guard(PhaseTick, tick, func() error { return rt.processTick(tc, main) }); f != nil {
			rt.fail(ctx, f)
			return
		}

		snap := rt.snapshot(tick)
		elapsed := time.Since(start)
		overrun := elapsed > period

		rt.mu.Lock()
		rt.tickNum = tick
		if overrun {
			rt.overruns++
		}
		rt.mu.Unlock()

		rt.publish(snap)
		if overrun {
			rt.logger.Debug("tick overran its period", zap.Uint64("tick", tick), zap.Duration("elapsed", elapsed))
		}
		if rt.observer != nil {
			rt.observer.ObserveTick(tc, elapsed, overrun, rt.sched.Running())
		}

		if rt.cfg.MaxDuration > 0 && snap.SimTime >= rt.cfg.MaxDuration {
			rt.finish(ctx, "duration elapsed")
			return
		}

		// Pace against the schedule but never try to catch up after an overrun.
		next = next.Add(period)
		wait := time.Until(next)
		if wait < 0 {
			next = time.Now()
			wait = 0
		}
		timer.Reset(wait)
		select {
		case <-rt.stopCh:
			rt.finish(ctx, "stop requested")
			return
		case <-ctx.Done():
			rt.finish(ctx, "context done")
			return
		case <-timer.C:
		}
	}
}

// processTick resumes due actions, runs main and advances the robot by one period.
func (rt *Runtime) processTick(tc TickContext, main Routine) error {
	if err := rt.sched.Step(tc.SimTime); err != nil {
		return err
	}
	if err := main(); err != nil {
		return err
	}
	rt.state = kinematics.Advance(rt.cfg.Kinematics, rt.state, rt.cfg.TickRate.Seconds())
	return nil
}
