package realtime

import (
	"fmt"
	"time"
)

// guard runs body on its own goroutine and waits for it for at most the
// watchdog timeout. On expiry the interrupter is asked to unwind the body
// and a timeout fault is returned without waiting any longer; a body that
// ignores the interrupt is abandoned.
func (rt *Runtime) guard(phase Phase, tick uint64, body func() error) *Fault {
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic: %v", r)
			}
		}()
		result <- body()
	}()

	timer := time.NewTimer(rt.cfg.WatchdogTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err == nil {
			return nil
		}
		return classify(phase, tick, err)
	case <-timer.C:
		if rt.interrupter != nil {
			rt.interrupter.Interrupt(ErrTimeoutFault)
		}
		return &Fault{
			Kind:  FaultTimeout,
			Phase: phase,
			Tick:  tick,
			Cause: fmt.Errorf("%s exceeded the %s watchdog", phase, rt.cfg.WatchdogTimeout),
		}
	}
}
