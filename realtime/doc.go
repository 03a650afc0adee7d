// Package realtime runs a control program against the simulated robot on a
// fixed tick.
//
// A Runtime owns the robot state for one run. Start calls the setup routine
// once, then enters the tick loop. Every tick:
//
//  1. the watchdog is fed with a fresh deadline
//  2. actions due at the current simulated time are resumed, in launch order
//  3. the main routine runs
//  4. the kinematics engine advances the pose by one tick period
//  5. a Snapshot is handed to every Publisher
//  6. the loop sleeps for what remains of the period
//
// Steps 2 to 4 run under the watchdog. If they exceed WatchdogTimeout the
// runtime faults with ErrTimeoutFault and interrupts the program. An error
// returned by setup, main or an action faults with ErrUserCodeFault, and
// misuse of the action API faults with ErrProtocolFault. Faults are terminal.
//
// Simulated time advances by exactly TickRate per tick and the kinematics
// engine integrates over TickRate, not measured wall time, so a run is
// reproducible regardless of pacing jitter.
//
// # Example Usage
//
//	rt := realtime.NewRuntime(realtime.DefaultConfig(),
//		realtime.WithPublisher(buf),
//		realtime.WithLogger(logger),
//	)
//	err := rt.Start(ctx, setup, func() error {
//		return rt.Robot().TankDrive(-0.5, -0.5)
//	})
//	...
//	rt.Stop()
//
// A Runtime is single use. Start it again and it returns ErrAlreadyStarted.
package realtime
