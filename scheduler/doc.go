// Package scheduler runs named control actions cooperatively alongside the tick loop.
//
// An action is a sequential function that may suspend itself with Sleep. Each
// running action lives on its own goroutine, but control is handed back and
// forth over unbuffered channels so that exactly one party executes at a time:
// the goroutine calling Step, or the single action it resumed. An action only
// gives up control inside Sleep or when it returns, so it can never be
// preempted mid-statement and never races the tick loop.
//
// # Time
//
// The scheduler has no clock of its own. Step receives the current simulated
// time and resumes every action whose wake time has been reached, in launch
// order. Sleep(seconds) therefore suspends for at least seconds of simulated
// time and always lasts until a later Step, even for zero.
//
// # Registration
//
// Actions are registered up front with Define. Passing anything else to Run or
// IsRunning is a configuration error reported immediately.
package scheduler
