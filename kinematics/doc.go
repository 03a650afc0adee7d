// Package kinematics implements the differential-drive model used by the simulator.
//
// The engine is a pure function of the commanded wheel velocities, the current
// pose and the elapsed time:
//
//	next := kinematics.Advance(kinematics.DefaultParams(), state, 0.05)
//
// # Sign Convention
//
// The right motor is mounted mirrored, so its surface velocity is negated
// (Params.RightSign = -1). With that convention:
//   - equal duty cycles of the same sign spin the robot in place
//   - equal duty cycles of opposite sign drive it straight along its heading
//
// # Determinism
//
// Advance has no side effects and never consults a clock. Identical inputs
// always produce identical outputs, which keeps runs reproducible and lets
// tests compare poses exactly.
//
// # Field
//
// The field is a square with side Params.FieldMax. X and Y are clamped into
// [0, FieldMax] after every update; heading is kept in [0, 360).
package kinematics
