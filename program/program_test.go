package program_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/kinematics"
	"github.com/comalice/pimulator/program"
	"github.com/comalice/pimulator/scheduler"
	"github.com/comalice/pimulator/testutil"
)

type bench struct {
	wheels kinematics.WheelState
	input  *testutil.StaticInput
	sched  *scheduler.Scheduler
	env    program.Env
}

func newBench(t *testing.T, axes map[string]float64) *bench {
	b := &bench{input: testutil.NewStaticInput(axes), sched: scheduler.New()}
	t.Cleanup(b.sched.Close)
	b.env = program.Env{
		Robot:     device.NewRobot(&b.wheels, 9),
		Gamepad:   device.NewGamepad(b.input),
		Scheduler: b.sched,
		Logger:    zaptest.NewLogger(t),
	}
	return b
}

func (b *bench) duty(t *testing.T) (float64, float64) {
	t.Helper()
	l, err := b.env.Robot.GetValue(device.LeftMotor)
	require.NoError(t, err)
	r, err := b.env.Robot.GetValue(device.RightMotor)
	require.NoError(t, err)
	return l, r
}

func neutral() map[string]float64 {
	return map[string]float64{
		device.JoystickLeftX: 0, device.JoystickLeftY: 0,
		device.JoystickRightX: 0, device.JoystickRightY: 0,
	}
}

func TestFunc_EntriesReceiveEnv(t *testing.T) {
	b := newBench(t, neutral())
	var seen []string
	record := func(name string) program.Entry {
		return func(env program.Env) error {
			assert.Same(t, b.env.Robot, env.Robot)
			seen = append(seen, name)
			return nil
		}
	}
	p := program.Func{
		OnBind:          record("bind"),
		AutonomousSetup: record("auto_setup"),
		TeleopMain:      record("teleop_main"),
	}.Program()

	require.NoError(t, p.Bind(b.env))
	require.NoError(t, p.AutonomousSetup())
	require.NoError(t, p.AutonomousMain())
	require.NoError(t, p.TeleopSetup())
	require.NoError(t, p.TeleopMain())

	assert.Equal(t, []string{"bind", "auto_setup", "teleop_main"}, seen)
}

func TestFunc_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	p := program.Func{TeleopMain: func(program.Env) error { return boom }}.Program()
	require.NoError(t, p.Bind(program.Env{}))
	assert.ErrorIs(t, p.TeleopMain(), boom)
}

func TestRegistry(t *testing.T) {
	r := program.NewRegistry()
	f := program.Func{}.Factory()

	require.NoError(t, r.Register("b", f))
	require.NoError(t, r.Register("a", f))
	assert.Error(t, r.Register("a", f), "duplicate")
	assert.Error(t, r.Register("", f), "empty name")
	assert.Error(t, r.Register("c", nil), "nil factory")

	got, err := r.Lookup("a")
	require.NoError(t, err)
	p, err := got()
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, program.ErrUnknownProgram)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestBuiltins(t *testing.T) {
	require.NotPanics(t, func() { program.Builtins() })
	assert.Equal(t,
		[]string{program.ArcadeDriveName, program.DriveForwardName, program.TankDriveName},
		program.Builtins().Names())
}

func TestTankDrive(t *testing.T) {
	axes := neutral()
	axes[device.JoystickLeftY] = 0.5
	axes[device.JoystickRightY] = 0.25
	b := newBench(t, axes)
	p := program.TankDrive().Program()
	require.NoError(t, p.Bind(b.env))

	require.NoError(t, p.TeleopMain())

	l, r := b.duty(t)
	assert.Equal(t, 0.5, l)
	assert.Equal(t, -0.25, r)
}

func TestTankDrive_MissingAxis(t *testing.T) {
	b := newBench(t, map[string]float64{})
	p := program.TankDrive().Program()
	require.NoError(t, p.Bind(b.env))

	assert.ErrorIs(t, p.TeleopMain(), device.ErrUnknownDevice)
}

func TestArcadeDrive(t *testing.T) {
	axes := neutral()
	axes[device.JoystickLeftY] = -1 // pushed forward
	b := newBench(t, axes)
	p := program.ArcadeDrive().Program()
	require.NoError(t, p.Bind(b.env))

	require.NoError(t, p.TeleopMain())

	l, r := b.duty(t)
	assert.Equal(t, -1.0, l)
	assert.Equal(t, 1.0, r)
}

func TestDriveForward(t *testing.T) {
	axes := neutral()
	axes[device.JoystickLeftY] = 0.2
	axes[device.JoystickRightY] = 0.2
	b := newBench(t, axes)
	p, err := program.DriveForward()
	require.NoError(t, err)
	require.NoError(t, p.Bind(b.env))

	require.NoError(t, p.TeleopSetup())
	require.NoError(t, b.sched.Step(0))
	l, r := b.duty(t)
	assert.InDelta(t, 0.7, l, 1e-12)
	assert.InDelta(t, -0.7, r, 1e-12)

	// main leaves the motors alone while the action runs
	require.NoError(t, p.TeleopMain())
	l, _ = b.duty(t)
	assert.InDelta(t, 0.7, l, 1e-12)

	require.NoError(t, b.sched.Step(3*time.Second))
	l, r = b.duty(t)
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.0, r)

	require.NoError(t, b.sched.Step(6*time.Second))
	assert.Equal(t, 0, b.sched.Running())

	require.NoError(t, p.TeleopMain())
	l, r = b.duty(t)
	assert.InDelta(t, 0.2, l, 1e-12)
	assert.InDelta(t, -0.2, r, 1e-12)
}

func TestRoutines(t *testing.T) {
	b := newBench(t, neutral())
	var calls []string
	record := func(name string) program.Entry {
		return func(program.Env) error {
			calls = append(calls, name)
			return nil
		}
	}
	f := program.Func{
		OnBind:          record("bind"),
		AutonomousSetup: record("auto_setup"),
		AutonomousMain:  record("auto_main"),
		TeleopSetup:     record("teleop_setup"),
		TeleopMain:      record("teleop_main"),
	}

	setup, main := program.Routines(f.Program(), b.env, true)
	require.NoError(t, setup())
	require.NoError(t, main())
	assert.Equal(t, []string{"bind", "auto_setup", "auto_main"}, calls)

	calls = nil
	setup, main = program.Routines(f.Program(), b.env, false)
	require.NoError(t, setup())
	require.NoError(t, main())
	assert.Equal(t, []string{"bind", "teleop_setup", "teleop_main"}, calls)
}

func TestRoutines_BindFailureSkipsSetup(t *testing.T) {
	b := newBench(t, neutral())
	boom := errors.New("boom")
	setupCalled := false
	f := program.Func{
		OnBind:      func(program.Env) error { return boom },
		TeleopSetup: func(program.Env) error { setupCalled = true; return nil },
	}

	setup, _ := program.Routines(f.Program(), b.env, false)
	err := setup()
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "bind")
	assert.False(t, setupCalled)
}
