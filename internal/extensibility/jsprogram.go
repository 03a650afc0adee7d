// Package extensibility loads control programs from outside the binary and
// decorates programs with cross-cutting behavior.
package extensibility

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/comalice/pimulator/device"
	"github.com/comalice/pimulator/program"
	"github.com/comalice/pimulator/realtime"
	"github.com/comalice/pimulator/scheduler"
)

// Entry point names a script may define.
const (
	AutonomousSetupFn = "autonomous_setup"
	AutonomousMainFn  = "autonomous_main"
	TeleopSetupFn     = "teleop_setup"
	TeleopMainFn      = "teleop_main"
)

// JSProgram is a control program written in JavaScript. The script runs in
// its own goja runtime whose global scope holds the standard built-ins plus
// Robot, Gamepad, Actions and console; eval is removed.
//
// Actions are registered with Actions.define(name, fn) and launched with
// Robot.run(handle, ...args). An action that waits must be a generator and
// yield the result of Actions.sleep:
//
//	const drive = Actions.define("drive", function* (speed) {
//		Robot.set_value("left_motor", "duty_cycle", speed);
//		yield Actions.sleep(3);
//		Robot.set_value("left_motor", "duty_cycle", 0);
//	});
//
// Suspending at a yield keeps the JavaScript stack empty between ticks, so
// several suspended actions never interleave frames.
type JSProgram struct {
	name   string
	source string
	vm     *goja.Runtime

	mu    sync.Mutex // guards bound
	bound bool

	env      program.Env
	entries  map[string]goja.Callable
	handles  map[*goja.Object]*scheduler.Action
	markers  map[*goja.Object]float64
	inAction bool
	unyield  int // Actions.sleep results not yet yielded
}

// NewJSProgram creates a program from source. The script is evaluated by Bind.
func NewJSProgram(name, source string) *JSProgram {
	return &JSProgram{
		name:    name,
		source:  source,
		vm:      goja.New(),
		entries: make(map[string]goja.Callable),
		handles: make(map[*goja.Object]*scheduler.Action),
		markers: make(map[*goja.Object]float64),
	}
}

// JSFactory returns a Factory creating a fresh runtime for every run.
func JSFactory(name, source string) program.Factory {
	return func() (program.ControlProgram, error) {
		return NewJSProgram(name, source), nil
	}
}

// LoadJSFactory reads a script file and returns its Factory.
func LoadJSFactory(path string) (program.Factory, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return JSFactory(name, string(src)), nil
}

func (p *JSProgram) Name() string { return p.name }

// Interrupt aborts the script currently executing. It is safe to call from
// any goroutine.
func (p *JSProgram) Interrupt(reason any) { p.vm.Interrupt(reason) }

// Bind installs the device globals and evaluates the script. A script
// without teleop_setup and teleop_main is rejected with
// realtime.ErrProtocolFault. A program can only be bound once.
func (p *JSProgram) Bind(env program.Env) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bound {
		return errors.New("program already bound")
	}
	p.bound = true

	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	p.env = env
	p.env.Logger = env.Logger.With(zap.String("program", p.name))

	if err := p.installGlobals(); err != nil {
		return err
	}
	if _, err := p.vm.RunScript(p.name, p.source); err != nil {
		return fmt.Errorf("evaluate %s: %w", p.name, err)
	}

	for _, name := range []string{AutonomousSetupFn, AutonomousMainFn, TeleopSetupFn, TeleopMainFn} {
		v := p.vm.Get(name)
		if v == nil || goja.IsUndefined(v) {
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return fmt.Errorf("%w: %s is not a function", realtime.ErrProtocolFault, name)
		}
		p.entries[name] = fn
	}
	for _, name := range []string{TeleopSetupFn, TeleopMainFn} {
		if _, ok := p.entries[name]; !ok {
			return fmt.Errorf("%w: %s does not define %s", realtime.ErrProtocolFault, p.name, name)
		}
	}
	return nil
}

func (p *JSProgram) AutonomousSetup() error { return p.callEntry(AutonomousSetupFn) }
func (p *JSProgram) AutonomousMain() error  { return p.callEntry(AutonomousMainFn) }
func (p *JSProgram) TeleopSetup() error     { return p.callEntry(TeleopSetupFn) }
func (p *JSProgram) TeleopMain() error      { return p.callEntry(TeleopMainFn) }

func (p *JSProgram) callEntry(name string) error {
	fn, ok := p.entries[name]
	if !ok {
		return nil
	}
	p.unyield = 0
	if _, err := fn(goja.Undefined()); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (p *JSProgram) installGlobals() error {
	vm := p.vm
	vm.GlobalObject().Delete("eval")

	robot := vm.NewObject()
	pad := vm.NewObject()
	actions := vm.NewObject()
	console := vm.NewObject()

	for _, err := range []error{
		robot.Set("set_value", p.jsSetValue),
		robot.Set("get_value", p.jsGetMotor),
		robot.Set("run", p.jsRun),
		robot.Set("is_running", p.jsIsRunning),
		pad.Set("get_value", p.jsGetAxis),
		pad.Set("ltheta", p.jsStick((*device.Gamepad).LeftStick)),
		pad.Set("rtheta", p.jsStick((*device.Gamepad).RightStick)),
		actions.Set("define", p.jsDefine),
		actions.Set("sleep", p.jsSleep),
		console.Set("log", p.jsLog(zap.InfoLevel)),
		console.Set("warn", p.jsLog(zap.WarnLevel)),
		console.Set("error", p.jsLog(zap.ErrorLevel)),
		vm.Set("Robot", robot),
		vm.Set("Gamepad", pad),
		vm.Set("Actions", actions),
		vm.Set("console", console),
	} {
		if err != nil {
			return fmt.Errorf("install globals: %w", err)
		}
	}
	return nil
}

// throw raises err as a catchable JavaScript error. errors.Is still sees
// err through the resulting exception.
func (p *JSProgram) throw(err error) {
	panic(p.vm.NewGoError(err))
}

func (p *JSProgram) jsSetValue(call goja.FunctionCall) goja.Value {
	dev := call.Argument(0).String()
	param := call.Argument(1).String()
	value := call.Argument(2).ToFloat()
	if err := p.env.Robot.SetValue(dev, param, value); err != nil {
		p.throw(err)
	}
	return goja.Undefined()
}

func (p *JSProgram) jsGetMotor(call goja.FunctionCall) goja.Value {
	v, err := p.env.Robot.GetValue(call.Argument(0).String())
	if err != nil {
		p.throw(err)
	}
	return p.vm.ToValue(v)
}

func (p *JSProgram) jsGetAxis(call goja.FunctionCall) goja.Value {
	v, err := p.env.Gamepad.GetValue(call.Argument(0).String())
	if err != nil {
		p.throw(err)
	}
	return p.vm.ToValue(v)
}

func (p *JSProgram) jsStick(read func(*device.Gamepad) (device.Direction, error)) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		d, err := read(p.env.Gamepad)
		if err != nil {
			p.throw(err)
		}
		if d.Neutral {
			return p.vm.ToValue(device.Neutral)
		}
		return p.vm.ToValue(d.Degrees)
	}
}

func (p *JSProgram) jsDefine(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		p.throw(fmt.Errorf("%w: action %q must be a function", scheduler.ErrConfiguration, name))
	}
	a, err := p.env.Scheduler.Define(name, p.actionBody(fn))
	if err != nil {
		p.throw(err)
	}
	handle := p.vm.NewObject()
	_ = handle.Set("name", name)
	p.handles[handle] = a
	return handle
}

func (p *JSProgram) action(v goja.Value) *scheduler.Action {
	if obj, ok := v.(*goja.Object); ok {
		if a, ok := p.handles[obj]; ok {
			return a
		}
	}
	p.throw(fmt.Errorf("%w: %s is not an action defined with Actions.define", scheduler.ErrConfiguration, v))
	return nil
}

func (p *JSProgram) jsRun(call goja.FunctionCall) goja.Value {
	a := p.action(call.Argument(0))
	var args []any
	for _, v := range call.Arguments[1:] {
		args = append(args, v)
	}
	if err := p.env.Scheduler.Run(a, args...); err != nil {
		p.throw(err)
	}
	return goja.Undefined()
}

func (p *JSProgram) jsIsRunning(call goja.FunctionCall) goja.Value {
	running, err := p.env.Scheduler.IsRunning(p.action(call.Argument(0)))
	if err != nil {
		p.throw(err)
	}
	return p.vm.ToValue(running)
}

func (p *JSProgram) jsSleep(call goja.FunctionCall) goja.Value {
	if !p.inAction {
		p.throw(fmt.Errorf("%w: Actions.sleep must be called inside an action started with Robot.run", scheduler.ErrConfiguration))
	}
	seconds := call.Argument(0).ToFloat()
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	marker := p.vm.NewObject()
	_ = marker.Set("sleep", seconds)
	p.markers[marker] = seconds
	p.unyield++
	return marker
}

func (p *JSProgram) jsLog(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, v := range call.Arguments {
			parts[i] = v.String()
		}
		if ce := p.env.Logger.Check(level, strings.Join(parts, " ")); ce != nil {
			ce.Write(zap.String("source", "console"))
		}
		return goja.Undefined()
	}
}

// actionBody drives a JavaScript action from its scheduler goroutine. Plain
// functions run to completion in one resumption; generators are advanced
// one yield per resumption and sleep for what they yielded.
func (p *JSProgram) actionBody(fn goja.Callable) scheduler.ActionFunc {
	return func(ctx *scheduler.Context, args ...any) error {
		vals := make([]goja.Value, len(args))
		for i, a := range args {
			v, ok := a.(goja.Value)
			if !ok {
				v = p.vm.ToValue(a)
			}
			vals[i] = v
		}

		res, err := p.enter(func() (goja.Value, error) { return fn(goja.Undefined(), vals...) })
		if err != nil {
			return err
		}
		iter, next := p.iterator(res)
		if next == nil {
			if p.unyield > 0 {
				return fmt.Errorf("%w: Actions.sleep in %s has no effect unless yielded from a generator action", scheduler.ErrConfiguration, ctx.Name())
			}
			return nil
		}

		for {
			step, err := p.enter(func() (goja.Value, error) { return next(iter) })
			if err != nil {
				return err
			}
			so := step.ToObject(p.vm)
			if so.Get("done").ToBoolean() {
				return nil
			}
			seconds, err := p.sleepFor(so.Get("value"))
			if err != nil {
				return fmt.Errorf("%s: %w", ctx.Name(), err)
			}
			if err := ctx.Sleep(seconds); err != nil {
				return err
			}
		}
	}
}

func (p *JSProgram) enter(call func() (goja.Value, error)) (goja.Value, error) {
	p.inAction = true
	p.unyield = 0
	clear(p.markers)
	defer func() { p.inAction = false }()
	return call()
}

func (p *JSProgram) iterator(v goja.Value) (*goja.Object, goja.Callable) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, nil
	}
	next, ok := goja.AssertFunction(obj.Get("next"))
	if !ok {
		return nil, nil
	}
	return obj, next
}

// sleepFor interprets a yielded value: an Actions.sleep result, a number of
// seconds, or nothing for a single tick.
func (p *JSProgram) sleepFor(v goja.Value) (float64, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if seconds, ok := p.markers[obj]; ok {
			delete(p.markers, obj)
			p.unyield--
			if p.unyield > 0 {
				return 0, fmt.Errorf("%w: only the yielded Actions.sleep takes effect", scheduler.ErrConfiguration)
			}
			return seconds, nil
		}
	}
	seconds := v.ToFloat()
	if math.IsNaN(seconds) {
		return 0, fmt.Errorf("%w: cannot sleep for %s", scheduler.ErrConfiguration, v)
	}
	return seconds, nil
}
