package extensibility

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/comalice/pimulator/program"
)

type interruptible struct {
	program.ControlProgram
	reason any
}

func (i *interruptible) Interrupt(reason any) { i.reason = reason }

func TestLoggingProgram(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	called := false
	inner := program.Func{
		TeleopMain: func(program.Env) error {
			called = true
			return nil
		},
	}.Program()
	p := NewLoggingProgram(inner, zap.New(core))

	if err := p.Bind(program.Env{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.TeleopMain(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("inner entry not called")
	}

	entries := logs.FilterMessage("program entry completed").All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["entry"] != "bind" {
		t.Errorf("bind entry logged as %v %v", entries[0].Level, entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.DebugLevel || entries[1].ContextMap()["entry"] != TeleopMainFn {
		t.Errorf("main entry logged as %v %v", entries[1].Level, entries[1].ContextMap())
	}
}

func TestLoggingProgram_Error(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	boom := errors.New("boom")
	inner := program.Func{TeleopSetup: func(program.Env) error { return boom }}.Program()
	p := NewLoggingProgram(inner, zap.New(core))

	if err := p.TeleopSetup(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if logs.FilterMessage("program entry failed").FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Error("expected a warn entry for the failure")
	}
}

func TestLoggingProgram_ForwardsInterrupt(t *testing.T) {
	inner := &interruptible{ControlProgram: program.Func{}.Program()}
	NewLoggingProgram(inner, nil).Interrupt("timeout")
	if inner.reason != "timeout" {
		t.Errorf("interrupt not forwarded, got %v", inner.reason)
	}

	// programs without Interrupt are left alone
	NewLoggingProgram(program.Func{}.Program(), nil).Interrupt("timeout")
}
