package extensibility

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/comalice/pimulator/program"
)

// LoggingProgram wraps a ControlProgram and logs around each entry point.
// Setup entries are logged at info, main entries at debug, failures at warn.
type LoggingProgram struct {
	inner  program.ControlProgram
	logger *zap.Logger
}

// NewLoggingProgram creates a LoggingProgram wrapping inner.
func NewLoggingProgram(inner program.ControlProgram, logger *zap.Logger) *LoggingProgram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingProgram{inner: inner, logger: logger}
}

// Interrupt forwards to the wrapped program when it can be interrupted.
func (p *LoggingProgram) Interrupt(reason any) {
	if i, ok := p.inner.(interface{ Interrupt(any) }); ok {
		i.Interrupt(reason)
	}
}

func (p *LoggingProgram) Bind(env program.Env) error {
	return p.run("bind", zapcore.InfoLevel, func() error { return p.inner.Bind(env) })
}

func (p *LoggingProgram) AutonomousSetup() error {
	return p.run(AutonomousSetupFn, zapcore.InfoLevel, p.inner.AutonomousSetup)
}

func (p *LoggingProgram) AutonomousMain() error {
	return p.run(AutonomousMainFn, zapcore.DebugLevel, p.inner.AutonomousMain)
}

func (p *LoggingProgram) TeleopSetup() error {
	return p.run(TeleopSetupFn, zapcore.InfoLevel, p.inner.TeleopSetup)
}

func (p *LoggingProgram) TeleopMain() error {
	return p.run(TeleopMainFn, zapcore.DebugLevel, p.inner.TeleopMain)
}

func (p *LoggingProgram) run(entry string, level zapcore.Level, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Warn("program entry failed", zap.String("entry", entry), zap.Duration("elapsed", elapsed), zap.Error(err))
		return err
	}
	if ce := p.logger.Check(level, "program entry completed"); ce != nil {
		ce.Write(zap.String("entry", entry), zap.Duration("elapsed", elapsed))
	}
	return nil
}
