package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/pimulator/kinematics"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pimulator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, kinematics.DefaultParams(), cfg.Kinematics())
	assert.Equal(t, 5, cfg.BufferCapacity)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := write(t, `
tick_rate: 100ms
watchdog_timeout: 2s
program: programs/tank_drive.js
robot:
  start_pose:
    x: 10
    y: 20
    heading: 90
gamepad:
  script: arcade
mqtt:
  broker: localhost:1883
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.TickRate)
	assert.Equal(t, 2*time.Second, cfg.WatchdogTimeout)
	assert.Equal(t, "programs/tank_drive.js", cfg.Program)
	assert.Equal(t, kinematics.Pose{X: 10, Y: 20, Heading: 90}, cfg.Robot.StartPose)
	assert.Equal(t, "arcade", cfg.Gamepad.Script)
	assert.Equal(t, "localhost:1883", cfg.MQTT.Broker)
	// untouched keys keep their defaults
	assert.Equal(t, 143.0, cfg.Robot.FieldSize)
	assert.Equal(t, "pimulator/robot/state", cfg.MQTT.Topic)
}

func TestLoad_Invalid(t *testing.T) {
	path := write(t, `
tick_rate: 0s
buffer_capacity: 0
gamepad:
  script: joystick
log:
  level: loud
`)

	_, err := Load(path)

	require.Error(t, err)
	for _, want := range []string{"tick_rate", "buffer_capacity", "gamepad.script", "log.level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(write(t, "tick_rate: [1, 2"))
	assert.Error(t, err)
}

func TestValidate_StartPoseOutsideField(t *testing.T) {
	cfg := Default()
	cfg.Robot.StartPose.X = 200

	assert.ErrorContains(t, cfg.Validate(), "start_pose")
}

func TestKinematics_UnmirroredRight(t *testing.T) {
	cfg := Default()
	cfg.Robot.MirroredRight = false

	assert.Equal(t, 1.0, cfg.Kinematics().RightSign)
}

func TestRuntime(t *testing.T) {
	cfg := Default()

	teleop := cfg.Runtime(false)
	auto := cfg.Runtime(true)

	assert.Equal(t, time.Duration(0), teleop.MaxDuration)
	assert.Equal(t, 30*time.Second, auto.MaxDuration)
	assert.Equal(t, cfg.TickRate, auto.TickRate)
	assert.Equal(t, kinematics.DefaultPose(), auto.StartPose)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger(LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
