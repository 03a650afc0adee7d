// Package config loads simulator settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/comalice/pimulator/gamepad"
	"github.com/comalice/pimulator/internal/production"
	"github.com/comalice/pimulator/kinematics"
	"github.com/comalice/pimulator/realtime"
)

// Config is the root of the configuration file.
type Config struct {
	TickRate           time.Duration `yaml:"tick_rate"`
	WatchdogTimeout    time.Duration `yaml:"watchdog_timeout"`
	AutonomousDuration time.Duration `yaml:"autonomous_duration"`
	BufferCapacity     int           `yaml:"buffer_capacity"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`

	// Program is a built-in program name or the path of a .js file.
	Program string `yaml:"program"`

	Robot   RobotConfig   `yaml:"robot"`
	Gamepad GamepadConfig `yaml:"gamepad"`
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Trace   TraceConfig   `yaml:"trace"`
}

type RobotConfig struct {
	FieldSize          float64         `yaml:"field_size"`
	Width              float64         `yaml:"width"`
	WheelRadius        float64         `yaml:"wheel_radius"`
	MaxAngularVelocity float64         `yaml:"max_angular_velocity"`
	PhaseScale         float64         `yaml:"phase_scale"`
	MirroredRight      bool            `yaml:"mirrored_right"`
	StartPose          kinematics.Pose `yaml:"start_pose"`
}

type GamepadConfig struct {
	Script string `yaml:"script"` // tank or arcade
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig enables telemetry when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// TraceConfig enables trace files when Dir is set.
type TraceConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
	Limit  int    `yaml:"limit"`
}

// Default returns the reference configuration.
func Default() Config {
	p := kinematics.DefaultParams()
	return Config{
		TickRate:           50 * time.Millisecond,
		WatchdogTimeout:    time.Second,
		AutonomousDuration: 30 * time.Second,
		BufferCapacity:     production.DefaultCapacity,
		ReadTimeout:        100 * time.Millisecond,
		Program:            "tank_drive",
		Robot: RobotConfig{
			FieldSize:          p.FieldMax,
			Width:              p.Width,
			WheelRadius:        p.WheelRadius,
			MaxAngularVelocity: p.MaxAngularVelocity,
			PhaseScale:         p.PhaseScale,
			MirroredRight:      true,
			StartPose:          kinematics.DefaultPose(),
		},
		Gamepad: GamepadConfig{Script: "tank"},
		Log:     LogConfig{Level: "info"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		MQTT:    MQTTConfig{Topic: "pimulator/robot/state", ClientID: "pimulator"},
		Trace:   TraceConfig{Format: "json"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	positive("tick_rate", c.TickRate.Seconds())
	positive("watchdog_timeout", c.WatchdogTimeout.Seconds())
	positive("read_timeout", c.ReadTimeout.Seconds())
	positive("robot.field_size", c.Robot.FieldSize)
	positive("robot.width", c.Robot.Width)
	positive("robot.wheel_radius", c.Robot.WheelRadius)
	positive("robot.max_angular_velocity", c.Robot.MaxAngularVelocity)

	if c.AutonomousDuration < 0 {
		errs = append(errs, fmt.Errorf("autonomous_duration must not be negative, got %v", c.AutonomousDuration))
	}
	if c.BufferCapacity < 1 {
		errs = append(errs, fmt.Errorf("buffer_capacity must be at least 1, got %d", c.BufferCapacity))
	}
	if c.Program == "" {
		errs = append(errs, errors.New("program must be set"))
	}
	pose := c.Robot.StartPose
	if pose.X < 0 || pose.X > c.Robot.FieldSize || pose.Y < 0 || pose.Y > c.Robot.FieldSize {
		errs = append(errs, fmt.Errorf("robot.start_pose (%v, %v) is outside the field", pose.X, pose.Y))
	}
	if _, err := gamepad.ScriptFor(c.Gamepad.Script); err != nil {
		errs = append(errs, fmt.Errorf("gamepad.script: %w", err))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Trace.Format {
	case "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("trace.format must be json or yaml, got %q", c.Trace.Format))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic must be set when mqtt.broker is"))
	}
	return errors.Join(errs...)
}

// Kinematics returns the engine parameters.
func (c Config) Kinematics() kinematics.Params {
	p := kinematics.Params{
		Width:              c.Robot.Width,
		WheelRadius:        c.Robot.WheelRadius,
		FieldMax:           c.Robot.FieldSize,
		MaxAngularVelocity: c.Robot.MaxAngularVelocity,
		PhaseScale:         c.Robot.PhaseScale,
		RightSign:          1,
	}
	if c.Robot.MirroredRight {
		p.RightSign = -1
	}
	return p
}

// Runtime returns the runtime configuration for a run. Autonomous runs are
// limited to AutonomousDuration.
func (c Config) Runtime(autonomous bool) realtime.Config {
	rc := realtime.Config{
		TickRate:        c.TickRate,
		WatchdogTimeout: c.WatchdogTimeout,
		Kinematics:      c.Kinematics(),
		StartPose:       c.Robot.StartPose,
	}
	if autonomous {
		rc.MaxDuration = c.AutonomousDuration
	}
	return rc
}

// NewLogger builds a zap logger for the log settings.
func NewLogger(lc LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
