// Command pimulator serves a robot simulation over HTTP.
//
// Usage:
//
//	pimulator [-config pimulator.yaml] [-program tank_drive|path/to/program.js] [-addr :8080] [-start teleop]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/comalice/pimulator"
	"github.com/comalice/pimulator/gamepad"
	"github.com/comalice/pimulator/internal/config"
	"github.com/comalice/pimulator/internal/extensibility"
	"github.com/comalice/pimulator/internal/production"
	"github.com/comalice/pimulator/program"
)

func main() {
	configPath := flag.String("config", "", "path of a YAML configuration file")
	programName := flag.String("program", "", "built-in program name or path of a .js program")
	addr := flag.String("addr", "", "HTTP listen address")
	start := flag.String("start", "", "start a run in this mode (teleop or autonomous) right away")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "pimulator: %v\n", err)
			os.Exit(2)
		}
	}
	if *programName != "" {
		cfg.Program = *programName
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pimulator: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *start, logger); err != nil {
		logger.Error("pimulator exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, start string, logger *zap.Logger) error {
	factory, err := resolveProgram(cfg.Program)
	if err != nil {
		return err
	}
	script, err := gamepad.ScriptFor(cfg.Gamepad.Script)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := production.NewMetrics(reg)
	hub := newStreamHub(logger)

	opts := []pimulator.Option{
		pimulator.WithRuntimeConfig(cfg.Runtime(false)),
		pimulator.WithAutonomousDuration(cfg.AutonomousDuration),
		pimulator.WithBufferCapacity(cfg.BufferCapacity),
		pimulator.WithLogger(logger),
		pimulator.WithObserver(metrics),
		pimulator.WithEvictHook(metrics.SnapshotEvicted),
		pimulator.WithGamepadScript(script),
		pimulator.WithPublisher(hub),
	}

	if cfg.MQTT.Broker != "" {
		client, err := production.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, logger)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer client.Disconnect(250)
		opts = append(opts, pimulator.WithPublisher(production.NewMQTTSink(client, cfg.MQTT.Topic, logger)))
	}

	if cfg.Trace.Dir != "" {
		persister, err := production.NewPersister(cfg.Trace.Format, cfg.Trace.Dir)
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		opts = append(opts, pimulator.WithSink(traceSinks(persister, cfg.Trace.Limit, logger)))
	}

	sim := pimulator.New(factory, opts...)
	defer func() { _, _ = sim.Stop() }()

	if start != "" {
		mode, err := pimulator.ParseMode(start)
		if err != nil {
			return err
		}
		if _, err := sim.Start(ctx, mode); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(ctx, sim, hub, reg, cfg.ReadTimeout, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("program", cfg.Program))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveProgram returns the factory for a built-in program name or a path
// to a JavaScript program.
func resolveProgram(name string) (program.Factory, error) {
	if strings.HasSuffix(name, ".js") {
		return extensibility.LoadJSFactory(name)
	}
	return program.Builtins().Lookup(name)
}
