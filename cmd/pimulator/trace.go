package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/pimulator"
	"github.com/comalice/pimulator/internal/production"
)

// traceSink records one run and saves it when the run ends.
type traceSink struct {
	*production.TraceRecorder
	persister production.TracePersister
	logger    *zap.Logger
}

func traceSinks(persister production.TracePersister, limit int, logger *zap.Logger) pimulator.SinkFactory {
	return func(info pimulator.RunInfo) (pimulator.RunSink, error) {
		return &traceSink{
			TraceRecorder: production.NewTraceRecorder(info.ID, info.Mode.String(), limit),
			persister:     persister,
			logger:        logger,
		}, nil
	}
}

func (t *traceSink) Close(info pimulator.RunInfo, runErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trace := t.Trace()
	if err := t.persister.Save(ctx, trace); err != nil {
		return err
	}
	t.logger.Info("trace saved",
		zap.String("run_id", info.ID),
		zap.Int("snapshots", len(trace.Snapshots)),
		zap.Int("dropped", t.Dropped()),
		zap.NamedError("run_error", runErr))
	return nil
}
