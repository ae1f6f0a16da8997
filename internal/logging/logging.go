package logging

import (
	"context"
	"fmt"

	eventbus "github.com/hanpama/graphgate/internal/eventbus"
	events "github.com/hanpama/graphgate/internal/events"
	reqid "github.com/hanpama/graphgate/internal/reqid"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Level is one of debug, info, warn, error;
// an empty level keeps the config default.
func New(level string, development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// RegisterSubscribers attaches eventbus handlers that log the request
// lifecycle. The returned function detaches them.
func RegisterSubscribers(log *zap.Logger) func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			log.Info("http request served", withReqID(ctx,
				zap.String("method", e.Method),
				zap.String("path", e.Path),
				zap.Int("status", e.Status),
				zap.Duration("duration", e.Duration),
			)...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			fields := withReqID(ctx,
				zap.String("operation_name", e.OperationName),
				zap.String("operation_type", e.OperationType),
				zap.Int("errors", len(e.Errors)),
				zap.Duration("duration", e.Duration),
			)
			if len(e.Errors) > 0 {
				log.Warn("graphql operation finished with errors", fields...)
			} else {
				log.Info("graphql operation finished", fields...)
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.UpstreamCallFinish) {
			fields := withReqID(ctx,
				zap.String("backend", e.Backend),
				zap.String("url", e.URL),
				zap.Bool("batched", e.Batched),
				zap.Int("keys", e.Keys),
				zap.Int("status", e.Status),
				zap.Duration("duration", e.Duration),
			)
			if e.Err != nil {
				log.Error("upstream call failed", append(fields, zap.Error(e.Err))...)
			} else {
				log.Debug("upstream call finished", fields...)
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.BatchWindowFlush) {
			fields := withReqID(ctx,
				zap.String("backend", e.Backend),
				zap.String("object_type", e.ObjectType),
				zap.String("field", e.Field),
				zap.Int("keys", e.Keys),
				zap.Int("distinct_keys", e.DistinctKeys),
				zap.Duration("duration", e.Duration),
			)
			if e.Err != nil {
				log.Warn("batch window failed", append(fields, zap.Error(e.Err))...)
			} else {
				log.Debug("batch window flushed", fields...)
			}
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func withReqID(ctx context.Context, fields ...zap.Field) []zap.Field {
	if rid, ok := reqid.FromContext(ctx); ok {
		return append(fields, zap.String("request_id", rid))
	}
	return fields
}
