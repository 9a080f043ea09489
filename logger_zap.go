package command

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// WrapZap adapts a zap logger to Logger. Trace maps onto debug.
func WrapZap(logger *zap.Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return zapLogger{logger: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type zapLogger struct {
	logger *zap.SugaredLogger
}

func (l zapLogger) Trace(msg string, args ...any) { l.logger.Debugf(msg, args...) }
func (l zapLogger) Debug(msg string, args ...any) { l.logger.Debugf(msg, args...) }
func (l zapLogger) Info(msg string, args ...any)  { l.logger.Infof(msg, args...) }
func (l zapLogger) Warn(msg string, args ...any)  { l.logger.Warnf(msg, args...) }
func (l zapLogger) Error(msg string, args ...any) { l.logger.Errorf(msg, args...) }
func (l zapLogger) Fatal(msg string, args ...any) { l.logger.Fatalf(msg, args...) }

func (l zapLogger) WithContext(context.Context) Logger { return l }

func (l zapLogger) WithFields(fields map[string]any) Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return zapLogger{logger: l.logger.With(kv...)}
}
