package ports

import (
	"context"
	"sync/atomic"
)

// NopLogger discards all messages. Domain services fall back to it when
// no logger is configured.
type NopLogger struct {
	level atomic.Int32
}

// NewNopLogger creates a no-op logger at LevelInfo.
func NewNopLogger() *NopLogger {
	l := &NopLogger{}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *NopLogger) Debug(context.Context, string, ...Field) {}
func (l *NopLogger) Info(context.Context, string, ...Field)  {}
func (l *NopLogger) Warn(context.Context, string, ...Field)  {}
func (l *NopLogger) Error(context.Context, string, ...Field) {}

// With returns l.
func (l *NopLogger) With(...Field) Logger {
	return l
}

func (l *NopLogger) Level() Level {
	return Level(l.level.Load())
}

func (l *NopLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// LoggerOrNop returns the logger carried by ctx, or a NopLogger.
func LoggerOrNop(ctx context.Context) Logger {
	if l := LoggerFromContext(ctx); l != nil {
		return l
	}
	return NewNopLogger()
}

var _ Logger = (*NopLogger)(nil)
