package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	*NopLogger
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNopLogger()
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn", F("file", "/etc/hosts"))
	logger.Error(ctx, "error")

	assert.Same(t, logger, logger.With(F("host", "slave1")))
	assert.Equal(t, LevelInfo, logger.Level())
	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.Level())
}

func TestLoggerOrNop(t *testing.T) {
	t.Parallel()

	_, ok := LoggerOrNop(context.Background()).(*NopLogger)
	assert.True(t, ok)

	carried := recordingLogger{NewNopLogger()}
	ctx := ContextWithLogger(context.Background(), carried)
	assert.Equal(t, carried, LoggerOrNop(ctx))
}
