package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestDefaultLoggerIsUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Sugar.Infof("before init %d", 1)
	})
}

func TestInitLevels(t *testing.T) {
	Init("debug")
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))

	Init("warn")
	assert.False(t, Log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Log.Core().Enabled(zapcore.WarnLevel))

	Init("not-a-level")
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
}
