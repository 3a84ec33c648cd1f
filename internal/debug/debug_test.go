package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDebugOutputRespectsFlag(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	DebugOutput(false, "hidden %d", 1)
	DebugOutput(true, "shown %d", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown 2", entries[0].Message)
}

func TestDebugTiming(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	done := DebugTiming(true, "scoring")
	done()

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 0, logs.FilterMessage("starting").FilterField(zap.String("operation", "other")).Len())

	DebugTiming(false, "noop")()
	assert.Equal(t, 2, logs.Len())
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	_, err = NewLogger("loud", true)
	assert.Error(t, err)
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, L())
}
