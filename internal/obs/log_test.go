package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWritesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Info("session.created", Fields{"token": uint32(7), "expires": 42})
	Error("session.sequence_fault", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "session.created", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.EqualValues(t, 7, ctx["token"])
	assert.EqualValues(t, 42, ctx["expires"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestLogRespectsLevel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Debug("relay.frame", Fields{"n": 1})
	Warn("relay.slow", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "relay.slow", logs.All()[0].Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zap.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zap.InfoLevel, parseLevel("nonsense"))
}

func TestEnableDebugTogglesLevel(t *testing.T) {
	core, logs := observer.New(level)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())
	defer EnableDebug(false)

	EnableDebug(false)
	Debug("relay.frame", Fields{"n": 1})
	assert.Zero(t, logs.Len())

	EnableDebug(true)
	Debug("relay.frame", Fields{"n": 2})
	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, 2, logs.All()[0].ContextMap()["n"])
}
