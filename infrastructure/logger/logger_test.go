package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNewWithFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{
		Level:      "debug",
		Outputs:    []string{"file"},
		OutputFile: filepath.Join(dir, "app.log"),
		ErrorFile:  filepath.Join(dir, "error.log"),
		Format:     "json",
	})
	require.NoError(t, err)
	l.LogFill("f1", "buy", 100, 0.05, 0.05)
	assert.FileExists(t, filepath.Join(dir, "app.log"))
	assert.FileExists(t, filepath.Join(dir, "error.log"))
}

func TestDomainEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.LogFill("f1", "sell", 101, 0.5, -0.5)
	l.LogQuote(100, 101, 0.05)
	l.LogRisk("risk_suspend", zap.String("reason", "notional"))
	l.LogExport("exports/pnl.csv", 3, nil)
	l.LogExport("exports/pnl.csv", 0, errors.New("disk full"))

	entries := logs.All()
	require.Len(t, entries, 5)

	fill := entries[0].ContextMap()
	assert.Equal(t, "fill", fill["event"])
	assert.Equal(t, "f1", fill["fill_id"])
	assert.Equal(t, -0.5, fill["position"])
	assert.NotEmpty(t, fill["ts"])

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "risk_suspend", entries[2].ContextMap()["event"])
	assert.Equal(t, int64(3), entries[3].ContextMap()["rows"])
	assert.Equal(t, zapcore.ErrorLevel, entries[4].Level)
	assert.Equal(t, "disk full", entries[4].ContextMap()["error"])
}

func TestLogErrorKeepsContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.LogError(errors.New("book crossed"), zap.String("symbol", "BTCUSDT"), zap.Int("levels", 5))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, e.Level)
	ctx := e.ContextMap()
	assert.Equal(t, "error", ctx["event"])
	assert.Equal(t, "book crossed", ctx["error"])
	assert.Equal(t, "BTCUSDT", ctx["symbol"])
	assert.Equal(t, int64(5), ctx["levels"])
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core)).WithFields(map[string]interface{}{"symbol": "BTCUSDT"})
	l.Info("hello")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "BTCUSDT", logs.All()[0].ContextMap()["symbol"])
}

func TestNopAndWrapNil(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().LogFill("x", "buy", 1, 1, 1)
		Wrap(nil).LogRisk("x")
	})
}
