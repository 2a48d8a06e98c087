package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"market-maker-sim/posttrade"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunWritesReconstruction(t *testing.T) {
	dir := t.TempDir()
	opts, err := parseFlags([]string{
		"-trades", writeFile(t, dir, "trades.csv",
			"timestamp,side,price,size,trade_id\n"+
				"2024-03-01T12:00:02Z,sell,110,1,b\n"+
				"2024-03-01T12:00:01Z,buy,100,1,a\n"),
		"-spreads", writeFile(t, dir, "spreads.csv",
			"timestamp,0.1,1\n1709294400,2,4\n1709294401,4,\n"),
		"-out", filepath.Join(dir, "out.csv"),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(opts, &out, zap.NewNop()))

	rows, err := posttrade.ReadCSVFile(opts.out)
	require.NoError(t, err)
	require.Len(t, rows.Rows, 2)
	assert.Equal(t, "a", rows.Rows[0]["trade_id"])
	assert.Equal(t, "b", rows.Rows[1]["trade_id"])
	assert.Equal(t, "10", rows.Rows[1]["realized_pnl"])

	report := out.String()
	assert.Contains(t, report, "Trades: 2 (buy 1 / sell 1)")
	assert.Contains(t, report, "Final: position 0.000000, realized 10.000000")
	assert.Contains(t, report, "0.1    n=2 avg=3.000000 min=2.000000 max=4.000000")
	assert.Contains(t, report, "1      n=1 avg=4.000000")
}

func TestRunMissingSpreadsIsSkipped(t *testing.T) {
	dir := t.TempDir()
	opts, err := parseFlags([]string{
		"-trades", writeFile(t, dir, "trades.csv", "timestamp,side,price,size\n1,buy,100,1\n"),
		"-spreads", filepath.Join(dir, "missing.csv"),
		"-out", filepath.Join(dir, "out.csv"),
	})
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	var out bytes.Buffer
	require.NoError(t, run(opts, &out, zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("spreads file not found, skipping").Len())
	assert.FileExists(t, opts.out)
}

func TestRunMissingTrades(t *testing.T) {
	opts, err := parseFlags([]string{"-trades", filepath.Join(t.TempDir(), "none.csv")})
	require.NoError(t, err)
	assert.Error(t, run(opts, &bytes.Buffer{}, zap.NewNop()))
}

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "trades.csv", opts.trades)
	assert.Equal(t, "pnl_from_trades.csv", opts.out)
	assert.Equal(t, []string{"0.1", "1", "5", "10"}, splitSizes(opts.sizes))
	assert.Equal(t, []string{"a", "b"}, splitSizes(" a, ,b "))
}
