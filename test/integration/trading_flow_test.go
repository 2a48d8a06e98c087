package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-maker-sim/config"
	"market-maker-sim/export"
	"market-maker-sim/gateway"
	"market-maker-sim/infrastructure/alert"
	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/infrastructure/monitor"
	"market-maker-sim/internal/engine"
	"market-maker-sim/market"
	"market-maker-sim/posttrade"
	"market-maker-sim/sim"
)

type flow struct {
	runner  *sim.Runner
	engine  *engine.TradingEngine
	stream  *gateway.BinanceStream
	monitor *monitor.Monitor
	feed    *MockFeed
	dir     string
}

func newFlow(t *testing.T) *flow {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()

	log := logger.NewNop()
	runner, err := sim.BuildRunner(cfg.RunnerConfig(), log)
	require.NoError(t, err)
	streams, err := export.NewStreams(filepath.Join(dir, "exports"))
	require.NoError(t, err)
	mon := monitor.New(monitor.DefaultConfig())

	eng, err := engine.New(engine.Config{
		Symbol:       cfg.Symbol,
		TickInterval: 10 * time.Millisecond,
		ShutdownDir:  dir,
	}, engine.Components{
		Runner:       runner,
		Streams:      streams,
		Monitor:      mon,
		AlertManager: alert.NewManager([]alert.Channel{alert.NewMemoryChannel("mem")}, time.Minute),
		Analyzer:     posttrade.NewAnalyzer(),
		Logger:       log,
	})
	require.NoError(t, err)

	feed := NewMockFeed()
	t.Cleanup(feed.Close)
	stream, err := gateway.NewBinanceStream(gateway.StreamConfig{
		URL:          feed.URL(),
		Symbol:       cfg.Symbol,
		ReadTimeout:  time.Minute,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	}, runner, nil)
	require.NoError(t, err)
	stream.SetObserver(mon)

	return &flow{runner: runner, engine: eng, stream: stream, monitor: mon, feed: feed, dir: dir}
}

func (f *flow) start(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.engine.Start(ctx))
	done := make(chan error, 1)
	go func() { done <- f.stream.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("feed did not stop")
		}
	}
}

func (f *flow) waitQuotes(t *testing.T) (bid, ask float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := f.runner.Snapshot().Strategy
		return st.Bid != nil && st.Ask != nil
	}, 5*time.Second, 5*time.Millisecond)
	st := f.runner.Snapshot().Strategy
	return st.Bid.Price, st.Ask.Price
}

// TestFeedToShutdownFlow 行情 -> 报价 -> 成交 -> 导出 的完整链路
func TestFeedToShutdownFlow(t *testing.T) {
	f := newFlow(t)
	stop := f.start(t)

	bids, asks := sim.SyntheticBook(100, 0.5, 0.5, 20, 1)
	f.feed.PushDepth(bids, asks)
	bid, ask := f.waitQuotes(t)
	assert.Less(t, bid, ask)

	now := time.Now().UTC()
	f.feed.PushTrade(market.Trade{Ts: now, Price: bid - 1, Size: 1, Side: market.SideSell})
	require.Eventually(t, func() bool {
		return f.runner.Summary().TotalTrades == 1
	}, 5*time.Second, 5*time.Millisecond)

	f.feed.PushTrade(market.Trade{Ts: now, Price: ask + 1, Size: 1, Side: market.SideBuy})
	require.Eventually(t, func() bool {
		return f.runner.Summary().TotalTrades == 2
	}, 5*time.Second, 5*time.Millisecond)

	stop()
	files, err := f.engine.Stop()
	require.NoError(t, err)
	assert.Len(t, files, 5)

	sum := f.runner.Summary()
	assert.InDelta(t, 0, sum.Position, 1e-12)
	assert.InDelta(t, (ask-bid)*0.05, sum.TotalPnL, 1e-9)

	trades, err := posttrade.ReadCSVFile(filepath.Join(f.dir, export.TradesFile))
	require.NoError(t, err)
	assert.Len(t, trades.Rows, 2)
	rows := posttrade.Reconstruct(trades, posttrade.Options{MaxInventory: 5})
	require.Len(t, rows, 2)
	assert.InDelta(t, sum.TotalPnL, rows[1].TotalPnL, 1e-9)

	logs, err := posttrade.ReadCSVFile(filepath.Join(f.dir, "exports", export.TradeLogFile))
	require.NoError(t, err)
	assert.Len(t, logs.Rows, 2)

	assert.Equal(t, int64(1), f.feed.Connects())
	n, err := testutil.GatherAndCount(f.monitor.Registry(), "mm_sim_fills_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestFeedReconnectKeepsState 断线重连后账本与报价状态保持
func TestFeedReconnectKeepsState(t *testing.T) {
	f := newFlow(t)
	stop := f.start(t)
	defer stop()

	bids, asks := sim.SyntheticBook(100, 0.5, 0.5, 20, 1)
	f.feed.PushDepth(bids, asks)
	bid, _ := f.waitQuotes(t)
	f.feed.PushTrade(market.Trade{Ts: time.Now().UTC(), Price: bid - 1, Size: 1, Side: market.SideSell})
	require.Eventually(t, func() bool {
		return f.runner.Summary().TotalTrades == 1
	}, 5*time.Second, 5*time.Millisecond)

	f.feed.Disconnect()
	require.Eventually(t, func() bool { return f.feed.Connects() >= 2 }, 5*time.Second, 5*time.Millisecond)

	f.feed.PushDepth(bids, asks)
	assert.Equal(t, int64(1), f.runner.Summary().TotalTrades)
	assert.InDelta(t, 0.05, f.runner.Summary().Position, 1e-12)

	_, err := os.Stat(filepath.Join(f.dir, "exports", export.TradeLogFile))
	assert.NoError(t, err)
}
