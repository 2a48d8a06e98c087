package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-maker-sim/export"
	"market-maker-sim/infrastructure/alert"
	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/infrastructure/monitor"
	"market-maker-sim/inventory"
	"market-maker-sim/posttrade"
	"market-maker-sim/sim"
	"market-maker-sim/strategy"
)

// EngineState 引擎状态
type EngineState int

const (
	StateIdle EngineState = iota
	StateRunning
	StatePaused // 轮询继续，报价停止
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置；间隔为 0 表示关闭对应任务
type Config struct {
	Symbol               string
	TickInterval         time.Duration // 无新盘口时的刷新轮询
	StatusInterval       time.Duration
	HealthInterval       time.Duration
	PnLExportInterval    time.Duration
	SpreadExportInterval time.Duration
	MarkoutMaxAge        time.Duration
	ShutdownDir          string // 为空时停机不写文件
}

// Components 引擎依赖组件，除 Runner 与 Logger 外均可为空
type Components struct {
	Runner       *sim.Runner
	Streams      *export.Streams
	Monitor      *monitor.Monitor
	AlertManager *alert.Manager
	Analyzer     *posttrade.Analyzer
	Logger       *logger.Logger
}

// TradingEngine 驱动 Runner 的轮询循环，并把状态变化分发到导出、指标与告警
type TradingEngine struct {
	config Config

	runner   *sim.Runner
	streams  *export.Streams
	monitor  *monitor.Monitor
	alertMgr *alert.Manager
	analyzer *posttrade.Analyzer
	logger   *logger.Logger

	state EngineState
	mu    sync.RWMutex

	stopChan chan struct{}
	doneChan chan struct{}

	stats Statistics
	now   func() time.Time
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime     time.Time
	TotalTicks    int64
	TotalQuotes   int64
	TotalFills    int64
	TotalErrors   int64
	LastTickTime  time.Time
	LastQuoteTime time.Time
	LastFillTime  time.Time
	mu            sync.RWMutex
}

// New 创建交易引擎并注册 Runner 回调
func New(cfg Config, components Components) (*TradingEngine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.MarkoutMaxAge <= 0 {
		cfg.MarkoutMaxAge = 10 * time.Minute
	}

	e := &TradingEngine{
		config:   cfg,
		runner:   components.Runner,
		streams:  components.Streams,
		monitor:  components.Monitor,
		alertMgr: components.AlertManager,
		analyzer: components.Analyzer,
		logger:   components.Logger.WithFields(map[string]interface{}{"component": "engine"}),
		state:    StateIdle,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		now:      time.Now,
	}
	e.runner.SetHooks(sim.Hooks{
		OnFill:       e.onFill,
		OnQuotes:     e.onQuotes,
		OnMark:       e.onMark,
		OnRiskChange: e.onRiskChange,
	})
	return e, nil
}

// Start 启动报价与轮询循环
func (e *TradingEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	e.state = StateRunning
	e.mu.Unlock()

	e.stats.mu.Lock()
	e.stats.StartTime = e.now()
	e.stats.mu.Unlock()

	e.runner.Start()
	e.logger.Info("Trading engine started",
		zap.String("symbol", e.config.Symbol),
		zap.Duration("tick_interval", e.config.TickInterval))

	go e.run(ctx)
	return nil
}

// Stop 停止循环与报价，并写出停机文件。可重复调用。
func (e *TradingEngine) Stop() ([]string, error) {
	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return nil, nil
	case StateIdle:
		e.state = StateStopped
		e.mu.Unlock()
		e.runner.Refresh()
		return e.writeShutdown()
	}
	e.state = StateStopped
	e.mu.Unlock()

	e.logger.Info("Trading engine stopping...")
	close(e.stopChan)
	select {
	case <-e.doneChan:
	case <-time.After(10 * time.Second):
		e.logger.Warn("Timeout waiting for engine to stop")
	}
	e.runner.Stop()
	// 最后一次成交之后可能还没有盯市
	e.runner.Refresh()

	files, err := e.writeShutdown()
	e.logger.Info("Trading engine stopped", zap.Strings("files", files))
	return files, err
}

func (e *TradingEngine) writeShutdown() ([]string, error) {
	if e.config.ShutdownDir == "" {
		return nil, nil
	}
	files, err := export.WriteShutdown(e.config.ShutdownDir, e.runner, e.now())
	for _, f := range files {
		e.logger.Info("shutdown file written", zap.String("path", f))
	}
	if err != nil {
		e.logger.LogError(err, zap.String("stage", "shutdown_export"))
	}
	return files, err
}

// Pause 暂停报价，挂单被清空
func (e *TradingEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return fmt.Errorf("engine not running (state: %s)", e.state)
	}
	e.runner.Stop()
	e.state = StatePaused
	e.logger.Info("Trading engine paused")
	return nil
}

// Resume 恢复报价
func (e *TradingEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return fmt.Errorf("engine not paused (state: %s)", e.state)
	}
	e.runner.Start()
	e.state = StateRunning
	e.logger.Info("Trading engine resumed")
	return nil
}

// ApplyStrategyConfig 热更新报价参数
func (e *TradingEngine) ApplyStrategyConfig(cfg strategy.Config) error {
	if err := e.runner.SetStrategyConfig(cfg); err != nil {
		e.recordError()
		return err
	}
	e.logger.Info("strategy config applied",
		zap.Float64("base_order_size", cfg.BaseOrderSize),
		zap.Float64("max_notional", cfg.MaxNotional),
		zap.Float64("max_loss", cfg.MaxLoss))
	return nil
}

// ticker 间隔为 0 时返回永不触发的通道
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// run 主事件循环
func (e *TradingEngine) run(ctx context.Context) {
	defer close(e.doneChan)

	tick, stopTick := ticker(e.config.TickInterval)
	defer stopTick()
	status, stopStatus := ticker(e.config.StatusInterval)
	defer stopStatus()
	health, stopHealth := ticker(e.config.HealthInterval)
	defer stopHealth()
	pnl, stopPnL := ticker(e.config.PnLExportInterval)
	defer stopPnL()
	spread, stopSpread := ticker(e.config.SpreadExportInterval)
	defer stopSpread()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping engine loop")
			return
		case <-e.stopChan:
			return
		case <-tick:
			e.onTick()
		case <-status:
			e.logStatus()
		case <-health:
			e.checkHealth()
		case <-pnl:
			e.exportPnL()
		case <-spread:
			e.exportSpread()
		}
	}
}

// onTick 刷新报价并更新成交后分析
func (e *TradingEngine) onTick() {
	now := e.now()
	e.stats.mu.Lock()
	e.stats.TotalTicks++
	e.stats.LastTickTime = now
	e.stats.mu.Unlock()

	e.runner.Refresh()

	if e.analyzer != nil {
		e.analyzer.CleanOldRecords(now, e.config.MarkoutMaxAge)
		if e.monitor != nil {
			e.monitor.UpdateMarkout(e.analyzer.Stats())
		}
	}
}

func (e *TradingEngine) logStatus() {
	snap := e.runner.Snapshot()
	st := snap.Strategy
	fields := []zap.Field{
		zap.String("state", st.State.String()),
		zap.Bool("fair_ok", snap.FairOK),
		zap.Float64("fair", snap.Fair),
		zap.Float64("position", snap.Portfolio.Position),
		zap.Float64("cash", snap.Portfolio.Cash),
		zap.Float64("total_pnl", snap.Portfolio.TotalPnL),
		zap.Int64("fills", snap.Portfolio.TotalTrades),
		zap.Int64("market_trades", snap.Trades),
		zap.Int64("quotes_posted", st.QuotesPosted),
		zap.Bool("risk_suspended", st.RiskSuspended),
	}
	rm := e.runner.RiskMetrics()
	fields = append(fields,
		zap.Float64("notional", rm.NotionalExposure),
		zap.Float64("utilization_pct", rm.UtilizationPct),
	)
	if st.Bid != nil {
		fields = append(fields, zap.Float64("bid", st.Bid.Price))
	}
	if st.Ask != nil {
		fields = append(fields, zap.Float64("ask", st.Ask.Price))
	}
	for _, s := range snap.Spreads {
		if e.monitor != nil && s.Count > 0 {
			e.monitor.UpdateSpread(s.Size, s.Avg)
		}
	}
	e.logger.Info("status", fields...)
}

func (e *TradingEngine) checkHealth() inventory.HealthReport {
	rep := e.runner.HealthCheck()
	if e.monitor != nil {
		e.monitor.UpdateHealth(rep)
	}
	if rep.RiskLevel != inventory.RiskLow {
		e.logger.LogRisk("health_check",
			zap.String("risk_level", string(rep.RiskLevel)),
			zap.Float64("score", rep.Score),
			zap.Strings("recommendations", rep.Recommendations))
	}
	if e.alertMgr != nil {
		if _, err := e.alertMgr.ReportHealth(rep); err != nil {
			e.logger.LogError(err, zap.String("stage", "health_alert"))
		}
	}
	return rep
}

func (e *TradingEngine) exportPnL() {
	if e.streams == nil {
		return
	}
	snap := e.runner.Snapshot()
	if !snap.FairOK {
		return
	}
	if err := e.streams.AppendPnL(snap.Ts, snap.Portfolio, snap.Fair); err != nil {
		e.recordError()
		e.logger.LogError(err, zap.String("stream", export.PnLHistoryFile))
	}
}

func (e *TradingEngine) exportSpread() {
	if e.streams == nil {
		return
	}
	snap := e.runner.Snapshot()
	if !snap.HasTop {
		return
	}
	if err := e.streams.AppendSpread(snap.Top); err != nil {
		e.recordError()
		e.logger.LogError(err, zap.String("stream", export.SpreadHistoryFile))
	}
}

// Runner 回调，在 Runner 释放锁之后调用

func (e *TradingEngine) onFill(f inventory.Fill, sum inventory.Summary) {
	e.stats.mu.Lock()
	e.stats.TotalFills++
	e.stats.LastFillTime = f.Ts
	e.stats.mu.Unlock()

	if e.analyzer != nil {
		e.analyzer.OnFill(f)
	}
	if e.monitor != nil {
		e.monitor.RecordFill(f)
	}
	if e.streams != nil {
		if err := e.streams.AppendTrade(f, sum); err != nil {
			e.recordError()
			e.logger.LogError(err, zap.String("stream", export.TradeLogFile))
		}
	}
}

func (e *TradingEngine) onQuotes(bid, ask *strategy.Quote) {
	e.stats.mu.Lock()
	e.stats.TotalQuotes++
	e.stats.LastQuoteTime = e.now()
	e.stats.mu.Unlock()
	if e.monitor != nil {
		e.monitor.UpdateQuotes(bid, ask)
	}
}

func (e *TradingEngine) onMark(ts time.Time, fair float64, m inventory.MarkResult) {
	if e.monitor != nil {
		e.monitor.UpdateMark(fair, m)
	}
	if e.analyzer != nil {
		e.analyzer.OnMark(ts, fair)
	}
}

func (e *TradingEngine) onRiskChange(suspended bool, err error) {
	if e.monitor != nil {
		e.monitor.RecordRiskChange(suspended)
	}
	if e.alertMgr == nil {
		return
	}
	if suspended {
		_, aerr := e.alertMgr.SendCritical("quoting suspended by risk gate", map[string]interface{}{
			"reason": errString(err),
		})
		if aerr != nil {
			e.logger.LogError(aerr, zap.String("stage", "risk_alert"))
		}
		return
	}
	_, _ = e.alertMgr.SendAlert(alert.Alert{Level: alert.LevelInfo, Message: "quoting resumed"})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *TradingEngine) recordError() {
	e.stats.mu.Lock()
	e.stats.TotalErrors++
	e.stats.mu.Unlock()
}

// GetState 获取引擎状态
func (e *TradingEngine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息副本
func (e *TradingEngine) GetStatistics() Statistics {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Statistics{
		StartTime:     e.stats.StartTime,
		TotalTicks:    e.stats.TotalTicks,
		TotalQuotes:   e.stats.TotalQuotes,
		TotalFills:    e.stats.TotalFills,
		TotalErrors:   e.stats.TotalErrors,
		LastTickTime:  e.stats.LastTickTime,
		LastQuoteTime: e.stats.LastQuoteTime,
		LastFillTime:  e.stats.LastFillTime,
	}
}

func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.TickInterval < 0 {
		return errors.New("tick_interval must be >= 0")
	}
	return nil
}

func validateComponents(comp Components) error {
	if comp.Runner == nil {
		return errors.New("runner is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
