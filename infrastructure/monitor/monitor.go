package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-maker-sim/inventory"
	"market-maker-sim/posttrade"
	"market-maker-sim/strategy"
)

// Monitor Prometheus监控指标收集器，每个实例使用独立 registry
type Monitor struct {
	registry *prometheus.Registry

	// 组合指标
	position       prometheus.Gauge
	cash           prometheus.Gauge
	nav            prometheus.Gauge
	totalPnL       prometheus.Gauge
	utilizationPct prometheus.Gauge
	healthScore    prometheus.Gauge

	// 市场与报价
	fairPrice    prometheus.Gauge
	bidPrice     prometheus.Gauge
	askPrice     prometheus.Gauge
	spread       *prometheus.GaugeVec
	quoteUpdates prometheus.Counter

	// 成交
	fills        *prometheus.CounterVec
	tradedVolume prometheus.Counter
	marketTrades prometheus.Counter

	// 风控
	riskSuspended   prometheus.Gauge
	riskSuspensions prometheus.Counter

	// 成交后分析
	adverseRate  prometheus.Gauge
	avgMarkout1s prometheus.Gauge
	avgMarkout5s prometheus.Gauge

	// 行情连接
	feedConnects   prometheus.Counter
	feedReconnects prometheus.Counter
	feedMessages   *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{
		Namespace: "mm",
		Subsystem: "sim",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}

	return &Monitor{
		registry: reg,

		position:       gauge("position", "当前净仓位"),
		cash:           gauge("cash", "成交现金流"),
		nav:            gauge("nav", "持仓市值 q*fair"),
		totalPnL:       gauge("total_pnl", "总盈亏 cash+nav"),
		utilizationPct: gauge("inventory_utilization_pct", "库存占用百分比"),
		healthScore:    gauge("health_score", "组合健康评分(0-100)"),

		fairPrice: gauge("fair_price", "公允价（中间价）"),
		bidPrice:  gauge("quote_bid_price", "当前买价报价，0 表示无报价"),
		askPrice:  gauge("quote_ask_price", "当前卖价报价，0 表示无报价"),
		spread: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "spread_for_size",
			Help:      "按规模计算的滚动窗口平均 VWAP 价差",
		}, []string{"size"}),
		quoteUpdates: counter("quote_updates_total", "报价替换次数"),

		fills: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fills_total",
			Help:      "模拟成交笔数",
		}, []string{"side"}),
		tradedVolume: counter("traded_volume_total", "模拟成交累计数量"),
		marketTrades: counter("market_trades_total", "收到的市场成交笔数"),

		riskSuspended:   gauge("risk_suspended", "风控闸门状态(1=暂停报价)"),
		riskSuspensions: counter("risk_suspensions_total", "风控暂停报价次数"),

		adverseRate:  gauge("adverse_selection_rate", "1 秒 markout 为负的成交占比"),
		avgMarkout1s: gauge("avg_markout_1s", "1 秒平均 markout"),
		avgMarkout5s: gauge("avg_markout_5s", "5 秒平均 markout"),

		feedConnects:   counter("feed_connects_total", "行情连接成功次数"),
		feedReconnects: counter("feed_reconnects_total", "行情重连次数"),
		feedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_messages_total",
			Help:      "按类型统计的行情消息",
		}, []string{"kind"}),
	}
}

// UpdateMark 盯市后的组合状态
func (m *Monitor) UpdateMark(fair float64, r inventory.MarkResult) {
	m.fairPrice.Set(fair)
	m.position.Set(r.Position)
	m.cash.Set(r.Cash)
	m.nav.Set(r.NAV)
	m.totalPnL.Set(r.PnL)
}

// UpdateQuotes nil 报价记为 0
func (m *Monitor) UpdateQuotes(bid, ask *strategy.Quote) {
	m.quoteUpdates.Inc()
	m.bidPrice.Set(quotePrice(bid))
	m.askPrice.Set(quotePrice(ask))
}

func quotePrice(q *strategy.Quote) float64 {
	if q == nil {
		return 0
	}
	return q.Price
}

func (m *Monitor) UpdateSpread(size, spread float64) {
	m.spread.WithLabelValues(strconv.FormatFloat(size, 'f', -1, 64)).Set(spread)
}

func (m *Monitor) RecordFill(f inventory.Fill) {
	m.fills.WithLabelValues(string(f.Side)).Inc()
	m.tradedVolume.Add(f.Size)
}

func (m *Monitor) RecordMarketTrade() {
	m.marketTrades.Inc()
}

// RecordRiskChange 暂停时累加次数
func (m *Monitor) RecordRiskChange(suspended bool) {
	if suspended {
		m.riskSuspended.Set(1)
		m.riskSuspensions.Inc()
		return
	}
	m.riskSuspended.Set(0)
}

func (m *Monitor) UpdateHealth(rep inventory.HealthReport) {
	m.healthScore.Set(rep.Score)
	m.utilizationPct.Set(rep.UtilizationPct)
}

func (m *Monitor) UpdateMarkout(s posttrade.Stats) {
	m.adverseRate.Set(s.AdverseSelectionRate)
	m.avgMarkout1s.Set(s.AvgMarkout1s)
	m.avgMarkout5s.Set(s.AvgMarkout5s)
}

// 行情连接
func (m *Monitor) RecordFeedConnect() {
	m.feedConnects.Inc()
}

func (m *Monitor) RecordFeedReconnect() {
	m.feedReconnects.Inc()
}

func (m *Monitor) RecordFeedMessage(kind string) {
	m.feedMessages.WithLabelValues(kind).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
